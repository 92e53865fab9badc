package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FACES_CONFIG", "FACES_METRIC", "FACES_THRESHOLD", "EMBEDDING_DIM", "FACES_DUPLICATE_POLICY",
		"FACES_INDEX", "FACES_INDEX_CANDIDATES", "HNSW_INDEX_PATH", "STORE_BACKEND", "STORE_PATH",
		"DATABASE_URL", "MARIADB_DSN", "DETECTOR_URL", "WEB_HOST", "WEB_PORT", "WEB_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matching.Metric != "cosine" {
		t.Errorf("metric = %q; want cosine", cfg.Matching.Metric)
	}
	if cfg.Matching.Threshold != 0.4 {
		t.Errorf("threshold = %v; want 0.4", cfg.Matching.Threshold)
	}
	if cfg.Matching.Dim != 512 {
		t.Errorf("dim = %d; want 512", cfg.Matching.Dim)
	}
	if cfg.Matching.DuplicatePolicy != "keep-closest" {
		t.Errorf("duplicate policy = %q", cfg.Matching.DuplicatePolicy)
	}
	if cfg.Index.Mode != "exact" || cfg.Index.Candidates != 32 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Path == "" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Detector.Timeout() != 30*time.Second {
		t.Errorf("detector timeout = %v", cfg.Detector.Timeout())
	}
	if cfg.Web.Addr() != "0.0.0.0:8085" {
		t.Errorf("addr = %q", cfg.Web.Addr())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACES_METRIC", "euclidean")
	t.Setenv("FACES_THRESHOLD", "0.9")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("FACES_DUPLICATE_POLICY", "allow")
	t.Setenv("FACES_INDEX", "hnsw")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://faces@localhost/faces")
	t.Setenv("WEB_PORT", "9000")
	t.Setenv("WEB_ALLOWED_ORIGINS", "http://localhost:3000, https://attendance.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matching.Metric != "euclidean" || cfg.Matching.Threshold != 0.9 || cfg.Matching.Dim != 128 {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if cfg.Matching.DuplicatePolicy != "allow" {
		t.Errorf("duplicate policy = %q", cfg.Matching.DuplicatePolicy)
	}
	if cfg.Index.Mode != "hnsw" {
		t.Errorf("index mode = %q", cfg.Index.Mode)
	}
	if cfg.Store.Backend != BackendPostgres || cfg.Database.URL == "" {
		t.Errorf("store = %+v database = %+v", cfg.Store, cfg.Database)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d", cfg.Web.Port)
	}
	want := []string{"http://localhost:3000", "https://attendance.example.com"}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[0] != want[0] || cfg.Web.AllowedOrigins[1] != want[1] {
		t.Errorf("origins = %v; want %v", cfg.Web.AllowedOrigins, want)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "faces.yaml")
	content := "matching:\n  threshold: 0.6\nstore:\n  path: /var/lib/faces/faces.gob\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACES_CONFIG", path)
	t.Setenv("FACES_THRESHOLD", "0.55")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Environment wins over the file; the file wins over defaults.
	if cfg.Matching.Threshold != 0.55 {
		t.Errorf("threshold = %v; want 0.55", cfg.Matching.Threshold)
	}
	if cfg.Store.Path != "/var/lib/faces/faces.gob" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Matching.Metric != "cosine" {
		t.Errorf("metric = %q; want default cosine", cfg.Matching.Metric)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("FACES_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value, wantInErr string
	}{
		{"FACES_THRESHOLD", "abc", "FACES_THRESHOLD"},
		{"FACES_THRESHOLD", "-0.1", "threshold"},
		{"EMBEDDING_DIM", "-5", "dim"},
		{"EMBEDDING_DIM", "lots", "EMBEDDING_DIM"},
		{"FACES_METRIC", "manhattan", "manhattan"},
		{"FACES_DUPLICATE_POLICY", "first", "duplicate policy"},
		{"FACES_INDEX", "ivf", "index mode"},
		{"STORE_BACKEND", "sqlite", "store backend"},
		{"WEB_PORT", "70000", "port"},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantInErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantInErr)
			}
		})
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Store.Backend = BackendPostgres
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("expected DATABASE_URL error, got %v", err)
	}

	cfg.Store.Backend = BackendMariaDB
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "MARIADB_DSN") {
		t.Errorf("expected MARIADB_DSN error, got %v", err)
	}

	cfg.MariaDB.DSN = "faces:faces@tcp(localhost:3306)/faces"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Store.Backend = BackendFile
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty store path")
	}
}
