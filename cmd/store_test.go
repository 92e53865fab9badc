package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

func fileConfig(t *testing.T, indexMode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Matching: config.MatchingConfig{Metric: "cosine", Threshold: 0.4, DuplicatePolicy: "keep-closest"},
		Index: config.IndexConfig{
			Mode:       indexMode,
			Candidates: 8,
			Path:       filepath.Join(dir, "faces.hnsw"),
		},
		Store: config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "faces.gob")},
	}
}

func TestOpenStore_FileBackendPersists(t *testing.T) {
	for _, mode := range []string{database.IndexExact, database.IndexHNSW} {
		t.Run(mode, func(t *testing.T) {
			cfg := fileConfig(t, mode)
			ctx := context.Background()
			logger := newLogger(false)

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			enroller := facematch.NewEnroller(store, logger)
			if _, err := enroller.Enroll(ctx, "Alice", [][]float32{{1, 0, 0}}); err != nil {
				t.Fatalf("enroll: %v", err)
			}
			if _, err := enroller.Enroll(ctx, "Bob", [][]float32{{0, 1, 0}}); err != nil {
				t.Fatalf("enroll: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			store, err = openStore(ctx, cfg, logger)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer closeStore(store)

			recognizer, err := newRecognizer(cfg, store, -1)
			if err != nil {
				t.Fatalf("newRecognizer: %v", err)
			}
			results, err := recognizer.Recognize([]facematch.Detection{
				{Embedding: []float32{0.1, 0.9, 0}},
				{Embedding: []float32{0, 0, 1}},
			})
			if err != nil {
				t.Fatalf("recognize: %v", err)
			}
			if results[0].Label != "Bob" || results[1].Label != facematch.Unknown {
				t.Errorf("unexpected results: %+v", results)
			}
		})
	}
}

func TestNewRecognizer_ThresholdOverride(t *testing.T) {
	cfg := fileConfig(t, database.IndexExact)
	store, err := openStore(context.Background(), cfg, newLogger(false))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore(store)

	recognizer, err := newRecognizer(cfg, store, 0.25)
	if err != nil {
		t.Fatalf("newRecognizer: %v", err)
	}
	if recognizer.Threshold() != 0.25 {
		t.Errorf("threshold = %v; want 0.25", recognizer.Threshold())
	}

	recognizer, err = newRecognizer(cfg, store, -1)
	if err != nil {
		t.Fatalf("newRecognizer: %v", err)
	}
	if recognizer.Threshold() != 0.4 {
		t.Errorf("threshold = %v; want configured 0.4", recognizer.Threshold())
	}
}

func TestNewRecognizer_InvalidConfig(t *testing.T) {
	cfg := fileConfig(t, database.IndexExact)
	store, err := openStore(context.Background(), cfg, newLogger(false))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore(store)

	cfg.Matching.Metric = "manhattan"
	if _, err := newRecognizer(cfg, store, -1); err == nil {
		t.Error("expected error for unknown metric")
	}
}
