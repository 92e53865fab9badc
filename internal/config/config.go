package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Index    IndexConfig    `yaml:"index"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	MariaDB  MariaDBConfig  `yaml:"mariadb"`
	Detector DetectorConfig `yaml:"detector"`
	Web      WebConfig      `yaml:"web"`
}

type MatchingConfig struct {
	Metric          string  `yaml:"metric"`           // cosine or euclidean
	Threshold       float64 `yaml:"threshold"`        // maximum accepted distance
	Dim             int     `yaml:"dim"`              // embedding length, 0 = taken from the first enrollment
	DuplicatePolicy string  `yaml:"duplicate_policy"` // keep-closest or allow
}

type IndexConfig struct {
	Mode       string `yaml:"mode"`       // exact or hnsw
	Candidates int    `yaml:"candidates"` // HNSW candidates re-ranked per query
	Path       string `yaml:"path"`       // where to persist the HNSW graph (optional)
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // file, postgres or mariadb
	Path    string `yaml:"path"`    // file backend location
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. faces:faces@tcp(mariadb:3306)/faces
}

type DetectorConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the detector request timeout.
func (c DetectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

// Addr returns host:port for the HTTP listener.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds the configuration from the embedded defaults, the YAML file named
// by FACES_CONFIG (if any) and environment variables, in that order, and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv("FACES_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("FACES_METRIC", &c.Matching.Metric)
	envString("FACES_DUPLICATE_POLICY", &c.Matching.DuplicatePolicy)
	envString("FACES_INDEX", &c.Index.Mode)
	envString("HNSW_INDEX_PATH", &c.Index.Path)
	envString("STORE_BACKEND", &c.Store.Backend)
	envString("STORE_PATH", &c.Store.Path)
	envString("DATABASE_URL", &c.Database.URL)
	envString("MARIADB_DSN", &c.MariaDB.DSN)
	envString("DETECTOR_URL", &c.Detector.URL)
	envString("WEB_HOST", &c.Web.Host)
	if s := os.Getenv("WEB_ALLOWED_ORIGINS"); s != "" {
		c.Web.AllowedOrigins = splitList(s)
	}

	return errors.Join(
		envFloat("FACES_THRESHOLD", &c.Matching.Threshold),
		envInt("EMBEDDING_DIM", &c.Matching.Dim),
		envInt("FACES_INDEX_CANDIDATES", &c.Index.Candidates),
		envInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns),
		envInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns),
		envInt("DETECTOR_TIMEOUT_SECONDS", &c.Detector.TimeoutSeconds),
		envInt("WEB_PORT", &c.Web.Port),
		envInt("WEB_MAX_UPLOAD_MB", &c.Web.MaxUploadMB),
	)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := facematch.ParseMetric(c.Matching.Metric); err != nil {
		errs = append(errs, err)
	}
	if c.Matching.Threshold < 0 || math.IsNaN(c.Matching.Threshold) || math.IsInf(c.Matching.Threshold, 0) {
		errs = append(errs, fmt.Errorf("threshold must be a finite non-negative number, got %v", c.Matching.Threshold))
	}
	if c.Matching.Dim < 0 {
		errs = append(errs, fmt.Errorf("embedding dim must not be negative, got %d", c.Matching.Dim))
	}
	if _, err := facematch.ParseDuplicatePolicy(c.Matching.DuplicatePolicy); err != nil {
		errs = append(errs, err)
	}

	switch c.Index.Mode {
	case database.IndexExact:
	case database.IndexHNSW:
		if c.Index.Candidates <= 0 {
			errs = append(errs, fmt.Errorf("index candidates must be positive, got %d", c.Index.Candidates))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index mode %q (want %q or %q)", c.Index.Mode, database.IndexExact, database.IndexHNSW))
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("STORE_PATH is required for the file backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMariaDB:
		if c.MariaDB.DSN == "" {
			errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid web port %d", c.Web.Port))
	}
	if c.Web.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max upload size must be positive, got %d MB", c.Web.MaxUploadMB))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// envInt parses an integer environment variable into dst. Unset or empty
// variables leave dst untouched.
func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
