package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/filestore"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// newLogger returns the structured logger handed to the store and services.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openBackend connects the persistence backend selected by the configuration.
func openBackend(ctx context.Context, cfg *config.Config) (database.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		backend, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return backend, nil
	case config.BackendMariaDB:
		backend, err := mariadb.Open(ctx, cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return backend, nil
	default:
		backend, err := filestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store file: %w", err)
		}
		return backend, nil
	}
}

// openStore loads the embedding store and attaches the HNSW index when configured.
// The caller owns the store and must Close it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.Store, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := database.NewStore(ctx, backend, cfg.Matching.Dim, database.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	if cfg.Index.Mode == database.IndexHNSW {
		if err := store.EnableIndex(cfg.Matching.Metric, cfg.Index.Path); err != nil {
			// Exact matching still works without the index.
			logger.Warn("HNSW index unavailable, using exact matching", "error", err)
		}
	}
	return store, nil
}

// newRecognizer builds the matcher and recognizer for store. A negative
// threshold keeps the configured one.
func newRecognizer(cfg *config.Config, store *database.Store, threshold float64) (*facematch.Recognizer, error) {
	metric, err := facematch.ParseMetric(cfg.Matching.Metric)
	if err != nil {
		return nil, err
	}
	policy, err := facematch.ParseDuplicatePolicy(cfg.Matching.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	candidates := 0
	if cfg.Index.Mode == database.IndexHNSW {
		candidates = cfg.Index.Candidates
	}
	matcher := facematch.NewMatcher(store, metric, facematch.WithCandidates(candidates))

	if threshold < 0 {
		threshold = cfg.Matching.Threshold
	}
	return facematch.NewRecognizer(matcher, threshold, policy)
}

// newDetector returns a client for the configured detector service.
func newDetector(cfg *config.Config) *detector.Client {
	return detector.NewClient(cfg.Detector.URL, cfg.Detector.Timeout())
}

// closeStore closes the store, reporting rather than returning failures.
func closeStore(store *database.Store) {
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}
