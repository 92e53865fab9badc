// Package mariadb stores face samples in a MariaDB or MySQL table.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. The DSN is parsed so that
// DATETIME columns scan into time.Time regardless of what the caller passed.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// EnsureSchema creates the face_embeddings table when it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS face_embeddings (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			sample_id CHAR(36) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			embeddings_json MEDIUMBLOB NOT NULL,
			dim INT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_face_embeddings_name (name)
		) DEFAULT CHARSET = utf8mb4 COLLATE = utf8mb4_bin
	`)
	if err != nil {
		return fmt.Errorf("create face_embeddings table: %w", err)
	}
	return nil
}

// Open connects to MariaDB, creates the schema and returns a backend.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return NewBackend(pool), nil
}
