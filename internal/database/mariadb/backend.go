package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Backend persists face samples in the face_embeddings table.
// Embeddings are stored as a JSON list of floats in a MEDIUMBLOB column.
type Backend struct {
	pool *Pool
}

// NewBackend creates a backend over a pool whose schema exists.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

// Load returns every stored sample, oldest first.
func (b *Backend) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := b.pool.db.QueryContext(ctx, `
		SELECT sample_id, name, embeddings_json, created_at
		FROM face_embeddings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query face embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var data []byte
		if err := rows.Scan(&emb.ID, &emb.Name, &data, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal(data, &emb.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding %s: %w", emb.ID, err)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Append inserts rows in a single transaction.
func (b *Backend) Append(ctx context.Context, rows []database.StoredEmbedding) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, rows)
	})
}

// DeleteName removes every sample of name.
func (b *Backend) DeleteName(ctx context.Context, name string) (int, error) {
	result, err := b.pool.db.ExecContext(ctx, `DELETE FROM face_embeddings WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("delete face embeddings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ReplaceName deletes the samples of name and inserts rows in one transaction.
func (b *Backend) ReplaceName(ctx context.Context, name string, rows []database.StoredEmbedding) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM face_embeddings WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete face embeddings: %w", err)
		}
		return insertRows(ctx, tx, rows)
	})
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

func (b *Backend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, rows []database.StoredEmbedding) error {
	for _, r := range rows {
		data, err := json.Marshal(r.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO face_embeddings (sample_id, name, embeddings_json, dim, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, r.ID, r.Name, data, r.Dim(), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert face embedding for %q: %w", r.Name, err)
		}
	}
	return nil
}

var _ database.Backend = (*Backend)(nil)
