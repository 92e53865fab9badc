package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// Backend persists face samples in the face_embeddings table.
type Backend struct {
	pool *Pool
}

// NewBackend creates a backend over an already migrated pool.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

// Load returns every stored sample, oldest first.
func (b *Backend) Load(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := b.pool.db.QueryContext(ctx, `
		SELECT sample_id, name, embedding, created_at
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
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.Name, &vec, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face embeddings: %w", err)
	}
	return out, nil
}

// Append inserts rows in a single transaction.
func (b *Backend) Append(ctx context.Context, rows []database.StoredEmbedding) error {
	return b.pool.inTx(ctx, func(tx *sql.Tx) error {
		return insertRows(ctx, tx, rows)
	})
}

// DeleteName removes every sample of name.
func (b *Backend) DeleteName(ctx context.Context, name string) (int, error) {
	result, err := b.pool.db.ExecContext(ctx, "DELETE FROM face_embeddings WHERE name = $1", name)
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
	return b.pool.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM face_embeddings WHERE name = $1", name); err != nil {
			return fmt.Errorf("delete face embeddings: %w", err)
		}
		return insertRows(ctx, tx, rows)
	})
}

// Close closes the underlying pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

func insertRows(ctx context.Context, tx *sql.Tx, rows []database.StoredEmbedding) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_embeddings (sample_id, name, embedding, dim, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, pgvector.NewVector(r.Embedding), r.Dim(), r.CreatedAt); err != nil {
			return fmt.Errorf("insert face embedding for %q: %w", r.Name, err)
		}
	}
	return nil
}

var _ database.Backend = (*Backend)(nil)
