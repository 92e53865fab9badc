package database

import (
	"context"
)

// Backend persists enrolled samples. Every mutating call must be atomic: either
// all rows are committed or the previous state is left untouched.
type Backend interface {
	// Load returns every stored sample, oldest first.
	Load(ctx context.Context) ([]StoredEmbedding, error)
	// Append adds rows.
	Append(ctx context.Context, rows []StoredEmbedding) error
	// DeleteName removes every row of name and returns how many were removed.
	DeleteName(ctx context.Context, name string) (int, error)
	// ReplaceName removes every row of name and stores rows instead.
	ReplaceName(ctx context.Context, name string, rows []StoredEmbedding) error
	// Close releases the backend's resources.
	Close() error
}
