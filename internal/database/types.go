package database

import (
	"time"

	"github.com/google/uuid"
)

// StoredEmbedding is one enrolled sample: a single embedding owned by a named identity.
type StoredEmbedding struct {
	ID        string
	Name      string
	Embedding []float32
	CreatedAt time.Time
}

// Dim returns the embedding length.
func (e StoredEmbedding) Dim() int {
	return len(e.Embedding)
}

// NewStoredEmbeddings builds rows for name with fresh IDs and a shared timestamp.
// Input slices are copied so callers keep ownership of theirs.
func NewStoredEmbeddings(name string, embeddings [][]float32, now time.Time) []StoredEmbedding {
	rows := make([]StoredEmbedding, len(embeddings))
	for i, emb := range embeddings {
		rows[i] = StoredEmbedding{
			ID:        uuid.NewString(),
			Name:      name,
			Embedding: append([]float32(nil), emb...),
			CreatedAt: now,
		}
	}
	return rows
}
