// Package facematch turns face detections and embeddings into named identities.
// It holds the matching engine shared by the CLI and the web handlers: metrics,
// nearest-neighbor matching, per-frame recognition and enrollment.
package facematch

import (
	"iter"
	"time"
)

// Unknown is the label given to a face that matches no enrolled identity.
const Unknown = "unknown"

// BoundingBox is a face location in pixel coordinates of the source frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one located face in a frame together with its embedding.
type Detection struct {
	Box       BoundingBox
	Embedding []float32
	Score     float64 // detector confidence, 0 when the detector does not report one
}

// RecognitionResult is the outcome for a single detection.
type RecognitionResult struct {
	Box      BoundingBox
	Label    string
	Distance float64
}

// Known reports whether the result carries an identity name.
func (r RecognitionResult) Known() bool {
	return r.Label != Unknown
}

// IdentitySummary describes an enrolled identity without its vectors.
type IdentitySummary struct {
	Name       string
	Samples    int
	EnrolledAt time.Time
}

// EmbeddingSource is read access to every enrolled sample.
// All yields one (name, embedding) pair per stored sample. Yielded slices are
// shared with the store and must not be modified.
type EmbeddingSource interface {
	All() iter.Seq2[string, []float32]
	// Dim returns the established dimensionality, 0 while nothing is enrolled.
	Dim() int
}

// CandidateSource is implemented by sources that keep an approximate
// nearest-neighbor index. ok is false when no index is active.
type CandidateSource interface {
	Candidates(query []float32, k int) (seq iter.Seq2[string, []float32], ok bool)
	Len() int
}
