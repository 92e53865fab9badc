package facematch

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch matches any *DimensionMismatchError via errors.Is.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrInvalidName is returned for empty or malformed identity names.
	ErrInvalidName = errors.New("invalid identity name")
	// ErrNoFaceDetected is returned when an enrollment carries no face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrEmptyStore is returned by Matcher.Nearest when nothing is enrolled.
	ErrEmptyStore = errors.New("no identities enrolled")
	// ErrInvalidEmbedding is returned for empty vectors or vectors with NaN/Inf values.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrInvalidThreshold is returned for negative or NaN thresholds.
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// DimensionMismatchError reports an embedding whose length differs from the store's.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
