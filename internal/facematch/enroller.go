package facematch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// IdentityWriter is the write side of the embedding store used by enrollment.
// AddBatch and Replace are all-or-nothing and return the sample count on file
// for name after the write.
type IdentityWriter interface {
	AddBatch(ctx context.Context, name string, embeddings [][]float32) (int, error)
	Replace(ctx context.Context, name string, embeddings [][]float32) (int, error)
	Remove(ctx context.Context, name string) error
	Dim() int
}

// Enroller validates enrollment requests and commits them to the store.
type Enroller struct {
	store  IdentityWriter
	logger *slog.Logger
}

// NewEnroller creates an enroller. A nil logger discards output.
func NewEnroller(store IdentityWriter, logger *slog.Logger) *Enroller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enroller{store: store, logger: logger}
}

// Enroll appends embeddings to the identity called name, creating it if needed.
// Re-enrolling an existing name adds samples, it never overwrites them.
func (e *Enroller) Enroll(ctx context.Context, name string, embeddings [][]float32) (int, error) {
	canonical, err := e.validate(name, embeddings)
	if err != nil {
		return 0, err
	}

	count, err := e.store.AddBatch(ctx, canonical, embeddings)
	if err != nil {
		return 0, fmt.Errorf("enrolling %q: %w", canonical, err)
	}
	e.logger.Info("identity enrolled", "name", canonical, "added", len(embeddings), "samples", count)
	return count, nil
}

// EnrollDetections enrolls one face per submitted image. Each entry of perImage is
// the detector output for one image; the best detection of each is used. An image
// in which the detector found nothing fails the request before anything is written.
func (e *Enroller) EnrollDetections(ctx context.Context, name string, perImage [][]Detection) (int, error) {
	if len(perImage) == 0 {
		return 0, fmt.Errorf("%w: no images submitted", ErrNoFaceDetected)
	}
	embeddings := make([][]float32, 0, len(perImage))
	for i, detections := range perImage {
		best, ok := BestDetection(detections)
		if !ok {
			return 0, fmt.Errorf("%w: image %d", ErrNoFaceDetected, i)
		}
		if len(detections) > 1 {
			e.logger.Debug("several faces in enrollment image, using best", "image", i, "faces", len(detections), "score", best.Score)
		}
		embeddings = append(embeddings, best.Embedding)
	}
	return e.Enroll(ctx, name, embeddings)
}

// Replace discards all samples of name and stores embeddings instead.
func (e *Enroller) Replace(ctx context.Context, name string, embeddings [][]float32) (int, error) {
	canonical, err := e.validate(name, embeddings)
	if err != nil {
		return 0, err
	}

	count, err := e.store.Replace(ctx, canonical, embeddings)
	if err != nil {
		return 0, fmt.Errorf("replacing %q: %w", canonical, err)
	}
	e.logger.Info("identity replaced", "name", canonical, "samples", count)
	return count, nil
}

// Remove deletes the identity and every sample it owns.
func (e *Enroller) Remove(ctx context.Context, name string) error {
	canonical, err := CanonicalName(name)
	if err != nil {
		return err
	}
	if err := e.store.Remove(ctx, canonical); err != nil {
		return fmt.Errorf("removing %q: %w", canonical, err)
	}
	e.logger.Info("identity removed", "name", canonical)
	return nil
}

// validate checks the name and every embedding before anything reaches the store.
func (e *Enroller) validate(name string, embeddings [][]float32) (string, error) {
	canonical, err := CanonicalName(name)
	if err != nil {
		return "", err
	}
	if len(embeddings) == 0 {
		return "", fmt.Errorf("%w: no embeddings supplied for %q", ErrNoFaceDetected, canonical)
	}

	dim := e.store.Dim()
	for i, emb := range embeddings {
		if err := ValidateEmbedding(emb); err != nil {
			return "", fmt.Errorf("embedding %d: %w", i, err)
		}
		if dim == 0 {
			// First enrollment fixes the dimension; the batch must agree with itself.
			dim = len(emb)
		}
		if len(emb) != dim {
			return "", fmt.Errorf("embedding %d: %w", i, &DimensionMismatchError{Expected: dim, Actual: len(emb)})
		}
	}
	return canonical, nil
}
