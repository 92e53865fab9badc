package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// snapshot is an immutable view of the enrolled samples. Writers build a new
// snapshot and swap it in; readers never see a partially applied mutation.
type snapshot struct {
	rows   []StoredEmbedding
	counts map[string]int
	first  map[string]time.Time
}

func newSnapshot(rows []StoredEmbedding) *snapshot {
	s := &snapshot{
		rows:   rows,
		counts: make(map[string]int),
		first:  make(map[string]time.Time),
	}
	for _, r := range rows {
		s.counts[r.Name]++
		if t, ok := s.first[r.Name]; !ok || r.CreatedAt.Before(t) {
			s.first[r.Name] = r.CreatedAt
		}
	}
	return s
}

// withAppended returns a new snapshot with rows added after the current ones.
func (s *snapshot) withAppended(rows []StoredEmbedding) *snapshot {
	all := append(s.rows[:len(s.rows):len(s.rows)], rows...)
	next := &snapshot{
		rows:   all,
		counts: make(map[string]int, len(s.counts)+1),
		first:  make(map[string]time.Time, len(s.first)+1),
	}
	for k, v := range s.counts {
		next.counts[k] = v
	}
	for k, v := range s.first {
		next.first[k] = v
	}
	for _, r := range rows {
		next.counts[r.Name]++
		if t, ok := next.first[r.Name]; !ok || r.CreatedAt.Before(t) {
			next.first[r.Name] = r.CreatedAt
		}
	}
	return next
}

// without returns a new snapshot with every row of name dropped.
func (s *snapshot) without(name string) *snapshot {
	rows := make([]StoredEmbedding, 0, len(s.rows)-s.counts[name])
	for _, r := range s.rows {
		if r.Name != name {
			rows = append(rows, r)
		}
	}
	return newSnapshot(rows)
}

// Store is the embedding store: named identities, each owning one or more samples,
// persisted through a Backend. Reads run concurrently on the current snapshot; writes
// are serialized and committed to the backend before they become visible.
type Store struct {
	backend  Backend
	fixedDim int
	logger   *slog.Logger
	now      func() time.Time

	writeMu sync.Mutex // serializes mutations, held across backend calls

	mu        sync.RWMutex // guards the fields below
	snap      *snapshot
	dim       int
	index     *HNSWIndex
	indexPath string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp new samples.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore loads every sample from backend. dim fixes the embedding dimension; with
// dim 0 the dimension is taken from the stored rows or from the first insert.
// Rows of any other dimension abort loading with ErrDimensionMismatch.
func NewStore(ctx context.Context, backend Backend, dim int, opts ...StoreOption) (*Store, error) {
	if dim < 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}
	s := &Store{
		backend:  backend,
		fixedDim: dim,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	rows, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}

	s.dim = dim
	for _, r := range rows {
		if s.dim == 0 {
			s.dim = r.Dim()
		}
		if r.Dim() != s.dim {
			return nil, fmt.Errorf("stored sample %s of %q: %w", r.ID, r.Name,
				&facematch.DimensionMismatchError{Expected: s.dim, Actual: r.Dim()})
		}
	}
	s.snap = newSnapshot(rows)

	s.logger.Info("embedding store loaded", "samples", len(rows), "identities", len(s.snap.counts), "dim", s.dim)
	return s, nil
}

func (s *Store) current() (*snapshot, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.dim
}

// Dim returns the embedding dimension, or 0 while it is still undetermined.
func (s *Store) Dim() int {
	_, dim := s.current()
	return dim
}

// Len returns the number of stored samples across all identities.
func (s *Store) Len() int {
	snap, _ := s.current()
	return len(snap.rows)
}

// Samples returns how many samples name owns; 0 when it is not enrolled.
func (s *Store) Samples(name string) int {
	snap, _ := s.current()
	return snap.counts[canonicalOrRaw(name)]
}

// Identities lists enrolled identities sorted by name.
func (s *Store) Identities() []facematch.IdentitySummary {
	snap, _ := s.current()
	out := make([]facematch.IdentitySummary, 0, len(snap.counts))
	for name, n := range snap.counts {
		out = append(out, facematch.IdentitySummary{Name: name, Samples: n, EnrolledAt: snap.first[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All yields one (name, embedding) pair per stored sample. Each iteration reads the
// snapshot current at the time it starts, so the sequence can be ranged over again
// to observe later writes. Yielded slices are shared and must not be modified.
func (s *Store) All() iter.Seq2[string, []float32] {
	return func(yield func(string, []float32) bool) {
		snap, _ := s.current()
		for _, r := range snap.rows {
			if !yield(r.Name, r.Embedding) {
				return
			}
		}
	}
}

// Add appends a single embedding to name and returns its sample count.
func (s *Store) Add(ctx context.Context, name string, embedding []float32) (int, error) {
	return s.AddBatch(ctx, name, [][]float32{embedding})
}

// AddBatch appends embeddings to name, creating the identity if needed. Either every
// embedding is stored or none is.
func (s *Store) AddBatch(ctx context.Context, name string, embeddings [][]float32) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, dim := s.current()
	name, dim, err := s.check(name, embeddings, dim)
	if err != nil {
		return 0, err
	}

	rows := NewStoredEmbeddings(name, embeddings, s.now().UTC())
	if err := s.backend.Append(ctx, rows); err != nil {
		return 0, fmt.Errorf("persisting samples for %q: %w", name, err)
	}

	next := snap.withAppended(rows)
	s.mu.Lock()
	s.snap = next
	s.dim = dim
	if s.index != nil {
		s.index.Add(rows)
	}
	s.mu.Unlock()

	s.logger.Debug("samples added", "name", name, "added", len(rows), "samples", next.counts[name])
	return next.counts[name], nil
}

// Replace discards every sample of name and stores embeddings in their place.
func (s *Store) Replace(ctx context.Context, name string, embeddings [][]float32) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, dim := s.current()
	if s.fixedDim == 0 && snap.counts[canonicalOrRaw(name)] == len(snap.rows) {
		// Replacing the only identity may change a derived dimension.
		dim = 0
	}
	name, dim, err := s.check(name, embeddings, dim)
	if err != nil {
		return 0, err
	}

	rows := NewStoredEmbeddings(name, embeddings, s.now().UTC())
	if err := s.backend.ReplaceName(ctx, name, rows); err != nil {
		return 0, fmt.Errorf("replacing samples of %q: %w", name, err)
	}

	next := snap.without(name).withAppended(rows)
	s.swap(next, dim, true)

	s.logger.Debug("samples replaced", "name", name, "samples", len(rows))
	return len(rows), nil
}

// Remove deletes name and all of its samples.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	name = canonicalOrRaw(name)
	snap, dim := s.current()
	if snap.counts[name] == 0 {
		return fmt.Errorf("identity %q: %w", name, facematch.ErrNotFound)
	}

	removed, err := s.backend.DeleteName(ctx, name)
	if err != nil {
		return fmt.Errorf("deleting samples of %q: %w", name, err)
	}
	if removed != snap.counts[name] {
		s.logger.Warn("backend removed unexpected sample count", "name", name, "removed", removed, "expected", snap.counts[name])
	}

	next := snap.without(name)
	if len(next.rows) == 0 && s.fixedDim == 0 {
		dim = 0
	}
	s.swap(next, dim, true)

	s.logger.Debug("identity removed", "name", name, "samples", removed)
	return nil
}

// swap publishes next. When reindex is set and an index is enabled, a fresh index is
// built before the swap so both change together.
func (s *Store) swap(next *snapshot, dim int, reindex bool) {
	var idx *HNSWIndex
	if reindex && s.index != nil {
		idx, _ = NewHNSWIndex(s.index.metric)
		idx.Build(next.rows)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = next
	s.dim = dim
	if idx != nil {
		s.index = idx
	}
}

// check canonicalizes name and validates the batch against dim. It returns the
// dimension the store has after the write.
func (s *Store) check(name string, embeddings [][]float32, dim int) (string, int, error) {
	canonical, err := facematch.CanonicalName(name)
	if err != nil {
		return "", 0, err
	}
	if len(embeddings) == 0 {
		return "", 0, fmt.Errorf("%w: no embeddings supplied for %q", facematch.ErrNoFaceDetected, canonical)
	}
	for i, emb := range embeddings {
		if err := facematch.ValidateEmbedding(emb); err != nil {
			return "", 0, fmt.Errorf("embedding %d: %w", i, err)
		}
		if dim == 0 {
			dim = len(emb)
		}
		if len(emb) != dim {
			return "", 0, fmt.Errorf("embedding %d: %w", i, &facematch.DimensionMismatchError{Expected: dim, Actual: len(emb)})
		}
	}
	return canonical, dim, nil
}

func canonicalOrRaw(name string) string {
	if canonical, err := facematch.CanonicalName(name); err == nil {
		return canonical
	}
	return name
}

// EnableIndex attaches an HNSW candidate index using metric. When path is set the
// index is loaded from there if it still matches the store, rebuilt otherwise, and
// saved back on Close.
func (s *Store) EnableIndex(metric, path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	idx, err := NewHNSWIndex(metric)
	if err != nil {
		return err
	}

	snap, _ := s.current()
	loaded := false
	if path != "" {
		if err := idx.Load(path, snap.rows); err == nil {
			loaded = true
		} else {
			s.logger.Info("rebuilding HNSW index", "path", path, "reason", err)
		}
	}
	if !loaded {
		start := time.Now()
		idx.Build(snap.rows)
		s.logger.Info("HNSW index built", "samples", idx.Count(), "took", time.Since(start))
	}

	s.mu.Lock()
	s.index = idx
	s.indexPath = path
	s.mu.Unlock()
	return nil
}

// Candidates returns up to k samples near query from the HNSW index. ok is false when
// no index is enabled.
func (s *Store) Candidates(query []float32, k int) (iter.Seq2[string, []float32], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, false
	}
	rows := s.index.Search(query, k)
	return func(yield func(string, []float32) bool) {
		for _, r := range rows {
			if !yield(r.Name, r.Embedding) {
				return
			}
		}
	}, true
}

// Close saves the HNSW index when it has a path and closes the backend.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var errs []error
	s.mu.RLock()
	idx, path := s.index, s.indexPath
	s.mu.RUnlock()
	if idx != nil && path != "" {
		if err := idx.Save(path); err != nil {
			errs = append(errs, fmt.Errorf("saving HNSW index: %w", err))
		}
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing backend: %w", err))
	}
	return errors.Join(errs...)
}

var (
	_ facematch.EmbeddingSource = (*Store)(nil)
	_ facematch.CandidateSource = (*Store)(nil)
	_ facematch.IdentityWriter  = (*Store)(nil)
)
