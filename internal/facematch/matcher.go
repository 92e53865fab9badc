package facematch

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// DefaultCandidates is how many ANN candidates are re-ranked exactly per query.
const DefaultCandidates = 32

// Match is the nearest enrolled sample for a query and the threshold decision.
type Match struct {
	Label    string
	Distance float64
}

// Matcher finds the closest enrolled sample for a query embedding.
// It is safe for concurrent use as long as its source is.
type Matcher struct {
	source     EmbeddingSource
	metric     Metric
	candidates int
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithCandidates sets the number of ANN candidates re-ranked per query.
// Zero disables the candidate path and forces a full scan.
func WithCandidates(k int) MatcherOption {
	return func(m *Matcher) {
		m.candidates = max(k, 0)
	}
}

// NewMatcher creates a matcher over source using metric. A nil metric means Cosine.
func NewMatcher(source EmbeddingSource, metric Metric, opts ...MatcherOption) *Matcher {
	if metric == nil {
		metric = Cosine{}
	}
	m := &Matcher{source: source, metric: metric, candidates: DefaultCandidates}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metric returns the distance metric in use.
func (m *Matcher) Metric() Metric {
	return m.metric
}

// Nearest returns the enrolled sample closest to query.
// Equidistant samples from different identities resolve to the lexicographically
// smallest name. It returns ErrEmptyStore when nothing is enrolled, whatever the
// query looks like.
func (m *Matcher) Nearest(query []float32) (Match, error) {
	if m.empty() {
		return Match{Label: Unknown, Distance: math.Inf(1)}, ErrEmptyStore
	}
	if dim := m.source.Dim(); dim > 0 && len(query) != dim {
		return Match{}, &DimensionMismatchError{Expected: dim, Actual: len(query)}
	}
	if err := ValidateEmbedding(query); err != nil {
		return Match{}, err
	}

	best, found := m.scan(query, m.samples(query))
	if !found {
		// The index may come back empty while samples exist; fall back to a full scan.
		best, found = m.scan(query, m.source.All())
	}
	if !found {
		return Match{Label: Unknown, Distance: math.Inf(1)}, ErrEmptyStore
	}
	return best, nil
}

// empty reports whether the source holds no samples at all.
func (m *Matcher) empty() bool {
	for range m.source.All() {
		return false
	}
	return true
}

func (m *Matcher) scan(query []float32, samples iter.Seq2[string, []float32]) (Match, bool) {
	best := Match{Label: Unknown, Distance: math.Inf(1)}
	found := false
	for name, emb := range samples {
		d := m.metric.Distance(query, emb)
		if !found || d < best.Distance || (d == best.Distance && name < best.Label) {
			best = Match{Label: name, Distance: d}
			found = true
		}
	}
	return best, found
}

// Match applies threshold to the nearest sample. A distance at or below threshold
// accepts the identity, anything else is labeled Unknown with the distance kept
// for diagnostics. An empty store yields Unknown at +Inf, not an error.
func (m *Matcher) Match(query []float32, threshold float64) (Match, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return Match{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	best, err := m.Nearest(query)
	switch {
	case errors.Is(err, ErrEmptyStore):
		return best, nil
	case err != nil:
		return Match{}, err
	}
	if best.Distance > threshold {
		best.Label = Unknown
	}
	return best, nil
}

// samples picks the ANN candidates when the source offers them and the store is
// large enough for the index to pay off; otherwise every stored sample.
func (m *Matcher) samples(query []float32) iter.Seq2[string, []float32] {
	if cs, ok := m.source.(CandidateSource); ok && m.candidates > 0 && cs.Len() > m.candidates {
		if seq, ok := cs.Candidates(query, m.candidates); ok {
			return seq
		}
	}
	return m.source.All()
}
