package facematch

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(x, y float32) Detection {
	return Detection{
		Box:       BoundingBox{X: float64(x) * 100, Y: float64(y) * 100, Width: 40, Height: 40},
		Embedding: []float32{x, y},
	}
}

func newTestRecognizer(t *testing.T, src EmbeddingSource, policy DuplicatePolicy) *Recognizer {
	t.Helper()
	r, err := NewRecognizer(NewMatcher(src, Euclidean{}), 0.5, policy)
	require.NoError(t, err)
	return r
}

func TestRecognizer_EmptyFrame(t *testing.T) {
	r := newTestRecognizer(t, aliceAndBob(), "")

	results, err := r.Recognize(nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRecognizer_PreservesOrderAndLength(t *testing.T) {
	r := newTestRecognizer(t, aliceAndBob(), AllowDuplicates)

	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d detections", n), func(t *testing.T) {
			detections := make([]Detection, n)
			for i := range detections {
				detections[i] = detection(float32(i)*0.9, 0)
			}
			results, err := r.Recognize(detections)
			require.NoError(t, err)
			require.Len(t, results, n)
			for i, res := range results {
				assert.Equal(t, detections[i].Box, res.Box)
			}
		})
	}
}

func TestRecognizer_LabelsKnownAndUnknown(t *testing.T) {
	r := newTestRecognizer(t, aliceAndBob(), KeepClosest)

	results, err := r.Recognize([]Detection{
		detection(0.85, 0),
		detection(5, 5),
		detection(0.02, 0),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Bob", results[0].Label)
	assert.Equal(t, Unknown, results[1].Label)
	assert.False(t, results[1].Known())
	assert.Equal(t, "Alice", results[2].Label)
}

func TestRecognizer_EmptyStoreLabelsEverythingUnknown(t *testing.T) {
	r := newTestRecognizer(t, &memSource{}, KeepClosest)

	results, err := r.Recognize([]Detection{detection(0, 0), detection(1, 1)})
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, Unknown, res.Label)
		assert.True(t, math.IsInf(res.Distance, 1))
	}
}

func TestRecognizer_DuplicateIdentity(t *testing.T) {
	src := &memSource{}
	src.add("Alice", 0, 0)
	src.add("Bob", 5, 0)

	// Both detections match Alice, at 0.3 and 0.1.
	frame := []Detection{detection(0.3, 0), detection(0.1, 0)}

	t.Run("keep-closest", func(t *testing.T) {
		r := newTestRecognizer(t, src, KeepClosest)
		for range 10 {
			results, err := r.Recognize(frame)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, Unknown, results[0].Label)
			assert.InDelta(t, 0.3, results[0].Distance, 1e-6)
			assert.Equal(t, "Alice", results[1].Label)
			assert.InDelta(t, 0.1, results[1].Distance, 1e-6)
		}
	})

	t.Run("allow", func(t *testing.T) {
		r := newTestRecognizer(t, src, AllowDuplicates)
		for range 10 {
			results, err := r.Recognize(frame)
			require.NoError(t, err)
			assert.Equal(t, "Alice", results[0].Label)
			assert.Equal(t, "Alice", results[1].Label)
		}
	})

	t.Run("tie keeps earlier detection", func(t *testing.T) {
		r := newTestRecognizer(t, src, KeepClosest)
		results, err := r.Recognize([]Detection{detection(0, 0.2), detection(0.2, 0)})
		require.NoError(t, err)
		assert.Equal(t, "Alice", results[0].Label)
		assert.Equal(t, Unknown, results[1].Label)
	})
}

func TestRecognizer_DimensionMismatchFailsFrame(t *testing.T) {
	r := newTestRecognizer(t, aliceAndBob(), KeepClosest)

	_, err := r.Recognize([]Detection{detection(0, 0), {Embedding: []float32{1, 2, 3}}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "detection 1")
}

func TestNewRecognizer_Validation(t *testing.T) {
	m := NewMatcher(&memSource{}, nil)

	_, err := NewRecognizer(m, -1, KeepClosest)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewRecognizer(m, 0.4, "first-wins")
	assert.Error(t, err)

	r, err := NewRecognizer(m, 0.4, "")
	require.NoError(t, err)
	assert.Equal(t, KeepClosest, r.Policy())
	assert.InDelta(t, 0.4, r.Threshold(), 0)
}

func TestParseDuplicatePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DuplicatePolicy
		wantErr bool
	}{
		{"keep-closest", KeepClosest, false},
		{"allow", AllowDuplicates, false},
		{"", "", true},
		{"KEEP-CLOSEST", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDuplicatePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
