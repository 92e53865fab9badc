package facematch

import (
	"fmt"
	"math"
)

// DuplicatePolicy decides what happens when several detections in one frame
// resolve to the same identity.
type DuplicatePolicy string

const (
	// KeepClosest keeps the lowest-distance detection and relabels the rest Unknown,
	// so one person is never counted twice in a frame. Ties keep the earlier detection.
	KeepClosest DuplicatePolicy = "keep-closest"
	// AllowDuplicates keeps every match as is.
	AllowDuplicates DuplicatePolicy = "allow"
)

// ParseDuplicatePolicy validates a policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case KeepClosest, AllowDuplicates:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want %q or %q)", s, KeepClosest, AllowDuplicates)
	}
}

// Recognizer labels every detection of a frame.
type Recognizer struct {
	matcher   *Matcher
	threshold float64
	policy    DuplicatePolicy
}

// NewRecognizer creates a recognizer. An empty policy means KeepClosest.
func NewRecognizer(matcher *Matcher, threshold float64, policy DuplicatePolicy) (*Recognizer, error) {
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if policy == "" {
		policy = KeepClosest
	}
	if _, err := ParseDuplicatePolicy(string(policy)); err != nil {
		return nil, err
	}
	return &Recognizer{matcher: matcher, threshold: threshold, policy: policy}, nil
}

// Threshold returns the acceptance threshold.
func (r *Recognizer) Threshold() float64 {
	return r.threshold
}

// Policy returns the duplicate policy.
func (r *Recognizer) Policy() DuplicatePolicy {
	return r.policy
}

// Recognize returns one result per detection in input order. An empty frame
// yields an empty slice and an empty store labels everything Unknown.
// A detection whose embedding does not fit the store fails the whole frame.
func (r *Recognizer) Recognize(detections []Detection) ([]RecognitionResult, error) {
	results := make([]RecognitionResult, len(detections))
	for i, det := range detections {
		m, err := r.matcher.Match(det.Embedding, r.threshold)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		results[i] = RecognitionResult{Box: det.Box, Label: m.Label, Distance: m.Distance}
	}

	if r.policy == KeepClosest {
		resolveDuplicates(results)
	}
	return results, nil
}

// resolveDuplicates keeps, per identity, only the closest detection.
func resolveDuplicates(results []RecognitionResult) {
	winner := make(map[string]int, len(results))
	for i, res := range results {
		if !res.Known() {
			continue
		}
		j, seen := winner[res.Label]
		if !seen {
			winner[res.Label] = i
			continue
		}
		if res.Distance < results[j].Distance {
			results[j].Label = Unknown
			winner[res.Label] = i
		} else {
			results[i].Label = Unknown
		}
	}
}
