package facematch

import "fmt"

// BoxFromCorners converts an [x1, y1, x2, y2] pixel box, as reported by the
// detector, to x/y/width/height form.
func BoxFromCorners(corners []float64) (BoundingBox, error) {
	if len(corners) != 4 {
		return BoundingBox{}, fmt.Errorf("bounding box needs 4 coordinates, got %d", len(corners))
	}
	x1, y1, x2, y2 := corners[0], corners[1], corners[2], corners[3]
	if x2 < x1 || y2 < y1 {
		return BoundingBox{}, fmt.Errorf("bounding box corners out of order: %v", corners)
	}
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, nil
}

// Corners returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Corners() []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// BestDetection picks the detection to enroll from a single image: highest
// detector score, larger box on ties. ok is false for an empty slice.
func BestDetection(detections []Detection) (best Detection, ok bool) {
	for i, d := range detections {
		if i == 0 || d.Score > best.Score || (d.Score == best.Score && d.Box.Area() > best.Box.Area()) {
			best = d
			ok = true
		}
	}
	return best, ok
}
