// Package detector is a client for the external face detection and embedding service.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const defaultDetectorURL = "http://localhost:8000"

// ErrUnavailable is returned when the detector cannot be reached or fails.
var ErrUnavailable = errors.New("face detector unavailable")

// Detector finds faces in an image and embeds each of them.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]facematch.Detection, error)
}

// Client calls the detector service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a detector client. A zero timeout means no client-side timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FaceDetection is a single face as reported by the service.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body of POST /embed/face.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// DetectFaces validates imageData, sends it to the service and returns one
// detection per face in the order the service reported them.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]facematch.Detection, error) {
	info, err := ValidateImage(imageData)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", imageData, info)
	if err != nil {
		return nil, err
	}

	var resp FaceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", ErrUnavailable, err)
	}
	return toDetections(resp)
}

// toDetections converts corner boxes to x/y/width/height and checks each face.
func toDetections(resp FaceResponse) ([]facematch.Detection, error) {
	detections := make([]facematch.Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		box, err := facematch.BoxFromCorners(face.BBox)
		if err != nil {
			return nil, fmt.Errorf("%w: face %d: %w", ErrUnavailable, face.FaceIndex, err)
		}
		if len(face.Embedding) == 0 {
			return nil, fmt.Errorf("%w: face %d has no embedding", ErrUnavailable, face.FaceIndex)
		}
		if face.Dim != 0 && face.Dim != len(face.Embedding) {
			return nil, fmt.Errorf("%w: face %d reports dim %d but carries %d values", ErrUnavailable, face.FaceIndex, face.Dim, len(face.Embedding))
		}
		detections = append(detections, facematch.Detection{
			Box:       box,
			Embedding: face.Embedding,
			Score:     face.DetScore,
		})
	}
	return detections, nil
}

// postMultipartImage posts imageData as the multipart field "file".
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, info ImageInfo) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="image.%s"`, info.Format))
	h.Set("Content-Type", info.MIMEType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API error (status %d): %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

var _ Detector = (*Client)(nil)
