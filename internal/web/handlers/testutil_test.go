package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Matching: config.MatchingConfig{
			Metric:          facematch.MetricCosine,
			Threshold:       0.4,
			Dim:             0,
			DuplicatePolicy: string(facematch.KeepClosest),
		},
		Index: config.IndexConfig{Mode: database.IndexExact, Candidates: 32},
		Store: config.StoreConfig{Backend: config.BackendFile, Path: "faces.gob"},
		Web:   config.WebConfig{MaxUploadMB: 1},
	}
}

// testStore creates a store over an in-memory backend. The dimension is taken
// from the first enrollment.
func testStore(t *testing.T, rows ...database.StoredEmbedding) *database.Store {
	t.Helper()
	store, err := database.NewStore(context.Background(), mock.NewMockBackend(rows...), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

// enrollTestIdentity writes samples for name straight into the store
func enrollTestIdentity(t *testing.T, store *database.Store, name string, embeddings ...[]float32) {
	t.Helper()
	if _, err := store.AddBatch(context.Background(), name, embeddings); err != nil {
		t.Fatalf("failed to enroll %s: %v", name, err)
	}
}

// testRecognizer creates a cosine recognizer over store
func testRecognizer(t *testing.T, store *database.Store, threshold float64, policy facematch.DuplicatePolicy) *facematch.Recognizer {
	t.Helper()
	recognizer, err := facematch.NewRecognizer(facematch.NewMatcher(store, facematch.Cosine{}), threshold, policy)
	if err != nil {
		t.Fatalf("failed to create recognizer: %v", err)
	}
	return recognizer
}

// fakeDetector returns canned detections keyed by the uploaded bytes
type fakeDetector struct {
	mu    sync.Mutex
	faces map[string][]facematch.Detection
	err   error
	calls int
}

func (f *fakeDetector) DetectFaces(ctx context.Context, image []byte) ([]facematch.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.faces[string(image)], nil
}

// uploadFile is one file part of a multipart request
type uploadFile struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a multipart/form-data POST request
func multipartRequest(t *testing.T, path string, fields map[string]string, files ...uploadFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// jsonRequest builds a request with a JSON encoded body
func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// oversizeEmbedding returns a vector whose JSON encoding exceeds testMaxUpload
func oversizeEmbedding() []float32 {
	return make([]float32, testMaxUpload)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
