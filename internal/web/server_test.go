package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := database.NewStore(context.Background(), mock.NewMockBackend(), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	recognizer, err := facematch.NewRecognizer(facematch.NewMatcher(store, facematch.Cosine{}), 0.4, facematch.KeepClosest)
	if err != nil {
		t.Fatalf("failed to create recognizer: %v", err)
	}

	cfg := &config.Config{
		Matching: config.MatchingConfig{Metric: "cosine", Threshold: 0.4, DuplicatePolicy: "keep-closest"},
		Index:    config.IndexConfig{Mode: database.IndexExact},
		Web:      config.WebConfig{Host: "127.0.0.1", Port: 8085, MaxUploadMB: 1},
	}
	return NewServer(cfg, Deps{
		Store:      store,
		Recognizer: recognizer,
		Enroller:   facematch.NewEnroller(store, nil),
	})
}

func serve(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_AttendanceFlow(t *testing.T) {
	s := newTestServer(t)

	if rec := serve(t, s, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}

	rec := serve(t, s, http.MethodPost, "/api/v1/enroll", map[string]any{
		"name":       "Anna Svobodová",
		"embeddings": [][]float32{{1, 0, 0}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, s, http.MethodPost, "/api/v1/recognize", map[string]any{
		"detections": []map[string]any{{"embedding": []float32{0.95, 0.05, 0}}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recognize: %d %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Results []struct {
			Label string `json:"label"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Label != "Anna Svobodová" {
		t.Errorf("unexpected recognition: %s", rec.Body.String())
	}

	// Names with spaces and diacritics are addressed URL-escaped.
	rec = serve(t, s, http.MethodDelete, "/api/v1/identities/Anna%20Svobodov%C3%A1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, s, http.MethodGet, "/api/v1/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("config: %d", rec.Code)
	}
}

func TestServer_ImageEndpointsWithoutDetector(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize/frame", nil)
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", recorder.Code)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	if rec := serve(t, s, http.MethodGet, "/api/v1/subjects", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_NilStore(t *testing.T) {
	cfg := &config.Config{
		Matching: config.MatchingConfig{Metric: "cosine", Threshold: 0.4, Dim: 512, DuplicatePolicy: "keep-closest"},
		Index:    config.IndexConfig{Mode: database.IndexExact},
		Web:      config.WebConfig{Host: "127.0.0.1", Port: 8085, MaxUploadMB: 1},
	}
	s := NewServer(cfg, Deps{})

	rec := serve(t, s, http.MethodGet, "/api/v1/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("config: %d %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Dim int `json:"dim"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Dim != 512 {
		t.Errorf("expected configured dim 512, got %d", result.Dim)
	}

	if rec := serve(t, s, http.MethodGet, "/api/v1/identities", nil); rec.Code != http.StatusOK {
		t.Errorf("identities: %d %s", rec.Code, rec.Body.String())
	}
}
