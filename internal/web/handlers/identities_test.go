package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

func identitiesFixture(t *testing.T) (*IdentitiesHandler, *facematch.Matcher) {
	t.Helper()
	store := testStore(t)
	enrollTestIdentity(t, store, "Jiří Novák", []float32{1, 0}, []float32{0.9, 0.1})
	enrollTestIdentity(t, store, "Alice", []float32{0, 1})
	enrollTestIdentity(t, store, "Bob", []float32{-1, 0})
	return NewIdentitiesHandler(store, facematch.NewEnroller(store, nil), testMaxUpload), facematch.NewMatcher(store, facematch.Cosine{})
}

func TestIdentitiesHandler_List(t *testing.T) {
	handler, _ := identitiesFixture(t)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result IdentitiesResponse
	parseJSONResponse(t, recorder, &result)

	if result.Count != 3 || result.Samples != 4 {
		t.Errorf("expected 3 identities with 4 samples, got %d/%d", result.Count, result.Samples)
	}
	wantOrder := []string{"Alice", "Bob", "Jiří Novák"}
	for i, want := range wantOrder {
		if result.Identities[i].Name != want {
			t.Errorf("identity %d: expected %s, got %s", i, want, result.Identities[i].Name)
		}
	}
	if result.Identities[2].Samples != 2 {
		t.Errorf("expected 2 samples for Jiří Novák, got %d", result.Identities[2].Samples)
	}
}

func TestIdentitiesHandler_List_Query(t *testing.T) {
	handler, _ := identitiesFixture(t)

	tests := []struct {
		query string
		want  int
	}{
		{"jiri", 1},
		{"NOVAK", 1},
		{"b", 1},
		{"zz", 0},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities?q="+tc.query, nil))

			var result IdentitiesResponse
			parseJSONResponse(t, recorder, &result)
			if result.Count != tc.want || len(result.Identities) != tc.want {
				t.Errorf("q=%s: expected %d identities, got %d", tc.query, tc.want, result.Count)
			}
		})
	}
}

func TestIdentitiesHandler_Replace(t *testing.T) {
	handler, matcher := identitiesFixture(t)

	req := jsonRequest(t, http.MethodPut, "/api/v1/identities/Alice", ReplaceRequest{
		Embeddings: [][]float32{{0.7, 0.7}},
	})
	req = requestWithChiParams(req, map[string]string{"name": "Alice"})
	recorder := httptest.NewRecorder()
	handler.Replace(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result EnrollResponse
	parseJSONResponse(t, recorder, &result)
	if result.Name != "Alice" || result.Samples != 1 {
		t.Errorf("unexpected response: %+v", result)
	}

	m, err := matcher.Match([]float32{0, 1}, 0.1)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Label == "Alice" {
		t.Error("old sample of Alice still matches after replace")
	}
}

func TestIdentitiesHandler_Replace_Errors(t *testing.T) {
	handler, _ := identitiesFixture(t)

	tests := []struct {
		name       string
		param      string
		payload    any
		wantStatus int
	}{
		{"dimension mismatch", "Alice", ReplaceRequest{Embeddings: [][]float32{{1, 0, 0}}}, http.StatusUnprocessableEntity},
		{"no embeddings", "Alice", ReplaceRequest{}, http.StatusUnprocessableEntity},
		{"invalid body", "Alice", "not an object", http.StatusBadRequest},
		{"body too large", "Alice", ReplaceRequest{Embeddings: [][]float32{oversizeEmbedding()}}, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPut, "/api/v1/identities/"+tc.param, tc.payload)
			req = requestWithChiParams(req, map[string]string{"name": tc.param})
			recorder := httptest.NewRecorder()
			handler.Replace(recorder, req)

			assertStatusCode(t, recorder, tc.wantStatus)
		})
	}
}

func TestIdentitiesHandler_List_NoStore(t *testing.T) {
	handler := NewIdentitiesHandler(nil, nil, testMaxUpload)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result IdentitiesResponse
	parseJSONResponse(t, recorder, &result)
	if result.Count != 0 || len(result.Identities) != 0 {
		t.Errorf("expected an empty listing, got %+v", result)
	}
}

func TestIdentitiesHandler_Delete(t *testing.T) {
	handler, matcher := identitiesFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/identities/Ji%C5%99%C3%AD%20Nov%C3%A1k", nil)
	req = requestWithChiParams(req, map[string]string{"name": "Ji%C5%99%C3%AD%20Nov%C3%A1k"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["name"] != "Jiří Novák" || result["deleted"] != true {
		t.Errorf("unexpected response: %v", result)
	}

	m, err := matcher.Match([]float32{1, 0}, 0.4)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if m.Label != facematch.Unknown {
		t.Errorf("deleted identity still matches as %s", m.Label)
	}
}

func TestIdentitiesHandler_Delete_NotFound(t *testing.T) {
	handler, _ := identitiesFixture(t)

	req := requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/api/v1/identities/Zoe", nil), map[string]string{"name": "Zoe"})
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
