package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// IdentityLister lists enrolled identities.
type IdentityLister interface {
	Identities() []facematch.IdentitySummary
	Len() int
}

// IdentitiesHandler handles identity administration endpoints
type IdentitiesHandler struct {
	store    IdentityLister
	enroller *facematch.Enroller
	maxBody  int64
}

// NewIdentitiesHandler creates a new identities handler. maxBody limits the size
// of a JSON request body in bytes. A nil store lists no identities.
func NewIdentitiesHandler(store IdentityLister, enroller *facematch.Enroller, maxBody int64) *IdentitiesHandler {
	return &IdentitiesHandler{
		store:    store,
		enroller: enroller,
		maxBody:  maxBody,
	}
}

// IdentityResponse represents an enrolled identity in API responses
type IdentityResponse struct {
	Name       string    `json:"name"`
	Samples    int       `json:"samples"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// IdentitiesResponse represents the identity listing
type IdentitiesResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Count      int                `json:"count"`
	Samples    int                `json:"samples"`
}

// ReplaceRequest represents a request to replace all samples of an identity
type ReplaceRequest struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// List returns enrolled identities sorted by name. The optional q parameter
// filters by name, ignoring case and diacritics.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var summaries []facematch.IdentitySummary
	if h.store != nil {
		summaries = h.store.Identities()
	}
	resp := IdentitiesResponse{
		Identities: make([]IdentityResponse, 0, len(summaries)),
	}
	for _, s := range summaries {
		if query != "" && !facematch.MatchesQuery(s.Name, query) {
			continue
		}
		resp.Identities = append(resp.Identities, IdentityResponse{
			Name:       s.Name,
			Samples:    s.Samples,
			EnrolledAt: s.EnrolledAt,
		})
		resp.Samples += s.Samples
	}
	resp.Count = len(resp.Identities)

	respondJSON(w, http.StatusOK, resp)
}

// Replace discards the samples of an identity and stores the submitted ones
func (h *IdentitiesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)

	var req ReplaceRequest
	if !decodeJSONBody(w, r, h.maxBody, &req) {
		return
	}

	samples, err := h.enroller.Replace(r.Context(), name, req.Embeddings)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	canonical, _ := facematch.CanonicalName(name)
	respondJSON(w, http.StatusOK, EnrollResponse{
		Name:    canonical,
		Samples: samples,
		Added:   len(req.Embeddings),
	})
}

// Delete removes an identity and all of its samples
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)

	if err := h.enroller.Remove(r.Context(), name); err != nil {
		respondServiceError(w, r, err)
		return
	}

	canonical, _ := facematch.CanonicalName(name)
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    canonical,
		"deleted": true,
	})
}

// nameParam returns the {name} URL parameter, unescaping it when the router
// matched on the raw path.
func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
