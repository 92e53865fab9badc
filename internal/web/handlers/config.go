package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// DimensionSource reports the embedding dimension currently in effect.
type DimensionSource interface {
	Dim() int
}

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	store  DimensionSource
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, store DimensionSource) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		store:  store,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Metric          string  `json:"metric"`
	Threshold       float64 `json:"threshold"`
	Dim             int     `json:"dim"`
	DuplicatePolicy string  `json:"duplicate_policy"`
	IndexMode       string  `json:"index_mode"`
	Backend         string  `json:"backend"`
}

// Get returns the matching configuration the service runs with
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	dim := h.config.Matching.Dim
	if h.store != nil {
		// The store knows the dimension once the first identity fixed it.
		dim = h.store.Dim()
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		Metric:          h.config.Matching.Metric,
		Threshold:       h.config.Matching.Threshold,
		Dim:             dim,
		DuplicatePolicy: h.config.Matching.DuplicatePolicy,
		IndexMode:       h.config.Index.Mode,
		Backend:         h.config.Store.Backend,
	})
}
