package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"golang.org/x/sync/errgroup"
)

// EnrollHandler handles enrollment endpoints
type EnrollHandler struct {
	enroller  *facematch.Enroller
	detector  detector.Detector
	maxUpload int64
}

// NewEnrollHandler creates a new enroll handler. maxUpload limits the size of
// each uploaded image and of a JSON request body in bytes.
func NewEnrollHandler(enroller *facematch.Enroller, det detector.Detector, maxUpload int64) *EnrollHandler {
	return &EnrollHandler{
		enroller:  enroller,
		detector:  det,
		maxUpload: maxUpload,
	}
}

// EnrollRequest represents a request to enroll precomputed embeddings
type EnrollRequest struct {
	Name       string      `json:"name"`
	Embeddings [][]float32 `json:"embeddings"`
}

// EnrollResponse reports the identity and how many samples it holds after the write
type EnrollResponse struct {
	Name    string `json:"name"`
	Samples int    `json:"samples"`
	Added   int    `json:"added"`
}

// Enroll adds embeddings to an identity, creating it on first use
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSONBody(w, r, h.maxUpload, &req) {
		return
	}

	h.enroll(w, r, req.Name, len(req.Embeddings), func() (int, error) {
		return h.enroller.Enroll(r.Context(), req.Name, req.Embeddings)
	})
}

// EnrollImages runs uploaded photos through the detector and enrolls the best
// face of each under the submitted name
func (h *EnrollHandler) EnrollImages(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		respondError(w, http.StatusServiceUnavailable, "face detector not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload*constants.MaxEnrollImages+constants.MultipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := facematch.CanonicalName(name); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images uploaded")
		return
	}
	if len(files) > constants.MaxEnrollImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("too many images (max %d)", constants.MaxEnrollImages))
		return
	}

	images := make([][]byte, len(files))
	for i, fh := range files {
		data, err := readUpload(fh, h.maxUpload)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		images[i] = data
	}

	perImage := make([][]facematch.Detection, len(images))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(constants.DefaultDetectConcurrency)
	for i, data := range images {
		g.Go(func() error {
			detections, err := h.detector.DetectFaces(ctx, data)
			if err != nil {
				return fmt.Errorf("image %s: %w", sanitizeForLog(files[i].Filename), err)
			}
			perImage[i] = detections
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.enroll(w, r, name, len(perImage), func() (int, error) {
		return h.enroller.EnrollDetections(r.Context(), name, perImage)
	})
}

func (h *EnrollHandler) enroll(w http.ResponseWriter, r *http.Request, name string, added int, write func() (int, error)) {
	samples, err := write()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	canonical, _ := facematch.CanonicalName(name)
	respondJSON(w, http.StatusCreated, EnrollResponse{
		Name:    canonical,
		Samples: samples,
		Added:   added,
	})
}
