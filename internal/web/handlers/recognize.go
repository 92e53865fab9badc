package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// RecognizeHandler handles recognition endpoints
type RecognizeHandler struct {
	recognizer *facematch.Recognizer
	detector   detector.Detector
	maxUpload  int64
}

// NewRecognizeHandler creates a new recognize handler. maxUpload limits the
// size of an uploaded frame and of a JSON request body in bytes.
func NewRecognizeHandler(recognizer *facematch.Recognizer, det detector.Detector, maxUpload int64) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: recognizer,
		detector:   det,
		maxUpload:  maxUpload,
	}
}

// DetectionRequest is one detected face submitted for recognition
type DetectionRequest struct {
	Box       facematch.BoundingBox `json:"box"`
	Embedding []float32             `json:"embedding"`
}

// RecognizeRequest represents a request to recognize the faces of one frame
type RecognizeRequest struct {
	Detections []DetectionRequest `json:"detections"`
}

// RecognitionResponse is the outcome for one face. Distance is null when
// nothing is enrolled.
type RecognitionResponse struct {
	Box      facematch.BoundingBox `json:"box"`
	Label    string                `json:"label"`
	Distance *float64              `json:"distance"`
	Known    bool                  `json:"known"`
}

// RecognizeResponse represents the recognition result of one frame
type RecognizeResponse struct {
	Results   []RecognitionResponse `json:"results"`
	Threshold float64               `json:"threshold"`
	Faces     int                   `json:"faces"`
	Known     int                   `json:"known"`
}

// Recognize labels detections that were already embedded by the caller
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if !decodeJSONBody(w, r, h.maxUpload, &req) {
		return
	}

	detections := make([]facematch.Detection, len(req.Detections))
	for i, d := range req.Detections {
		detections[i] = facematch.Detection{Box: d.Box, Embedding: d.Embedding}
	}

	h.respondResults(w, r, detections)
}

// RecognizeFrame runs an uploaded frame through the detector and labels every face
func (h *RecognizeHandler) RecognizeFrame(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		respondError(w, http.StatusServiceUnavailable, "face detector not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+constants.MultipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one image is required")
		return
	}

	data, err := readUpload(files[0], h.maxUpload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	detections, err := h.detector.DetectFaces(r.Context(), data)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.respondResults(w, r, detections)
}

func (h *RecognizeHandler) respondResults(w http.ResponseWriter, r *http.Request, detections []facematch.Detection) {
	results, err := h.recognizer.Recognize(detections)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := RecognizeResponse{
		Results:   make([]RecognitionResponse, len(results)),
		Threshold: h.recognizer.Threshold(),
		Faces:     len(results),
	}
	for i, res := range results {
		resp.Results[i] = RecognitionResponse{
			Box:      res.Box,
			Label:    res.Label,
			Distance: distanceJSON(res.Distance),
			Known:    res.Known(),
		}
		if res.Known() {
			resp.Known++
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
