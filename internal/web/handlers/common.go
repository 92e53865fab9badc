package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errRequestBodyTooLarge is reported when a JSON body exceeds the upload limit.
const errRequestBodyTooLarge = "request body too large"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSONBody decodes a request body of at most limit bytes into dst. On
// failure it writes the error response and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, errRequestBodyTooLarge)
			return false
		}
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, facematch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, facematch.ErrInvalidName),
		errors.Is(err, facematch.ErrInvalidThreshold),
		errors.Is(err, detector.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, facematch.ErrNoFaceDetected),
		errors.Is(err, facematch.ErrDimensionMismatch),
		errors.Is(err, facematch.ErrInvalidEmbedding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, detector.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status it maps to. Internal errors are
// logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		respondError(w, status, "internal error")
		return
	}
	if status == http.StatusBadGateway {
		log.Printf("%s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
	}
	respondError(w, status, err.Error())
}

// distanceJSON reports +Inf (nothing enrolled) as null.
func distanceJSON(d float64) *float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return &d
}

// readUpload reads one uploaded file, failing when it exceeds limit bytes.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", sanitizeForLog(fh.Filename))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", sanitizeForLog(fh.Filename))
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file too large: %s", sanitizeForLog(fh.Filename))
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
