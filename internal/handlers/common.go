package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"anon-social-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, category, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: category, Message: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// decodeJSON reads the request body into dst, answering 400 on failure and
// 413 when the body exceeds the configured limit
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, models.ErrValidation.Error(), "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		respondError(w, models.ErrValidation.Error(), "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps an error category to an HTTP status
func statusFor(kind error) int {
	switch {
	case errors.Is(kind, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(kind, models.ErrPreconditionFailed), errors.Is(kind, models.ErrEmptyAudience):
		return http.StatusUnprocessableEntity
	case errors.Is(kind, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(kind, models.ErrTransientStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondServiceError renders a service error with its category and explanation.
// Uncategorized errors are logged and hidden from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.Kind(err)
	if kind == nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, "internal", "internal server error", http.StatusInternalServerError)
		return
	}

	message := models.Explanation(err)
	if errors.Is(kind, models.ErrTransientStore) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Transient store failure")
		message = "temporarily unavailable, please retry"
	}
	respondError(w, kind.Error(), message, statusFor(kind))
}
