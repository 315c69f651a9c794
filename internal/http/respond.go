package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/ratelimit"
)

type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Details string              `json:"details,omitempty"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps domain errors to HTTP status codes. Expired and
// consumed resources look exactly like missing ones.
func handleServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "request has invalid fields",
			Code:   "invalid_argument",
			Fields: verr.Fields,
		})
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrCurrencyMismatch):
		respondError(w, http.StatusConflict, "currency_mismatch", "all cart lines must share one currency")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrExpired), errors.Is(err, domain.ErrAlreadyConsumed):
		respondError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, ratelimit.ErrLimited):
		respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
	case errors.Is(err, domain.ErrTransientWrite):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "storage temporarily unavailable, retry")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransientWrite)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
