package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/pkg/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response", "error", err)
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorBody{Error: message})
}

// DomainError maps service errors onto the external contract. The mapping is
// deliberately lossy: several distinct internal failures share one message so
// responses reveal nothing about account existence or challenge state.
func DomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, domain.ErrNoChallenge),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrChallengeExpired):
		Error(w, http.StatusUnauthorized, "invalid or expired code")
	case errors.Is(err, domain.ErrCodeDelivery):
		logger.ErrorContext(r.Context(), "code delivery failed", "error", err)
		Error(w, http.StatusServiceUnavailable, "could not deliver verification code")
	case errors.Is(err, domain.ErrUsernameTaken):
		Error(w, http.StatusConflict, "username already taken")
	case errors.Is(err, domain.ErrEmailTaken):
		Error(w, http.StatusConflict, "email already registered")
	case errors.Is(err, domain.ErrForbidden):
		Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidRole):
		Error(w, http.StatusBadRequest, "invalid role")
	case errors.Is(err, domain.ErrCorruptCredential),
		errors.Is(err, domain.ErrTamperedField):
		// Integrity failures get full detail in the log and none outside.
		logger.ErrorContext(r.Context(), "data integrity failure", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	default:
		logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
