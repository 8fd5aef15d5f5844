package handlers

import (
	"errors"
	"net/http"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/services"
)

// respondServiceError maps a service error onto the response envelope.
// Credential failures never say whether the identity exists.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		respondFields(w, "Validation failed", ve.FieldMessages())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrAccountLocked):
		respondError(w, http.StatusUnauthorized, "Account temporarily locked. Please try again later.")
	case errors.Is(err, services.ErrSessionExpired):
		respondError(w, http.StatusUnauthorized, "Session expired. Please sign in again.")
	case errors.Is(err, services.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, services.ErrScopeMismatch):
		respondError(w, http.StatusForbidden, "Token is not valid for this resource")
	case errors.Is(err, services.ErrForbidden):
		respondError(w, http.StatusForbidden, "Forbidden")
	case services.IsTokenError(err):
		respondError(w, http.StatusUnprocessableEntity, "Invalid or expired token")
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrDecryptionFailure):
		logx.Alertf("%s: %v", op, err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	default:
		logx.Errorf("%s: %v", op, err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
