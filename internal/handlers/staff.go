package handlers

import (
	"net/http"

	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DeletePatient soft-deletes a patient. Requires a staff session.
func (h *AuthHandler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err := h.svc.SoftDeletePatient(r.Context(), session, patientID, middleware.Meta(h.ip, r)); err != nil {
		respondServiceError(w, "delete patient", err)
		return
	}
	respondMessage(w, http.StatusOK, "Patient deleted")
}
