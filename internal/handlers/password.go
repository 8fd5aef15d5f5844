package handlers

import (
	"net/http"

	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/models"
)

// ForgotPasswordRequest asks for a reset link.
type ForgotPasswordRequest struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
}

// ResetPasswordRequest completes a reset with the token from the link.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

const forgotPasswordMessage = "If an account with that email exists, a reset link has been sent."

// ForgotPassword answers identically whether or not the email is known.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind := models.PrincipalKind(req.Kind)
	if req.Kind == "" {
		kind = models.KindPatient
	}
	if err := h.svc.RequestPasswordReset(r.Context(), kind, req.Email, middleware.Meta(h.ip, r)); err != nil {
		respondServiceError(w, "request password reset", err)
		return
	}
	respondMessage(w, http.StatusOK, forgotPasswordMessage)
}

// ResetPassword redeems a reset token and sets the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, middleware.Meta(h.ip, r)); err != nil {
		respondServiceError(w, "complete password reset", err)
		return
	}
	respondMessage(w, http.StatusOK, "Password has been reset. Please sign in.")
}
