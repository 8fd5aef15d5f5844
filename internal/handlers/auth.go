package handlers

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
)

// AuthHandler serves registration, sign-in and session endpoints.
type AuthHandler struct {
	svc          *services.AuthService
	ip           clientip.Resolver
	secureCookie bool
}

// NewAuthHandler creates the handler. secureCookie marks the session cookie Secure.
func NewAuthHandler(svc *services.AuthService, ip clientip.Resolver, secureCookie bool) *AuthHandler {
	return &AuthHandler{svc: svc, ip: ip, secureCookie: secureCookie}
}

// PatientRegisterRequest is the body of patient registration.
type PatientRegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	BirthDate string `json:"birth_date,omitempty"`
	Password  string `json:"password"`
}

// PatientLoginRequest signs a patient in by email.
type PatientLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffLoginRequest signs a staff member in by staff number.
type StaffLoginRequest struct {
	StaffNumber string `json:"staff_number"`
	Password    string `json:"password"`
}

// ChangePasswordRequest replaces the password of the signed-in principal.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// SessionResponse is returned after sign-in.
type SessionResponse struct {
	Principal models.PrincipalSummary `json:"principal"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// RegisterPatient handles patient self-registration.
func (h *AuthHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, err := h.svc.RegisterPatient(r.Context(), models.NewPatientAttrs{
		Name:      req.Name,
		Email:     req.Email,
		BirthDate: req.BirthDate,
		Password:  req.Password,
	}, middleware.Meta(h.ip, r))
	if err != nil {
		respondServiceError(w, "register patient", err)
		return
	}
	respondData(w, http.StatusCreated, summary)
}

// PatientLogin signs a patient in. An unreadable body is an attempt with
// empty credentials, so it is audited like any other failed login.
func (h *AuthHandler) PatientLogin(w http.ResponseWriter, r *http.Request) {
	var req PatientLoginRequest
	if err := readJSON(w, r, &req); err != nil {
		logx.Debugf("patient login body: %v", err)
		req = PatientLoginRequest{}
	}
	h.login(w, r, models.KindPatient, req.Email, req.Password)
}

// StaffLogin signs a staff member in.
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req StaffLoginRequest
	if err := readJSON(w, r, &req); err != nil {
		logx.Debugf("staff login body: %v", err)
		req = StaffLoginRequest{}
	}
	h.login(w, r, models.KindStaff, req.StaffNumber, req.Password)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, kind models.PrincipalKind, identity, password string) {
	res, err := h.svc.Login(r.Context(), kind, identity, password, middleware.SessionToken(r), middleware.Meta(h.ip, r))
	if err != nil {
		respondServiceError(w, "login", err)
		return
	}
	h.setSessionCookie(w, res.Session)
	respondData(w, http.StatusOK, SessionResponse{
		Principal: res.Principal,
		ExpiresAt: res.Session.LastActivity.Add(services.SessionTimeout(kind)),
	})
}

// Logout ends the current session. Signing out without a session still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), middleware.SessionToken(r), middleware.Meta(h.ip, r)); err != nil {
		respondServiceError(w, "logout", err)
		return
	}
	middleware.ClearSessionCookie(w, h.secureCookie)
	respondMessage(w, http.StatusOK, "Signed out")
}

// Me returns the signed-in principal. Requires RequireSession.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	summary, err := h.svc.Summary(r.Context(), session)
	if err != nil {
		respondServiceError(w, "current principal", err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

// ChangePassword replaces the password and rotates the session. Requires RequireSession.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := h.svc.ChangePassword(r.Context(), session, req.CurrentPassword, req.NewPassword, middleware.Meta(h.ip, r))
	if err != nil {
		respondServiceError(w, "change password", err)
		return
	}
	h.setSessionCookie(w, next)
	respondMessage(w, http.StatusOK, "Password updated")
}

// The cookie itself lives for the browser session; expiry is enforced server-side.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, s models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
