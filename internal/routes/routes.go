package routes

import (
	"net/http"

	"github.com/AnshRaj112/rehab-backend/internal/handlers"
	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
	"github.com/go-chi/chi/v5"
)

// Deps are the handlers and middleware the routes are built from.
type Deps struct {
	Auth  *handlers.AuthHandler
	Video *handlers.VideoHandler

	// Session guards, built with middleware.RequireSession.
	AnySession     func(http.Handler) http.Handler
	PatientSession func(http.Handler) http.Handler
	StaffSession   func(http.Handler) http.Handler

	LoginLimit func(http.Handler) http.Handler
	ResetLimit func(http.Handler) http.Handler
}

// NewDeps builds the session guards from an authenticator. Rate limits
// default to none.
func NewDeps(auth *handlers.AuthHandler, video *handlers.VideoHandler, authn middleware.Authenticator, res clientip.Resolver, secureCookie bool) Deps {
	return Deps{
		Auth:           auth,
		Video:          video,
		AnySession:     middleware.RequireSession(authn, res, secureCookie),
		PatientSession: middleware.RequireSession(authn, res, secureCookie, models.KindPatient),
		StaffSession:   middleware.RequireSession(authn, res, secureCookie, models.KindStaff),
		LoginLimit:     passthrough,
		ResetLimit:     passthrough,
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func SetupRoutes(r chi.Router, d Deps) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"ok"}`))
	})

	// Registration and sign-in
	r.Post("/api/auth/patients/register", d.Auth.RegisterPatient)
	r.With(d.LoginLimit).Post("/api/auth/patients/login", d.Auth.PatientLogin)
	r.With(d.LoginLimit).Post("/api/auth/staff/login", d.Auth.StaffLogin)
	r.Post("/api/auth/logout", d.Auth.Logout)
	r.With(d.AnySession).Get("/api/auth/me", d.Auth.Me)

	// Passwords
	r.With(d.ResetLimit).Post("/api/auth/password/forgot", d.Auth.ForgotPassword)
	r.Post("/api/auth/password/reset", d.Auth.ResetPassword)
	r.With(d.AnySession).Put("/api/auth/password", d.Auth.ChangePassword)

	// Exercise videos
	r.With(d.PatientSession).Post("/api/exercises/{exerciseID}/video-token", d.Video.IssueToken)
	r.With(d.PatientSession).Get("/api/exercises/{exerciseID}/video", d.Video.Stream)

	// Staff
	r.With(d.StaffSession).Delete("/api/staff/patients/{patientID}", d.Auth.DeletePatient)
}
