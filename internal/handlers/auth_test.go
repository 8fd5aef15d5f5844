package handlers_test

import (
	"net/http"
	"testing"

	"github.com/AnshRaj112/rehab-backend/internal/handlers"
	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPatient(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	rep := c.do(http.MethodPost, "/api/auth/patients/register", handlers.PatientRegisterRequest{
		Name:      "Jane Doe",
		Email:     patientEmail,
		BirthDate: "1990-04-01",
		Password:  patientPassword,
	})
	require.Equal(t, http.StatusCreated, rep.code, string(rep.body))
	assert.Equal(t, "success", rep.env.Status)
	assert.Equal(t, patientEmail, dataField(t, rep, "email"))
	assert.Equal(t, "patient", dataField(t, rep, "kind"))

	rep = c.do(http.MethodPost, "/api/auth/patients/register", handlers.PatientRegisterRequest{
		Name:     "Jane Again",
		Email:    patientEmail,
		Password: patientPassword,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rep.code)
	assert.Equal(t, "error", rep.env.Status)
	assert.Contains(t, rep.env.Errors, "email")
}

func TestRegisterPatientBadBody(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	rep := c.do(http.MethodPost, "/api/auth/patients/register", "not an object")
	assert.Equal(t, http.StatusUnprocessableEntity, rep.code)
	assert.Equal(t, "Invalid request body", rep.env.Message)
}

func TestPatientLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	rep := c.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rep.code)

	rep = c.loginPatient(patientPassword)
	require.Equal(t, http.StatusOK, rep.code, string(rep.body))
	principal := dataField(t, rep, "principal").(map[string]any)
	assert.Equal(t, "Jane Doe", principal["name"])
	assert.NotEmpty(t, dataField(t, rep, "expires_at"))

	var session *http.Cookie
	for _, ck := range rep.header.Values("Set-Cookie") {
		parsed, err := http.ParseSetCookie(ck)
		require.NoError(t, err)
		if parsed.Name == middleware.SessionCookieName {
			session = parsed
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)

	rep = c.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rep.code)
	assert.Equal(t, patientEmail, dataField(t, rep, "email"))
}

func TestLoginFailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	wrong := c.loginPatient("wrong-password-1")
	unknown := c.do(http.MethodPost, "/api/auth/patients/login", handlers.PatientLoginRequest{
		Email:    "nobody@example.com",
		Password: patientPassword,
	})
	empty := c.do(http.MethodPost, "/api/auth/patients/login", handlers.PatientLoginRequest{})

	for _, rep := range []reply{wrong, unknown, empty} {
		assert.Equal(t, http.StatusUnauthorized, rep.code)
		assert.Equal(t, "Invalid credentials", rep.env.Message)
	}
}

func TestLoginRejectionsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	attempts := []struct {
		name string
		path string
		body any
	}{
		{"empty password", "/api/auth/patients/login", handlers.PatientLoginRequest{Email: patientEmail}},
		{"empty email", "/api/auth/patients/login", handlers.PatientLoginRequest{Password: patientPassword}},
		{"unreadable body", "/api/auth/patients/login", "not an object"},
		{"empty staff number", "/api/auth/staff/login", handlers.StaffLoginRequest{Password: "Therapist-pass"}},
		{"unreadable staff body", "/api/auth/staff/login", []int{1, 2}},
	}
	for _, a := range attempts {
		t.Run(a.name, func(t *testing.T) {
			before := len(env.store.AuditEntries())
			rep := c.do(http.MethodPost, a.path, a.body)
			assert.Equal(t, http.StatusUnauthorized, rep.code)
			assert.Equal(t, "Invalid credentials", rep.env.Message)

			entries := env.store.AuditEntries()
			require.Len(t, entries, before+1)
			last := entries[len(entries)-1]
			assert.Equal(t, models.ActionLoginFailed, last.Action)
			assert.Equal(t, models.AuditFailure, last.Status)
		})
	}
}

func TestLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	for range 5 {
		assert.Equal(t, http.StatusUnauthorized, c.loginPatient("wrong-password-1").code)
	}
	rep := c.loginPatient(patientPassword)
	assert.Equal(t, http.StatusUnauthorized, rep.code)
	assert.Contains(t, rep.env.Message, "locked")
}

func TestStaffRoutes(t *testing.T) {
	env := newTestEnv(t)
	patientID := env.registerPatient(t)
	env.provisionStaff(t)

	patient := env.client(t)
	require.Equal(t, http.StatusOK, patient.loginPatient(patientPassword).code)
	rep := patient.do(http.MethodDelete, "/api/staff/patients/"+patientID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rep.code)

	staff := env.client(t)
	rep = staff.loginStaff()
	require.Equal(t, http.StatusOK, rep.code, string(rep.body))
	principal := dataField(t, rep, "principal").(map[string]any)
	assert.Equal(t, staffNumber, principal["staff_number"])
	assert.Equal(t, "therapist", principal["role"])

	rep = staff.do(http.MethodDelete, "/api/staff/patients/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rep.code)

	rep = staff.do(http.MethodDelete, "/api/staff/patients/"+patientID.String(), nil)
	assert.Equal(t, http.StatusOK, rep.code)

	rep = patient.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rep.code, "deleted patient is signed out")

	rep = staff.do(http.MethodDelete, "/api/staff/patients/"+patientID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rep.code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	rep := c.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rep.code, "signing out without a session")

	require.Equal(t, http.StatusOK, c.loginPatient(patientPassword).code)
	rep = c.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rep.code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/auth/me", nil).code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)
	require.Equal(t, http.StatusOK, c.loginPatient(patientPassword).code)

	rep := c.do(http.MethodPut, "/api/auth/password", handlers.ChangePasswordRequest{
		CurrentPassword: "wrong-password-1",
		NewPassword:     "brand-new-pass-2",
	})
	assert.Equal(t, http.StatusUnauthorized, rep.code)

	rep = c.do(http.MethodPut, "/api/auth/password", handlers.ChangePasswordRequest{
		CurrentPassword: patientPassword,
		NewPassword:     "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rep.code)
	assert.Contains(t, rep.env.Errors, "password")

	rep = c.do(http.MethodPut, "/api/auth/password", handlers.ChangePasswordRequest{
		CurrentPassword: patientPassword,
		NewPassword:     "brand-new-pass-2",
	})
	require.Equal(t, http.StatusOK, rep.code, string(rep.body))

	// The rotated cookie keeps the caller signed in.
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/auth/me", nil).code)

	other := env.client(t)
	assert.Equal(t, http.StatusUnauthorized, other.loginPatient(patientPassword).code)
	assert.Equal(t, http.StatusOK, other.loginPatient("brand-new-pass-2").code)
}
