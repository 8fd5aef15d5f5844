package handlers_test

import (
	"net/http"
	"testing"

	"github.com/AnshRaj112/rehab-backend/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForgotPasswordSameAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	known := c.do(http.MethodPost, "/api/auth/password/forgot", handlers.ForgotPasswordRequest{Email: patientEmail})
	unknown := c.do(http.MethodPost, "/api/auth/password/forgot", handlers.ForgotPasswordRequest{Email: "nobody@example.com"})

	assert.Equal(t, http.StatusOK, known.code)
	assert.Equal(t, known.code, unknown.code)
	assert.Equal(t, known.body, unknown.body)
	assert.Len(t, env.outbox.msgs, 1)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerPatient(t)
	c := env.client(t)

	rep := c.do(http.MethodPost, "/api/auth/password/forgot", handlers.ForgotPasswordRequest{
		Kind:  "patient",
		Email: patientEmail,
	})
	require.Equal(t, http.StatusOK, rep.code)
	token := env.outbox.last(t).Token

	rep = c.do(http.MethodPost, "/api/auth/password/reset", handlers.ResetPasswordRequest{
		Token:       "not-a-real-token",
		NewPassword: "fresh-password-2",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rep.code)
	assert.Equal(t, "Invalid or expired token", rep.env.Message)

	rep = c.do(http.MethodPost, "/api/auth/password/reset", handlers.ResetPasswordRequest{
		Token:       token,
		NewPassword: "fresh-password-2",
	})
	require.Equal(t, http.StatusOK, rep.code, string(rep.body))

	rep = c.do(http.MethodPost, "/api/auth/password/reset", handlers.ResetPasswordRequest{
		Token:       token,
		NewPassword: "other-password-3",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rep.code, "token is single use")

	assert.Equal(t, http.StatusOK, c.loginPatient("fresh-password-2").code)
}
