package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)
	h.registerPatient(t, patientEmail)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, "nobody@example.com", meta))
	unknown := h.lastAudit(t)
	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	known := h.lastAudit(t)

	// Only the notifier can tell the two apart.
	assert.Len(t, h.notifier.Messages(), 1)
	assert.Equal(t, unknown.Action, known.Action)
	assert.Equal(t, unknown.Status, known.Status)
	assert.Equal(t, unknown.Actor, known.Actor)
	assert.Equal(t, unknown.Context, known.Context)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	ctx := context.Background()
	session := h.loginPatient(t)

	// Build up some failures so the reset has something to clear.
	for i := 0; i < services.DefaultLockoutThreshold; i++ {
		_, _ = h.svc.Login(ctx, models.KindPatient, patientEmail, "wrong-password-1", "", meta)
	}

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, "Jane@Example.com", meta))
	msg := h.notifier.Messages()[0]
	assert.Equal(t, patientEmail, msg.Email)
	assert.Equal(t, "Jane Doe", msg.Name)
	assert.Equal(t, h.clock.Now().Add(time.Hour), msg.ExpiresAt)

	require.NoError(t, h.svc.CompletePasswordReset(ctx, msg.Token, "fresh-password-2", meta))
	entry := h.lastAudit(t)
	assert.Equal(t, models.ActionPasswordResetCompleted, entry.Action)
	assert.Equal(t, models.PatientSubject(id), *entry.Actor)

	_, err := h.svc.Authenticate(ctx, session.Token, meta)
	assert.ErrorIs(t, err, services.ErrUnauthenticated, "sessions end on reset")

	_, err = h.svc.Login(ctx, models.KindPatient, patientEmail, "fresh-password-2", "", meta)
	assert.NoError(t, err, "reset clears the lock")

	err = h.svc.CompletePasswordReset(ctx, msg.Token, "another-password-3", meta)
	assert.ErrorIs(t, err, services.ErrTokenUsed)
	assert.Equal(t, "token_used", h.lastAudit(t).Context["reason"])
}

func TestPasswordResetWeakPasswordKeepsToken(t *testing.T) {
	h := newHarness(t)
	h.registerPatient(t, patientEmail)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	token := h.lastResetToken(t)

	err := h.svc.CompletePasswordReset(ctx, token, "short", meta)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldMessages(), "password")

	assert.NoError(t, h.svc.CompletePasswordReset(ctx, token, "long-enough-1", meta))
}

func TestPasswordResetExpires(t *testing.T) {
	h := newHarness(t, services.WithTokenTTL(models.ScopePasswordReset, 15*time.Minute))
	h.registerPatient(t, patientEmail)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	token := h.lastResetToken(t)

	h.clock.Advance(16 * time.Minute)
	err := h.svc.CompletePasswordReset(ctx, token, "long-enough-1", meta)
	assert.ErrorIs(t, err, services.ErrTokenExpired)
}

func TestPasswordResetNewRequestRevokesOld(t *testing.T) {
	h := newHarness(t)
	h.registerPatient(t, patientEmail)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	first := h.lastResetToken(t)
	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	second := h.lastResetToken(t)

	assert.ErrorIs(t, h.svc.CompletePasswordReset(ctx, first, "long-enough-1", meta), services.ErrTokenUsed)
	assert.NoError(t, h.svc.CompletePasswordReset(ctx, second, "long-enough-1", meta))
}

func TestPasswordResetForStaffUsesEmail(t *testing.T) {
	h := newHarness(t)
	h.provisionStaff(t, staffNumber, staffEmail)
	h.provisionStaff(t, "ST-0043", "")
	ctx := context.Background()

	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindStaff, staffEmail, meta))
	require.Len(t, h.notifier.Messages(), 1)

	// Patients and staff are looked up separately.
	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, staffEmail, meta))
	require.Len(t, h.notifier.Messages(), 1)

	require.NoError(t, h.svc.CompletePasswordReset(ctx, h.lastResetToken(t), "Staff-new-pass", meta))
	res, err := h.svc.Login(ctx, models.KindStaff, staffNumber, "Staff-new-pass", "", meta)
	require.NoError(t, err)
	assert.Equal(t, models.KindStaff, res.Principal.Kind)
}

func TestPasswordResetVideoTokenRejected(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	ctx := context.Background()
	session := h.loginPatient(t)

	exercise := newExercise(h, id)
	tok, err := h.svc.IssueVideoAccess(ctx, session, exercise, meta)
	require.NoError(t, err)

	err = h.svc.CompletePasswordReset(ctx, tok.Value, "long-enough-1", meta)
	assert.ErrorIs(t, err, services.ErrTokenNotFound)
}
