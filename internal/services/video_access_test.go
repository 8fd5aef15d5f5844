package services_test

import (
	"context"
	"testing"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExercise(h *harness, patientID uuid.UUID) uuid.UUID {
	exercise := uuid.New()
	h.store.AddAssignment(patientID, exercise)
	return exercise
}

func TestVideoAccess(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	ctx := context.Background()
	session := h.loginPatient(t)
	exercise := newExercise(h, id)

	tok, err := h.svc.IssueVideoAccess(ctx, session, exercise, meta)
	require.NoError(t, err)
	assert.Equal(t, models.ScopeVideoAccess, tok.Scope)
	require.NotNil(t, tok.Binding.ExerciseID)
	assert.Equal(t, exercise, *tok.Binding.ExerciseID)
	assert.Equal(t, models.ActionVideoAccessGranted, h.lastAudit(t).Action)

	require.NoError(t, h.svc.RedeemVideoAccess(ctx, session, tok.Value, exercise, meta))
	entry := h.lastAudit(t)
	assert.Equal(t, models.ActionVideoAccess, entry.Action)
	assert.Equal(t, models.AuditSuccess, entry.Status)
	assert.Equal(t, exercise.String(), entry.Context["exercise_id"])

	err = h.svc.RedeemVideoAccess(ctx, session, tok.Value, exercise, meta)
	assert.ErrorIs(t, err, services.ErrTokenUsed)
	assert.Equal(t, models.AuditFailure, h.lastAudit(t).Status)
}

func TestVideoAccessRequiresAssignment(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	ctx := context.Background()
	session := h.loginPatient(t)

	_, err := h.svc.IssueVideoAccess(ctx, session, uuid.New(), meta)
	require.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, "no_active_assignment", h.lastAudit(t).Context["reason"])

	exercise := newExercise(h, id)
	h.store.EndAssignment(id, exercise)
	_, err = h.svc.IssueVideoAccess(ctx, session, exercise, meta)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestVideoAccessStaffForbidden(t *testing.T) {
	h := newHarness(t)
	h.provisionStaff(t, staffNumber, staffEmail)
	session := h.loginStaff(t)

	_, err := h.svc.IssueVideoAccess(context.Background(), session, uuid.New(), meta)
	require.ErrorIs(t, err, services.ErrForbidden)
	assert.Equal(t, "not_a_patient", h.lastAudit(t).Context["reason"])
}

func TestVideoAccessBoundToExerciseAndPatient(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	otherID := h.registerPatient(t, "john@example.com")
	ctx := context.Background()
	session := h.loginPatient(t)
	exercise := newExercise(h, id)
	newExercise(h, otherID)

	tok, err := h.svc.IssueVideoAccess(ctx, session, exercise, meta)
	require.NoError(t, err)

	err = h.svc.RedeemVideoAccess(ctx, session, tok.Value, uuid.New(), meta)
	require.ErrorIs(t, err, services.ErrScopeMismatch)
	assert.Equal(t, "scope_mismatch", h.lastAudit(t).Context["reason"])

	res, err := h.svc.Login(ctx, models.KindPatient, "john@example.com", patientPassword, "", meta)
	require.NoError(t, err)
	err = h.svc.RedeemVideoAccess(ctx, res.Session, tok.Value, exercise, meta)
	require.ErrorIs(t, err, services.ErrScopeMismatch)

	// Mismatches do not burn the token.
	assert.NoError(t, h.svc.RedeemVideoAccess(ctx, session, tok.Value, exercise, meta))
}

func TestVideoAccessAuditFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	ctx := context.Background()
	session := h.loginPatient(t)
	exercise := newExercise(h, id)

	tok, err := h.svc.IssueVideoAccess(ctx, session, exercise, meta)
	require.NoError(t, err)

	h.store.FailAuditWrites(assert.AnError)
	err = h.svc.RedeemVideoAccess(ctx, session, tok.Value, exercise, meta)
	require.ErrorIs(t, err, assert.AnError)

	h.store.FailAuditWrites(nil)
	stored, ok := h.store.Token(tok.TokenHash)
	require.True(t, ok)
	assert.Nil(t, stored.UsedAt, "redeem rolled back with the audit entry")
	assert.NoError(t, h.svc.RedeemVideoAccess(ctx, session, tok.Value, exercise, meta))
}
