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

func TestRegisterPatientValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RegisterPatient(context.Background(), models.NewPatientAttrs{
		Name:      " ",
		Email:     "not-an-email",
		BirthDate: "yesterday",
		Password:  "short",
	}, meta)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := ve.FieldMessages()
	for _, f := range []string{"name", "email", "birth_date", "password"} {
		assert.Contains(t, fields, f)
	}

	entry := h.lastAudit(t)
	assert.Equal(t, models.ActionPrincipalRegistered, entry.Action)
	assert.Equal(t, models.AuditFailure, entry.Status)
	assert.Equal(t, "validation", entry.Context["reason"])
}

func TestRegisterPatientDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.registerPatient(t, patientEmail)

	_, err := h.svc.RegisterPatient(context.Background(), models.NewPatientAttrs{
		Name:     "Other Jane",
		Email:    "JANE@example.com",
		Password: patientPassword,
	}, meta)
	require.ErrorIs(t, err, services.ErrDuplicateIdentity)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldMessages(), "email")
	assert.Equal(t, "duplicate_identity", h.lastAudit(t).Context["reason"])
}

func TestProvisionStaffDuplicates(t *testing.T) {
	h := newHarness(t)
	h.provisionStaff(t, staffNumber, staffEmail)
	ctx := context.Background()

	conflictField := func(t *testing.T, err error) map[string]string {
		t.Helper()
		require.ErrorIs(t, err, services.ErrDuplicateIdentity)
		var ve *services.ValidationError
		require.ErrorAs(t, err, &ve)
		return ve.FieldMessages()
	}

	_, err := h.svc.ProvisionStaff(ctx, models.NewStaffAttrs{
		StaffNumber: "st-0042", Name: "Copy", Password: staffPassword,
	}, meta)
	fields := conflictField(t, err)
	assert.Equal(t, "Staff number is already registered", fields["staff_number"])
	assert.NotContains(t, fields, "email")

	_, err = h.svc.ProvisionStaff(ctx, models.NewStaffAttrs{
		StaffNumber: "ST-0099", Name: "Copy", Email: staffEmail, Password: staffPassword,
	}, meta)
	fields = conflictField(t, err)
	assert.Equal(t, "Email is already registered", fields["email"])
	assert.NotContains(t, fields, "staff_number")

	_, err = h.svc.ProvisionStaff(ctx, models.NewStaffAttrs{
		StaffNumber: "ST-0042", Name: "Copy", Email: "fresh@clinic.example", Password: staffPassword,
	}, meta)
	fields = conflictField(t, err)
	assert.Contains(t, fields, "staff_number", "a free email does not hide a taken number")

	_, err = h.svc.ProvisionStaff(ctx, models.NewStaffAttrs{
		StaffNumber: "ST-0100", Name: "Boss", Role: "owner", Password: staffPassword,
	}, meta)
	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldMessages(), "role")
}

func TestSoftDeletePatient(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	h.provisionStaff(t, staffNumber, staffEmail)
	ctx := context.Background()

	patientSession := h.loginPatient(t)
	exercise := newExercise(h, id)
	video, err := h.svc.IssueVideoAccess(ctx, patientSession, exercise, meta)
	require.NoError(t, err)
	require.NoError(t, h.svc.RequestPasswordReset(ctx, models.KindPatient, patientEmail, meta))
	reset := h.lastResetToken(t)

	staffSession := h.loginStaff(t)
	require.NoError(t, h.svc.SoftDeletePatient(ctx, staffSession, id, meta))
	entry := h.lastAudit(t)
	assert.Equal(t, models.ActionPrincipalDeleted, entry.Action)
	assert.Equal(t, models.KindStaff, entry.Actor.Kind)

	_, err = h.svc.Authenticate(ctx, patientSession.Token, meta)
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, err = h.svc.Login(ctx, models.KindPatient, patientEmail, patientPassword, "", meta)
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	assert.ErrorIs(t, h.svc.CompletePasswordReset(ctx, reset, "long-enough-1", meta), services.ErrTokenUsed)
	stored, _ := h.store.Token(video.TokenHash)
	assert.NotNil(t, stored.UsedAt)

	// The email is free again.
	h.registerPatient(t, patientEmail)

	err = h.svc.SoftDeletePatient(ctx, staffSession, id, meta)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSoftDeletePatientRequiresStaff(t *testing.T) {
	h := newHarness(t)
	id := h.registerPatient(t, patientEmail)
	session := h.loginPatient(t)

	err := h.svc.SoftDeletePatient(context.Background(), session, id, meta)
	require.ErrorIs(t, err, services.ErrForbidden)

	err = h.svc.SoftDeletePatient(context.Background(), session, uuid.New(), meta)
	assert.ErrorIs(t, err, services.ErrForbidden)
}
