package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/database/memstore"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditEntry(action models.AuditAction) models.AuditEntry {
	return models.AuditEntry{ID: uuid.New(), Action: action, Status: models.AuditSuccess}
}

func TestWithinTxRollsBack(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx services.Store) error {
		require.NoError(t, tx.Audit().Insert(ctx, auditEntry(models.ActionLogout)))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, store.AuditEntries())

	err = store.WithinTx(ctx, func(tx services.Store) error {
		return tx.Audit().Insert(ctx, auditEntry(models.ActionLogout))
	})
	require.NoError(t, err)
	assert.Len(t, store.AuditEntries(), 1)
}

func TestWithinTxNestedJoins(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx services.Store) error {
		require.NoError(t, tx.WithinTx(ctx, func(inner services.Store) error {
			return inner.Audit().Insert(ctx, auditEntry(models.ActionLogout))
		}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, store.AuditEntries(), "inner work rolls back with the outer transaction")
}

func TestWithinTxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := memstore.New().WithinTx(ctx, func(services.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestAssignments(t *testing.T) {
	store := memstore.New()
	patient, exercise := uuid.New(), uuid.New()

	ok, err := store.HasActiveAssignment(context.Background(), patient, exercise)
	require.NoError(t, err)
	assert.False(t, ok)

	store.AddAssignment(patient, exercise)
	ok, _ = store.HasActiveAssignment(context.Background(), patient, exercise)
	assert.True(t, ok)

	store.EndAssignment(patient, exercise)
	ok, _ = store.HasActiveAssignment(context.Background(), patient, exercise)
	assert.False(t, ok)
}

func TestSessionStoreTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memstore.NewSessionStore(func() time.Time { return now })
	ctx := context.Background()
	session := models.Session{Token: "tok", Kind: models.KindPatient, PrincipalID: uuid.New()}

	require.NoError(t, store.Put(ctx, session, time.Minute))
	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	assert.Zero(t, store.Len())
}

func TestSessionStoreDeleteAllFor(t *testing.T) {
	store := memstore.NewSessionStore(nil)
	ctx := context.Background()
	patient := models.Session{Token: "a", Kind: models.KindPatient, PrincipalID: uuid.New()}
	staff := models.Session{Token: "b", Kind: models.KindStaff, PrincipalID: patient.PrincipalID}

	require.NoError(t, store.Put(ctx, patient, time.Hour))
	require.NoError(t, store.Put(ctx, staff, time.Hour))

	require.NoError(t, store.DeleteAllFor(ctx, patient.Subject()))
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	_, err = store.Get(ctx, "b")
	assert.NoError(t, err, "subjects of another kind are untouched")
}

func TestSessionStoreFailWrites(t *testing.T) {
	store := memstore.NewSessionStore(nil)
	store.FailWrites(assert.AnError)
	err := store.Put(context.Background(), models.Session{Token: "a"}, time.Hour)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, store.Len())
}
