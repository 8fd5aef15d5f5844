package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/google/uuid"
)

const tokenColumns = `id, token_hash, patient_id, staff_id, scope, exercise_id, issued_at, expires_at, used_at`

type tokenRepo struct {
	q queryer
}

func (r tokenRepo) Insert(ctx context.Context, t models.EphemeralToken) error {
	patientID, staffID, err := t.Subject.Columns()
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO ephemeral_tokens (id, token_hash, patient_id, staff_id, scope, exercise_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_hash) DO NOTHING`,
		t.ID, t.TokenHash, patientID, staffID, string(t.Scope), t.Binding.ExerciseID, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrTokenCollision
	}
	return nil
}

func (r tokenRepo) InvalidateActive(ctx context.Context, subject models.Subject, scope models.TokenScope, now time.Time) (int64, error) {
	patientID, staffID, err := subject.Columns()
	if err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE ephemeral_tokens SET used_at = $1
		WHERE scope = $2
			AND patient_id IS NOT DISTINCT FROM $3
			AND staff_id IS NOT DISTINCT FROM $4
			AND used_at IS NULL
			AND expires_at > $1`,
		now, string(scope), patientID, staffID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Consume is the atomic test-and-set of used_at. The row lock taken by the
// UPDATE makes a concurrent Consume of the same hash re-check used_at after
// this one commits, so only one of them gets a row back.
func (r tokenRepo) Consume(ctx context.Context, tokenHash string, c services.RedeemCriteria, now time.Time) (models.EphemeralToken, error) {
	var patientID, staffID *uuid.UUID
	if c.Subject != nil {
		var err error
		if patientID, staffID, err = c.Subject.Columns(); err != nil {
			return models.EphemeralToken{}, err
		}
	}
	row := r.q.QueryRowContext(ctx, `
		UPDATE ephemeral_tokens SET used_at = $2
		WHERE token_hash = $1
			AND used_at IS NULL
			AND expires_at > $2
			AND scope = $3
			AND ($4::uuid IS NULL OR patient_id = $4)
			AND ($5::uuid IS NULL OR staff_id = $5)
			AND ($6::uuid IS NULL OR exercise_id = $6)
		RETURNING `+tokenColumns,
		tokenHash, now, string(c.Scope), patientID, staffID, c.ExerciseID,
	)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EphemeralToken{}, services.ErrNotFound
	}
	return t, err
}

func (r tokenRepo) GetByHash(ctx context.Context, tokenHash string) (models.EphemeralToken, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM ephemeral_tokens WHERE token_hash = $1`, tokenHash)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EphemeralToken{}, services.ErrNotFound
	}
	return t, err
}

func scanToken(row rowScanner) (models.EphemeralToken, error) {
	var (
		t          models.EphemeralToken
		patientID  uuid.NullUUID
		staffID    uuid.NullUUID
		exerciseID uuid.NullUUID
		scope      string
		usedAt     sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.TokenHash, &patientID, &staffID, &scope, &exerciseID, &t.IssuedAt, &t.ExpiresAt, &usedAt); err != nil {
		return models.EphemeralToken{}, err
	}
	subject, err := models.SubjectFromColumns(nullUUIDPtr(patientID), nullUUIDPtr(staffID))
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("token %s: %w", t.ID, err)
	}
	t.Subject = subject
	t.Scope = models.TokenScope(scope)
	t.Binding.ExerciseID = nullUUIDPtr(exerciseID)
	t.UsedAt = timePtr(usedAt)
	return t, nil
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
