package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
)

const patientColumns = `id, name_ciphertext, name_iv, email_ciphertext, email_iv, email_digest,
	birth_date_ciphertext, birth_date_iv, password_hash, failed_attempt_count, locked_until,
	soft_deleted_at, created_at, updated_at`

const staffColumns = `id, staff_number_ciphertext, staff_number_iv, staff_number_digest,
	name_ciphertext, name_iv, email_ciphertext, email_iv, email_digest, role, password_hash,
	failed_attempt_count, locked_until, soft_deleted_at, created_at, updated_at`

type principalRepo struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r principalRepo) CreatePatient(ctx context.Context, p *models.Patient) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO patients (id, name_ciphertext, name_iv, email_ciphertext, email_iv, email_digest,
			birth_date_ciphertext, birth_date_iv, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`,
		p.ID, p.Name.Ciphertext, p.Name.IV, p.Email.Ciphertext, p.Email.IV, p.IdentityDigest,
		nullBytes(p.BirthDate.Ciphertext), nullBytes(p.BirthDate.IV), p.PasswordHash, p.CreatedAt, p.UpdatedAt,
	)
	return insertResult(res, err)
}

func (r principalRepo) CreateStaff(ctx context.Context, s *models.Staff) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO staff (id, staff_number_ciphertext, staff_number_iv, staff_number_digest,
			name_ciphertext, name_iv, email_ciphertext, email_iv, email_digest, role, password_hash,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING`,
		s.ID, s.StaffNumber.Ciphertext, s.StaffNumber.IV, s.IdentityDigest,
		s.Name.Ciphertext, s.Name.IV, nullBytes(s.Email.Ciphertext), nullBytes(s.Email.IV), nullString(s.EmailDigest),
		string(s.Role), s.PasswordHash, s.CreatedAt, s.UpdatedAt,
	)
	return insertResult(res, err)
}

// insertResult maps a swallowed conflict (no row inserted) to ErrDuplicateIdentity.
func insertResult(res sql.Result, err error) error {
	if isUniqueViolation(err) {
		return services.ErrDuplicateIdentity
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrDuplicateIdentity
	}
	return nil
}

func (r principalRepo) FindActiveByIdentity(ctx context.Context, kind models.PrincipalKind, digest string) (models.Account, error) {
	switch kind {
	case models.KindPatient:
		return r.findPatient(ctx, "email_digest = $1", digest)
	case models.KindStaff:
		return r.findStaff(ctx, "staff_number_digest = $1", digest)
	default:
		return nil, services.ErrNotFound
	}
}

func (r principalRepo) FindActiveByEmail(ctx context.Context, kind models.PrincipalKind, digest string) (models.Account, error) {
	switch kind {
	case models.KindPatient:
		return r.findPatient(ctx, "email_digest = $1", digest)
	case models.KindStaff:
		return r.findStaff(ctx, "email_digest = $1", digest)
	default:
		return nil, services.ErrNotFound
	}
}

func (r principalRepo) FindActiveByID(ctx context.Context, ref models.Subject) (models.Account, error) {
	switch ref.Kind {
	case models.KindPatient:
		return r.findPatient(ctx, "id = $1", ref.ID)
	case models.KindStaff:
		return r.findStaff(ctx, "id = $1", ref.ID)
	default:
		return nil, services.ErrNotFound
	}
}

func (r principalRepo) findPatient(ctx context.Context, where string, arg any) (models.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE `+where+` AND soft_deleted_at IS NULL`, arg)
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r principalRepo) findStaff(ctx context.Context, where string, arg any) (models.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE `+where+` AND soft_deleted_at IS NULL`, arg)
	s, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var (
		p           models.Patient
		lockedUntil sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name.Ciphertext, &p.Name.IV, &p.Email.Ciphertext, &p.Email.IV, &p.IdentityDigest,
		&p.BirthDate.Ciphertext, &p.BirthDate.IV, &p.PasswordHash, &p.Lockout.FailedAttemptCount, &lockedUntil,
		&deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = models.KindPatient
	p.Lockout.LockedUntil = timePtr(lockedUntil)
	p.SoftDeletedAt = timePtr(deletedAt)
	return &p, nil
}

func scanStaff(row rowScanner) (*models.Staff, error) {
	var (
		s           models.Staff
		emailDigest sql.NullString
		role        string
		lockedUntil sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.StaffNumber.Ciphertext, &s.StaffNumber.IV, &s.IdentityDigest,
		&s.Name.Ciphertext, &s.Name.IV, &s.Email.Ciphertext, &s.Email.IV, &emailDigest, &role, &s.PasswordHash,
		&s.Lockout.FailedAttemptCount, &lockedUntil, &deletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Kind = models.KindStaff
	s.EmailDigest = emailDigest.String
	s.Role = models.StaffRole(role)
	s.Lockout.LockedUntil = timePtr(lockedUntil)
	s.SoftDeletedAt = timePtr(deletedAt)
	return &s, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// exec runs a statement against the live row of ref and maps "no row" to ErrNotFound.
func (r principalRepo) exec(ctx context.Context, ref models.Subject, set string, args ...any) error {
	table, err := principalTable(ref.Kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND soft_deleted_at IS NULL`, table, set)
	res, err := r.q.ExecContext(ctx, query, append([]any{ref.ID}, args...)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (r principalRepo) SoftDelete(ctx context.Context, ref models.Subject, at time.Time) error {
	return r.exec(ctx, ref, `soft_deleted_at = $2, updated_at = $2`, at)
}

func (r principalRepo) UpdatePassword(ctx context.Context, ref models.Subject, hash string, at time.Time) error {
	return r.exec(ctx, ref,
		`password_hash = $2, failed_attempt_count = 0, locked_until = NULL, updated_at = $3`, hash, at)
}

func (r principalRepo) ResetFailedAttempts(ctx context.Context, ref models.Subject) error {
	return r.exec(ctx, ref, `failed_attempt_count = 0, locked_until = NULL`)
}

// IncrementFailedAttempts is a single UPDATE, so concurrent failures for the
// same principal serialize on the row lock and none is lost.
func (r principalRepo) IncrementFailedAttempts(ctx context.Context, ref models.Subject, threshold int, lockedUntil time.Time) (models.LockoutState, error) {
	table, err := principalTable(ref.Kind)
	if err != nil {
		return models.LockoutState{}, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			failed_attempt_count = failed_attempt_count + 1,
			locked_until = CASE WHEN failed_attempt_count + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = NOW()
		WHERE id = $1 AND soft_deleted_at IS NULL
		RETURNING failed_attempt_count, locked_until`, table)

	var (
		state models.LockoutState
		until sql.NullTime
	)
	err = r.q.QueryRowContext(ctx, query, ref.ID, threshold, lockedUntil).Scan(&state.FailedAttemptCount, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LockoutState{}, services.ErrNotFound
	}
	if err != nil {
		return models.LockoutState{}, err
	}
	state.LockedUntil = timePtr(until)
	return state, nil
}
