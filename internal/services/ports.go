package services

import (
	"context"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/google/uuid"
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// Store is a unit of work over the relational store. Repositories obtained from
// the Store passed to fn inside WithinTx share that transaction; calling
// WithinTx on such a Store joins the running transaction.
type Store interface {
	Principals() PrincipalRepository
	Tokens() TokenRepository
	Audit() AuditRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// PrincipalRepository persists patients and staff. Lookups named Active skip
// soft-deleted rows and return ErrNotFound when nothing matches.
type PrincipalRepository interface {
	// CreatePatient and CreateStaff return ErrDuplicateIdentity when a unique
	// digest is already taken by an active principal.
	CreatePatient(ctx context.Context, p *models.Patient) error
	CreateStaff(ctx context.Context, s *models.Staff) error

	FindActiveByIdentity(ctx context.Context, kind models.PrincipalKind, digest string) (models.Account, error)
	FindActiveByEmail(ctx context.Context, kind models.PrincipalKind, digest string) (models.Account, error)
	FindActiveByID(ctx context.Context, ref models.Subject) (models.Account, error)

	SoftDelete(ctx context.Context, ref models.Subject, at time.Time) error
	// UpdatePassword stores hash and clears the lockout state.
	UpdatePassword(ctx context.Context, ref models.Subject, hash string, at time.Time) error

	// IncrementFailedAttempts atomically adds one failure and sets lockedUntil
	// when the new count reaches threshold. It returns the resulting state.
	IncrementFailedAttempts(ctx context.Context, ref models.Subject, threshold int, lockedUntil time.Time) (models.LockoutState, error)
	ResetFailedAttempts(ctx context.Context, ref models.Subject) error
}

// RedeemCriteria is what a presented token must match besides being live.
type RedeemCriteria struct {
	Scope      models.TokenScope
	Subject    *models.Subject
	ExerciseID *uuid.UUID
}

// Matches reports whether t satisfies c (liveness is checked separately).
func (c RedeemCriteria) Matches(t models.EphemeralToken) bool {
	if t.Scope != c.Scope {
		return false
	}
	if c.Subject != nil && t.Subject != *c.Subject {
		return false
	}
	if c.ExerciseID != nil && (t.Binding.ExerciseID == nil || *t.Binding.ExerciseID != *c.ExerciseID) {
		return false
	}
	return true
}

// TokenRepository persists ephemeral tokens. Tokens are never deleted.
type TokenRepository interface {
	// Insert returns ErrTokenCollision when the token hash already exists.
	Insert(ctx context.Context, t models.EphemeralToken) error
	// InvalidateActive marks every live token of subject+scope used at now.
	InvalidateActive(ctx context.Context, subject models.Subject, scope models.TokenScope, now time.Time) (int64, error)
	// Consume marks the token used iff it is unused, unexpired and matches c,
	// in one conditional write. It returns ErrNotFound when nothing changed.
	Consume(ctx context.Context, tokenHash string, c RedeemCriteria, now time.Time) (models.EphemeralToken, error)
	GetByHash(ctx context.Context, tokenHash string) (models.EphemeralToken, error)
}

// AuditRepository appends audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, e models.AuditEntry) error
}

// SessionStore keeps server-side session state. One session per principal.
type SessionStore interface {
	// Get returns ErrSessionNotFound for unknown tokens.
	Get(ctx context.Context, token string) (models.Session, error)
	// Put stores s and registers it as the principal's current session. ttl is
	// storage hygiene only; expiry is decided by SessionAuthenticator.
	Put(ctx context.Context, s models.Session, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
	DeleteAllFor(ctx context.Context, subject models.Subject) error
}

// AssignmentChecker answers whether a patient is currently assigned an exercise.
type AssignmentChecker interface {
	HasActiveAssignment(ctx context.Context, patientID, exerciseID uuid.UUID) (bool, error)
}

// ResetNotifier delivers a password reset token out of band.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// ResetMessage is what a ResetNotifier delivers.
type ResetMessage struct {
	Kind      models.PrincipalKind
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}
