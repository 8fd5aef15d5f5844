package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/models"
)

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Store       Store
	Principals  *PrincipalStore
	Sessions    *SessionAuthenticator
	Tokens      *TokenService
	Lockout     LockoutPolicy
	Audit       *AuditLogger
	Assignments AssignmentChecker
	Notifier    ResetNotifier
	Clock       Clock
}

// AuthService implements the caller-facing authentication operations. Every
// outcome, success or failure, writes exactly one audit entry before returning.
type AuthService struct {
	store       Store
	principals  *PrincipalStore
	sessions    *SessionAuthenticator
	tokens      *TokenService
	lockout     LockoutPolicy
	audit       *AuditLogger
	assignments AssignmentChecker
	notifier    ResetNotifier
	now         Clock
}

// NewAuthService wires d.
func NewAuthService(d AuthDeps) *AuthService {
	return &AuthService{
		store:       d.Store,
		principals:  d.Principals,
		sessions:    d.Sessions,
		tokens:      d.Tokens,
		lockout:     d.Lockout,
		audit:       d.Audit,
		assignments: d.Assignments,
		notifier:    d.Notifier,
		now:         d.Clock,
	}
}

// LoginResult is a fresh session plus the decrypted principal summary.
type LoginResult struct {
	Session   models.Session
	Principal models.PrincipalSummary
}

// Login authenticates identity (patient email or staff number) and password.
// Unknown identities and wrong passwords both fail with ErrInvalidCredentials;
// a locked principal fails with ErrAccountLocked before its password is checked.
func (s *AuthService) Login(ctx context.Context, kind models.PrincipalKind, identity, password, priorToken string, meta models.RequestMeta) (LoginResult, error) {
	creds := s.principals.Credentials()
	if !kind.Valid() {
		return LoginResult{}, s.failed(ctx, nil, models.ActionLoginFailed, ErrInvalidCredentials, meta,
			map[string]any{"kind": kind, "reason": "unknown_kind"})
	}

	acct, err := s.principals.FindActiveByIdentity(ctx, s.store.Principals(), kind, identity)
	if errors.Is(err, ErrNotFound) {
		creds.VerifyDummy(password)
		return LoginResult{}, s.failed(ctx, nil, models.ActionLoginFailed, ErrInvalidCredentials, meta,
			map[string]any{"kind": kind, "reason": "unknown_identity"})
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load principal: %w", err)
	}

	base := acct.Base()
	ref := base.Ref()
	now := s.now()

	if s.lockout.IsLocked(base.Lockout, now) {
		return LoginResult{}, s.failed(ctx, actorOf(ref), models.ActionLoginFailed, ErrAccountLocked, meta,
			map[string]any{"kind": kind, "reason": "locked"})
	}

	if !creds.Verify(password, base.PasswordHash) {
		return LoginResult{}, s.rejectPassword(ctx, ref, models.ActionLoginFailed, now, meta)
	}

	summary, err := s.principals.Summarize(acct)
	if err != nil {
		return LoginResult{}, s.integrityFailure(ctx, ref, models.ActionLoginFailed, err, meta)
	}

	var session models.Session
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.lockout.RecordSuccess(ctx, tx.Principals(), ref); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionLoginSucceeded,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": kind},
		}, meta); err != nil {
			return err
		}
		var err error
		session, err = s.sessions.Start(ctx, kind, ref.ID, priorToken)
		return err
	})
	if err != nil {
		if session.Token != "" {
			_ = s.sessions.Destroy(ctx, session.Token)
		}
		return LoginResult{}, err
	}
	return LoginResult{Session: session, Principal: summary}, nil
}

// Logout destroys the session behind token. Logging out without a session is
// not an error.
func (s *AuthService) Logout(ctx context.Context, token string, meta models.RequestMeta) error {
	session, err := s.sessions.Peek(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		return s.audit.RecordOnly(ctx, s.store, AuditEvent{
			Action:  models.ActionLogout,
			Status:  models.AuditFailure,
			Context: map[string]any{"reason": "no_session"},
		}, meta)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	ref := session.Subject()
	return s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionLogout,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": ref.Kind},
		}, meta); err != nil {
			return err
		}
		return s.sessions.Destroy(ctx, token)
	})
}

// Authenticate resolves a session token and slides its idle window. An idle
// session is destroyed, audited as session_expired and reported as
// ErrSessionExpired.
func (s *AuthService) Authenticate(ctx context.Context, token string, meta models.RequestMeta) (models.Session, error) {
	session, err := s.sessions.Authenticate(ctx, token)
	if errors.Is(err, ErrSessionExpired) {
		ref := session.Subject()
		if aerr := s.audit.RecordOnly(ctx, s.store, AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionSessionExpired,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": ref.Kind, "idle_since": session.LastActivity},
		}, meta); aerr != nil {
			return models.Session{}, aerr
		}
		return models.Session{}, ErrSessionExpired
	}
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// CurrentPrincipal authenticates token and returns the principal behind it.
func (s *AuthService) CurrentPrincipal(ctx context.Context, token string, meta models.RequestMeta) (models.PrincipalSummary, error) {
	session, err := s.Authenticate(ctx, token, meta)
	if err != nil {
		return models.PrincipalSummary{}, err
	}
	return s.Summary(ctx, session)
}

// Summary loads and decrypts the principal of an authenticated session. A
// session whose principal is gone is destroyed.
func (s *AuthService) Summary(ctx context.Context, session models.Session) (models.PrincipalSummary, error) {
	ref := session.Subject()
	acct, err := s.principals.FindActiveByID(ctx, s.store.Principals(), ref)
	if errors.Is(err, ErrNotFound) {
		_ = s.sessions.Destroy(ctx, session.Token)
		return models.PrincipalSummary{}, ErrUnauthenticated
	}
	if err != nil {
		return models.PrincipalSummary{}, fmt.Errorf("load principal: %w", err)
	}
	return s.principals.Summarize(acct)
}

// ChangePassword replaces the password of the session's principal after
// checking the current one. All sessions of the principal are destroyed and
// a fresh session is returned.
func (s *AuthService) ChangePassword(ctx context.Context, session models.Session, current, next string, meta models.RequestMeta) (models.Session, error) {
	ref := session.Subject()
	acct, err := s.principals.FindActiveByID(ctx, s.store.Principals(), ref)
	if errors.Is(err, ErrNotFound) {
		return models.Session{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load principal: %w", err)
	}

	base := acct.Base()
	now := s.now()
	if s.lockout.IsLocked(base.Lockout, now) {
		return models.Session{}, s.failed(ctx, actorOf(ref), models.ActionPasswordChanged, ErrAccountLocked, meta,
			map[string]any{"kind": ref.Kind, "reason": "locked"})
	}
	creds := s.principals.Credentials()
	if !creds.Verify(current, base.PasswordHash) {
		return models.Session{}, s.rejectPassword(ctx, ref, models.ActionPasswordChanged, now, meta)
	}
	hash, err := creds.Hash(next)
	if err != nil {
		return models.Session{}, s.failed(ctx, actorOf(ref), models.ActionPasswordChanged, passwordError(err), meta,
			map[string]any{"reason": "password_policy"})
	}

	var fresh models.Session
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.principals.SetPasswordHash(ctx, tx.Principals(), ref, hash); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionPasswordChanged,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": ref.Kind},
		}, meta); err != nil {
			return err
		}
		var err error
		fresh, err = s.sessions.Start(ctx, ref.Kind, ref.ID, session.Token)
		return err
	})
	if err != nil {
		if fresh.Token != "" {
			_ = s.sessions.Destroy(ctx, fresh.Token)
		}
		return models.Session{}, err
	}
	return fresh, nil
}

// rejectPassword counts a wrong password against ref and audits it in the
// same unit of work. It returns ErrAccountLocked when this failure trips the
// lock, ErrInvalidCredentials otherwise.
func (s *AuthService) rejectPassword(ctx context.Context, ref models.Subject, action models.AuditAction, now time.Time, meta models.RequestMeta) error {
	var state models.LockoutState
	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		state, err = s.lockout.RecordFailure(ctx, tx.Principals(), ref, now)
		if err != nil {
			return err
		}
		reason := "invalid_password"
		if s.lockout.IsLocked(state, now) {
			reason = "locked_after_failure"
		}
		return s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:  actorOf(ref),
			Action: action,
			Status: models.AuditFailure,
			Context: map[string]any{
				"kind":            ref.Kind,
				"reason":          reason,
				"failed_attempts": state.FailedAttemptCount,
			},
		}, meta)
	})
	if err != nil {
		return err
	}
	if s.lockout.IsLocked(state, now) {
		logx.Warnf("%s locked until %s after %d failed password checks", ref, state.LockedUntil.Format("15:04:05"), state.FailedAttemptCount)
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// failed records a failure entry in its own unit of work and returns cause,
// or the audit error when the entry could not be written.
func (s *AuthService) failed(ctx context.Context, actor *models.Subject, action models.AuditAction, cause error, meta models.RequestMeta, extra map[string]any) error {
	if err := s.audit.RecordOnly(ctx, s.store, AuditEvent{
		Actor:   actor,
		Action:  action,
		Status:  models.AuditFailure,
		Context: extra,
	}, meta); err != nil {
		return err
	}
	return cause
}

// integrityFailure audits an action that failed on unreadable PII. The alert
// is raised where the error is finally handled.
func (s *AuthService) integrityFailure(ctx context.Context, ref models.Subject, action models.AuditAction, cause error, meta models.RequestMeta) error {
	return s.failed(ctx, actorOf(ref), action, cause, meta, map[string]any{"reason": reasonOf(cause)})
}

// reasonOf names err for audit context.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenUsed):
		return "token_used"
	case errors.Is(err, ErrScopeMismatch):
		return "scope_mismatch"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDuplicateIdentity):
		return "duplicate_identity"
	case errors.Is(err, ErrDecryptionFailure):
		return "decryption_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	return "error"
}
