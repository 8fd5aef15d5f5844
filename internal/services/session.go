package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/google/uuid"
)

const (
	// PatientSessionTimeout is the idle timeout of patient sessions.
	PatientSessionTimeout = 30 * time.Minute
	// StaffSessionTimeout is the idle timeout of staff sessions.
	StaffSessionTimeout = 15 * time.Minute
	// sessionRetention keeps an idle session readable a little past its
	// timeout so the expiry is reported as such instead of "unknown session".
	sessionRetention  = 5 * time.Minute
	sessionTokenBytes = 32
)

// SessionTimeout returns the idle timeout for kind.
func SessionTimeout(kind models.PrincipalKind) time.Duration {
	switch kind {
	case models.KindStaff:
		return StaffSessionTimeout
	default:
		return PatientSessionTimeout
	}
}

// SessionAuthenticator issues sessions and enforces the sliding idle timeout.
type SessionAuthenticator struct {
	store SessionStore
	now   Clock
}

// NewSessionAuthenticator wires a session store and a clock.
func NewSessionAuthenticator(store SessionStore, now Clock) *SessionAuthenticator {
	return &SessionAuthenticator{store: store, now: now}
}

// Start creates a new session. The prior cookie session and any other session
// of the same principal are destroyed first, so a login never reuses state.
func (a *SessionAuthenticator) Start(ctx context.Context, kind models.PrincipalKind, principalID uuid.UUID, priorToken string) (models.Session, error) {
	if priorToken != "" {
		if err := a.store.Delete(ctx, priorToken); err != nil {
			return models.Session{}, fmt.Errorf("destroy prior session: %w", err)
		}
	}
	subject := models.Subject{Kind: kind, ID: principalID}
	if err := a.store.DeleteAllFor(ctx, subject); err != nil {
		return models.Session{}, fmt.Errorf("destroy principal sessions: %w", err)
	}

	token, err := newSessionToken()
	if err != nil {
		return models.Session{}, err
	}
	now := a.now()
	s := models.Session{
		Token:        token,
		Kind:         kind,
		PrincipalID:  principalID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := a.store.Put(ctx, s, SessionTimeout(kind)+sessionRetention); err != nil {
		return models.Session{}, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Authenticate validates token and slides the idle window forward. An idle
// session is destroyed and reported as ErrSessionExpired; the returned session
// then still identifies whose session it was.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrUnauthenticated
	}
	s, err := a.store.Get(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return models.Session{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !s.Kind.Valid() || s.PrincipalID == uuid.Nil || s.LastActivity.IsZero() {
		_ = a.store.Delete(ctx, token)
		return models.Session{}, ErrUnauthenticated
	}

	now := a.now()
	if now.Sub(s.LastActivity) > SessionTimeout(s.Kind) {
		if err := a.store.Delete(ctx, token); err != nil {
			return s, fmt.Errorf("destroy expired session: %w", err)
		}
		return s, ErrSessionExpired
	}

	s.LastActivity = now
	if err := a.store.Put(ctx, s, SessionTimeout(s.Kind)+sessionRetention); err != nil {
		return models.Session{}, fmt.Errorf("refresh session: %w", err)
	}
	return s, nil
}

// Touch is Authenticate without the result.
func (a *SessionAuthenticator) Touch(ctx context.Context, token string) error {
	_, err := a.Authenticate(ctx, token)
	return err
}

// Peek reads a session without refreshing or expiring it. Used by logout.
func (a *SessionAuthenticator) Peek(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrUnauthenticated
	}
	s, err := a.store.Get(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return models.Session{}, ErrUnauthenticated
	}
	return s, err
}

// Destroy removes one session.
func (a *SessionAuthenticator) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.store.Delete(ctx, token)
}

// DestroyAllFor removes every session of subject (after a credential change).
func (a *SessionAuthenticator) DestroyAllFor(ctx context.Context, subject models.Subject) error {
	return a.store.DeleteAllFor(ctx, subject)
}

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
