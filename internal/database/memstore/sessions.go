package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
)

type storedSession struct {
	session   models.Session
	expiresAt time.Time
}

// SessionStore is an in-memory services.SessionStore for development and tests.
type SessionStore struct {
	mu         sync.Mutex
	now        func() time.Time
	sessions   map[string]storedSession
	bySubject  map[models.Subject]string
	failWrites error
}

var _ services.SessionStore = (*SessionStore)(nil)

// NewSessionStore returns an empty store. now drives TTL eviction.
func NewSessionStore(now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		now:       now,
		sessions:  make(map[string]storedSession),
		bySubject: make(map[models.Subject]string),
	}
}

func (s *SessionStore) Get(_ context.Context, token string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[token]
	if !ok {
		return models.Session{}, services.ErrSessionNotFound
	}
	if !s.now().Before(stored.expiresAt) {
		s.remove(token)
		return models.Session{}, services.ErrSessionNotFound
	}
	return stored.session, nil
}

func (s *SessionStore) Put(_ context.Context, session models.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.sessions[session.Token] = storedSession{session: session, expiresAt: s.now().Add(ttl)}
	s.bySubject[session.Subject()] = session.Token
	return nil
}

func (s *SessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(token)
	return nil
}

func (s *SessionStore) DeleteAllFor(_ context.Context, subject models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.bySubject[subject]; ok {
		s.remove(token)
	}
	return nil
}

// FailWrites makes Put fail with err until called with nil.
func (s *SessionStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Len reports how many sessions are stored.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) remove(token string) {
	stored, ok := s.sessions[token]
	if !ok {
		return
	}
	delete(s.sessions, token)
	subject := stored.session.Subject()
	if s.bySubject[subject] == token {
		delete(s.bySubject, subject)
	}
}
