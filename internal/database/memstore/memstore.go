// Package memstore keeps principals, tokens and audit entries in memory. It
// honors the same uniqueness and atomicity guarantees as the Postgres store:
// every operation runs under one mutex and WithinTx holds that mutex for the
// whole transaction, restoring a snapshot when fn fails.
package memstore

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/google/uuid"
)

type assignmentKey struct {
	patientID  uuid.UUID
	exerciseID uuid.UUID
}

type data struct {
	patients    map[uuid.UUID]models.Patient
	staff       map[uuid.UUID]models.Staff
	tokens      map[string]models.EphemeralToken // by token hash
	audit       []models.AuditEntry
	assignments map[assignmentKey]bool
	auditErr    error
}

func (d *data) clone() *data {
	return &data{
		patients:    maps.Clone(d.patients),
		staff:       maps.Clone(d.staff),
		tokens:      maps.Clone(d.tokens),
		audit:       append([]models.AuditEntry(nil), d.audit...),
		assignments: maps.Clone(d.assignments),
		auditErr:    d.auditErr,
	}
}

type shared struct {
	mu sync.Mutex
	d  *data
}

// Store is an in-memory services.Store.
type Store struct {
	sh   *shared
	inTx bool
}

var _ services.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{sh: &shared{d: &data{
		patients:    make(map[uuid.UUID]models.Patient),
		staff:       make(map[uuid.UUID]models.Staff),
		tokens:      make(map[string]models.EphemeralToken),
		assignments: make(map[assignmentKey]bool),
	}}}
}

// with runs fn on the data, taking the lock unless a transaction holds it.
func (s *Store) with(fn func(d *data) error) error {
	if !s.inTx {
		s.sh.mu.Lock()
		defer s.sh.mu.Unlock()
	}
	return fn(s.sh.d)
}

func (s *Store) Principals() services.PrincipalRepository { return principalRepo{s} }
func (s *Store) Tokens() services.TokenRepository         { return tokenRepo{s} }
func (s *Store) Audit() services.AuditRepository          { return auditRepo{s} }

// WithinTx runs fn with exclusive access. Nested calls join the running
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx services.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()

	snapshot := s.sh.d.clone()
	committed := false
	defer func() {
		if !committed {
			s.sh.d = snapshot
		}
	}()
	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddAssignment marks exerciseID as actively assigned to patientID.
func (s *Store) AddAssignment(patientID, exerciseID uuid.UUID) {
	_ = s.with(func(d *data) error {
		d.assignments[assignmentKey{patientID, exerciseID}] = true
		return nil
	})
}

// EndAssignment ends an assignment.
func (s *Store) EndAssignment(patientID, exerciseID uuid.UUID) {
	_ = s.with(func(d *data) error {
		delete(d.assignments, assignmentKey{patientID, exerciseID})
		return nil
	})
}

// HasActiveAssignment implements services.AssignmentChecker.
func (s *Store) HasActiveAssignment(_ context.Context, patientID, exerciseID uuid.UUID) (bool, error) {
	var ok bool
	_ = s.with(func(d *data) error {
		ok = d.assignments[assignmentKey{patientID, exerciseID}]
		return nil
	})
	return ok, nil
}

// AuditEntries returns a copy of the audit log in insertion order.
func (s *Store) AuditEntries() []models.AuditEntry {
	var out []models.AuditEntry
	_ = s.with(func(d *data) error {
		out = append(out, d.audit...)
		return nil
	})
	return out
}

// FailAuditWrites makes every audit insert fail with err until called with nil.
func (s *Store) FailAuditWrites(err error) {
	_ = s.with(func(d *data) error {
		d.auditErr = err
		return nil
	})
}

// Token returns the stored token with the given hash.
func (s *Store) Token(hash string) (models.EphemeralToken, bool) {
	var (
		t  models.EphemeralToken
		ok bool
	)
	_ = s.with(func(d *data) error {
		t, ok = d.tokens[hash]
		return nil
	})
	return t, ok
}

type principalRepo struct{ s *Store }

func (r principalRepo) CreatePatient(_ context.Context, p *models.Patient) error {
	return r.s.with(func(d *data) error {
		for _, other := range d.patients {
			if other.SoftDeletedAt == nil && other.IdentityDigest == p.IdentityDigest {
				return services.ErrDuplicateIdentity
			}
		}
		d.patients[p.ID] = *p
		return nil
	})
}

func (r principalRepo) CreateStaff(_ context.Context, st *models.Staff) error {
	return r.s.with(func(d *data) error {
		for _, other := range d.staff {
			if other.SoftDeletedAt != nil {
				continue
			}
			if other.IdentityDigest == st.IdentityDigest {
				return services.ErrDuplicateIdentity
			}
			if st.EmailDigest != "" && other.EmailDigest == st.EmailDigest {
				return services.ErrDuplicateIdentity
			}
		}
		d.staff[st.ID] = *st
		return nil
	})
}

func (r principalRepo) FindActiveByIdentity(_ context.Context, kind models.PrincipalKind, digest string) (models.Account, error) {
	return r.find(kind, func(p models.Principal, emailDigest string) bool {
		return p.IdentityDigest == digest
	})
}

func (r principalRepo) FindActiveByEmail(_ context.Context, kind models.PrincipalKind, digest string) (models.Account, error) {
	return r.find(kind, func(p models.Principal, emailDigest string) bool {
		return emailDigest != "" && emailDigest == digest
	})
}

func (r principalRepo) FindActiveByID(_ context.Context, ref models.Subject) (models.Account, error) {
	return r.find(ref.Kind, func(p models.Principal, _ string) bool {
		return p.ID == ref.ID
	})
}

func (r principalRepo) find(kind models.PrincipalKind, match func(p models.Principal, emailDigest string) bool) (models.Account, error) {
	var found models.Account
	err := r.s.with(func(d *data) error {
		switch kind {
		case models.KindPatient:
			for _, p := range d.patients {
				if p.SoftDeletedAt == nil && match(p.Principal, p.IdentityDigest) {
					found = &p
					return nil
				}
			}
		case models.KindStaff:
			for _, st := range d.staff {
				if st.SoftDeletedAt == nil && match(st.Principal, st.EmailDigest) {
					found = &st
					return nil
				}
			}
		}
		return services.ErrNotFound
	})
	return found, err
}

// update applies fn to the live principal ref.
func (r principalRepo) update(ref models.Subject, fn func(p *models.Principal)) error {
	return r.s.with(func(d *data) error {
		switch ref.Kind {
		case models.KindPatient:
			p, ok := d.patients[ref.ID]
			if !ok || p.SoftDeletedAt != nil {
				return services.ErrNotFound
			}
			fn(&p.Principal)
			d.patients[ref.ID] = p
		case models.KindStaff:
			st, ok := d.staff[ref.ID]
			if !ok || st.SoftDeletedAt != nil {
				return services.ErrNotFound
			}
			fn(&st.Principal)
			d.staff[ref.ID] = st
		default:
			return services.ErrNotFound
		}
		return nil
	})
}

func (r principalRepo) SoftDelete(_ context.Context, ref models.Subject, at time.Time) error {
	return r.update(ref, func(p *models.Principal) {
		p.SoftDeletedAt = &at
		p.UpdatedAt = at
	})
}

func (r principalRepo) UpdatePassword(_ context.Context, ref models.Subject, hash string, at time.Time) error {
	return r.update(ref, func(p *models.Principal) {
		p.PasswordHash = hash
		p.Lockout = models.LockoutState{}
		p.UpdatedAt = at
	})
}

func (r principalRepo) IncrementFailedAttempts(_ context.Context, ref models.Subject, threshold int, lockedUntil time.Time) (models.LockoutState, error) {
	var state models.LockoutState
	err := r.update(ref, func(p *models.Principal) {
		p.Lockout.FailedAttemptCount++
		if p.Lockout.FailedAttemptCount >= threshold {
			until := lockedUntil
			p.Lockout.LockedUntil = &until
		}
		state = p.Lockout
	})
	return state, err
}

func (r principalRepo) ResetFailedAttempts(_ context.Context, ref models.Subject) error {
	return r.update(ref, func(p *models.Principal) {
		p.Lockout = models.LockoutState{}
	})
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Insert(_ context.Context, t models.EphemeralToken) error {
	if _, _, err := t.Subject.Columns(); err != nil {
		return err
	}
	return r.s.with(func(d *data) error {
		if _, exists := d.tokens[t.TokenHash]; exists {
			return services.ErrTokenCollision
		}
		t.Value = ""
		d.tokens[t.TokenHash] = t
		return nil
	})
}

func (r tokenRepo) InvalidateActive(_ context.Context, subject models.Subject, scope models.TokenScope, now time.Time) (int64, error) {
	var n int64
	err := r.s.with(func(d *data) error {
		for hash, t := range d.tokens {
			if t.Subject == subject && t.Scope == scope && t.Valid(now) {
				used := now
				t.UsedAt = &used
				d.tokens[hash] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r tokenRepo) Consume(_ context.Context, tokenHash string, c services.RedeemCriteria, now time.Time) (models.EphemeralToken, error) {
	var out models.EphemeralToken
	err := r.s.with(func(d *data) error {
		t, ok := d.tokens[tokenHash]
		if !ok || !t.Valid(now) || !c.Matches(t) {
			return services.ErrNotFound
		}
		used := now
		t.UsedAt = &used
		d.tokens[tokenHash] = t
		out = t
		return nil
	})
	return out, err
}

func (r tokenRepo) GetByHash(_ context.Context, tokenHash string) (models.EphemeralToken, error) {
	var out models.EphemeralToken
	err := r.s.with(func(d *data) error {
		t, ok := d.tokens[tokenHash]
		if !ok {
			return services.ErrNotFound
		}
		out = t
		return nil
	})
	return out, err
}

type auditRepo struct{ s *Store }

func (r auditRepo) Insert(_ context.Context, e models.AuditEntry) error {
	return r.s.with(func(d *data) error {
		if d.auditErr != nil {
			return d.auditErr
		}
		if e.ID == uuid.Nil {
			return errors.New("audit entry without id")
		}
		e.Context = maps.Clone(e.Context)
		d.audit = append(d.audit, e)
		return nil
	})
}
