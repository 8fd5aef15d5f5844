package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// TokenBytes is the amount of randomness in every ephemeral token.
const TokenBytes = 32

// Subject is the principal a token is bound to: exactly one of Patient(id) or
// Staff(id). Consumers switch on Kind and must handle both cases.
type Subject struct {
	Kind PrincipalKind
	ID   uuid.UUID
}

// PatientSubject binds to a patient.
func PatientSubject(id uuid.UUID) Subject { return Subject{Kind: KindPatient, ID: id} }

// StaffSubject binds to a staff member.
func StaffSubject(id uuid.UUID) Subject { return Subject{Kind: KindStaff, ID: id} }

// Columns splits s into the mutually exclusive (patient_id, staff_id) pair.
func (s Subject) Columns() (patientID, staffID *uuid.UUID, err error) {
	id := s.ID
	switch s.Kind {
	case KindPatient:
		return &id, nil, nil
	case KindStaff:
		return nil, &id, nil
	default:
		return nil, nil, fmt.Errorf("subject has unknown kind %q", s.Kind)
	}
}

// SubjectFromColumns is the inverse of Columns.
func SubjectFromColumns(patientID, staffID *uuid.UUID) (Subject, error) {
	switch {
	case patientID != nil && staffID == nil:
		return PatientSubject(*patientID), nil
	case staffID != nil && patientID == nil:
		return StaffSubject(*staffID), nil
	default:
		return Subject{}, errors.New("token must reference exactly one of patient or staff")
	}
}

func (s Subject) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}

// TokenScope is what a token grants.
type TokenScope string

const (
	ScopePasswordReset TokenScope = "password_reset"
	ScopeVideoAccess   TokenScope = "video_access"
)

// SingleActive reports whether issuing a token revokes the subject's other
// live tokens of the same scope.
func (s TokenScope) SingleActive() bool {
	return s == ScopePasswordReset
}

// Binding narrows what a token may be redeemed for. Video tokens bind an
// exercise; password reset tokens bind nothing beyond the subject.
type Binding struct {
	ExerciseID *uuid.UUID
}

// EphemeralToken is a stored single-use capability. Only TokenHash is
// persisted; Value is handed to the holder once and never stored.
type EphemeralToken struct {
	ID        uuid.UUID
	Value     string
	TokenHash string
	Subject   Subject
	Scope     TokenScope
	Binding   Binding
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Valid reports whether the token can still be redeemed at now.
func (t EphemeralToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	Subject Subject
	Scope   TokenScope
	Binding Binding
	TTL     time.Duration
}

// Validate checks the scope/subject/binding combination.
func (r TokenRequest) Validate() error {
	if !r.Subject.Kind.Valid() || r.Subject.ID == uuid.Nil {
		return errors.New("token subject is required")
	}
	if r.TTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch r.Scope {
	case ScopePasswordReset:
		if r.Binding.ExerciseID != nil {
			return errors.New("password reset tokens cannot bind an exercise")
		}
	case ScopeVideoAccess:
		if r.Subject.Kind != KindPatient {
			return errors.New("video access tokens are issued to patients only")
		}
		if r.Binding.ExerciseID == nil {
			return errors.New("video access tokens must bind an exercise")
		}
	default:
		return fmt.Errorf("unknown token scope %q", r.Scope)
	}
	return nil
}

// NewEphemeralToken builds a complete, valid token for req issued at now.
// randSource is crypto/rand.Reader outside tests.
func NewEphemeralToken(req TokenRequest, now time.Time, randSource io.Reader) (EphemeralToken, error) {
	if err := req.Validate(); err != nil {
		return EphemeralToken{}, err
	}
	raw := make([]byte, TokenBytes)
	if _, err := io.ReadFull(randSource, raw); err != nil {
		return EphemeralToken{}, fmt.Errorf("generate token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(raw)
	return EphemeralToken{
		ID:        uuid.New(),
		Value:     value,
		TokenHash: HashTokenValue(value),
		Subject:   req.Subject,
		Scope:     req.Scope,
		Binding:   req.Binding,
		IssuedAt:  now,
		ExpiresAt: now.Add(req.TTL),
	}, nil
}

// HashTokenValue is the lookup key of a presented token value.
func HashTokenValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// DefaultRandSource is the randomness used for token values.
var DefaultRandSource io.Reader = rand.Reader
