package models

import (
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/pkg/utils"
	"github.com/google/uuid"
)

// PrincipalKind distinguishes the two kinds of authenticatable accounts.
type PrincipalKind string

const (
	KindPatient PrincipalKind = "patient"
	KindStaff   PrincipalKind = "staff"
)

// Valid reports whether k is one of the known kinds.
func (k PrincipalKind) Valid() bool {
	return k == KindPatient || k == KindStaff
}

// ParsePrincipalKind parses "patient" or "staff".
func ParsePrincipalKind(s string) (PrincipalKind, error) {
	k := PrincipalKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown principal kind %q", s)
	}
	return k, nil
}

// StaffRole is the role of a staff member.
type StaffRole string

const (
	RoleTherapist StaffRole = "therapist"
	RoleAdmin     StaffRole = "admin"
)

// LockoutState is embedded in every principal.
type LockoutState struct {
	FailedAttemptCount int
	LockedUntil        *time.Time
}

// Principal is the part shared by patients and staff: identity, credential and lockout.
type Principal struct {
	Kind           PrincipalKind
	ID             uuid.UUID
	IdentityDigest string
	PasswordHash   string
	Lockout        LockoutState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SoftDeletedAt  *time.Time
}

// Ref returns the subject reference of p.
func (p Principal) Ref() Subject {
	return Subject{Kind: p.Kind, ID: p.ID}
}

// Patient is a clinic patient. Email is the identity field.
type Patient struct {
	Principal

	Name      utils.EncryptedAttribute
	Email     utils.EncryptedAttribute
	BirthDate utils.EncryptedAttribute // optional, YYYY-MM-DD
}

// Staff is a clinic staff member. StaffNumber is the identity field; email is optional.
type Staff struct {
	Principal

	StaffNumber utils.EncryptedAttribute
	Name        utils.EncryptedAttribute
	Email       utils.EncryptedAttribute // optional
	EmailDigest string                   // empty when no email
	Role        StaffRole
}

// NewPatientAttrs is the plaintext input of patient registration.
type NewPatientAttrs struct {
	Name      string
	Email     string
	BirthDate string
	Password  string
}

// NewStaffAttrs is the plaintext input of staff provisioning.
type NewStaffAttrs struct {
	StaffNumber string
	Name        string
	Email       string
	Role        StaffRole
	Password    string
}

// PrincipalSummary is the decrypted view returned to callers.
type PrincipalSummary struct {
	Kind        PrincipalKind `json:"kind"`
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email,omitempty"`
	StaffNumber string        `json:"staff_number,omitempty"`
	Role        StaffRole     `json:"role,omitempty"`
}

// Account is a loaded principal of either kind: *Patient or *Staff.
type Account interface {
	Base() Principal
}

// Base returns the shared principal fields.
func (p *Patient) Base() Principal { return p.Principal }

// Base returns the shared principal fields.
func (s *Staff) Base() Principal { return s.Principal }
