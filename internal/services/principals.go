package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/pkg/utils"
	"github.com/google/uuid"
	"github.com/hengadev/errsx"
)

// PrincipalStore owns the PII rules for patients and staff: what gets
// encrypted, what gets a blind index, and how credentials are written.
// Persistence goes through the PrincipalRepository handed to each call.
type PrincipalStore struct {
	cipher *utils.FieldCipher
	index  *utils.BlindIndexer
	creds  *utils.CredentialVerifier
	now    Clock
}

// NewPrincipalStore wires the crypto primitives built from one KeyMaterial.
func NewPrincipalStore(cipher *utils.FieldCipher, index *utils.BlindIndexer, creds *utils.CredentialVerifier, now Clock) *PrincipalStore {
	return &PrincipalStore{cipher: cipher, index: index, creds: creds, now: now}
}

// Credentials exposes the verifier for login and password change.
func (s *PrincipalStore) Credentials() *utils.CredentialVerifier {
	return s.creds
}

// Digest is the blind index of an identity value.
func (s *PrincipalStore) Digest(value string) string {
	return s.index.Digest(value)
}

// CreatePatient validates attrs, encrypts the PII and inserts the patient.
// A taken email comes back as a *ValidationError matching ErrDuplicateIdentity.
func (s *PrincipalStore) CreatePatient(ctx context.Context, repo PrincipalRepository, attrs models.NewPatientAttrs) (*models.Patient, error) {
	now := s.now()
	attrs.Name = strings.TrimSpace(attrs.Name)
	attrs.Email = strings.TrimSpace(attrs.Email)
	attrs.BirthDate = strings.TrimSpace(attrs.BirthDate)

	var errs errsx.Map
	collectField(&errs, utils.ValidateName(attrs.Name))
	collectField(&errs, utils.ValidateEmail(attrs.Email))
	collectField(&errs, utils.ValidateBirthDate(attrs.BirthDate, now))
	collectField(&errs, utils.ValidatePassword(attrs.Password))
	if err := newValidationError(errs); err != nil {
		return nil, err
	}

	hash, err := s.creds.Hash(attrs.Password)
	if err != nil {
		return nil, err
	}
	p := &models.Patient{
		Principal: models.Principal{
			Kind:           models.KindPatient,
			ID:             uuid.New(),
			IdentityDigest: s.index.Digest(attrs.Email),
			PasswordHash:   hash,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if p.Name, err = s.cipher.Encrypt(attrs.Name); err != nil {
		return nil, err
	}
	if p.Email, err = s.cipher.Encrypt(utils.NormalizeIdentity(attrs.Email)); err != nil {
		return nil, err
	}
	if p.BirthDate, err = s.cipher.EncryptOptional(attrs.BirthDate); err != nil {
		return nil, err
	}

	if err := repo.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, duplicateIdentity("email", "Email is already registered")
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

// CreateStaff validates attrs, encrypts the PII and inserts the staff member.
func (s *PrincipalStore) CreateStaff(ctx context.Context, repo PrincipalRepository, attrs models.NewStaffAttrs) (*models.Staff, error) {
	now := s.now()
	attrs.StaffNumber = strings.TrimSpace(attrs.StaffNumber)
	attrs.Name = strings.TrimSpace(attrs.Name)
	attrs.Email = strings.TrimSpace(attrs.Email)
	if attrs.Role == "" {
		attrs.Role = models.RoleTherapist
	}

	var errs errsx.Map
	collectField(&errs, utils.ValidateStaffNumber(attrs.StaffNumber))
	collectField(&errs, utils.ValidateName(attrs.Name))
	if attrs.Email != "" {
		collectField(&errs, utils.ValidateEmail(attrs.Email))
	}
	if attrs.Role != models.RoleTherapist && attrs.Role != models.RoleAdmin {
		errs.Set("role", "Role must be therapist or admin")
	}
	collectField(&errs, utils.ValidatePassword(attrs.Password))
	if err := newValidationError(errs); err != nil {
		return nil, err
	}

	hash, err := s.creds.Hash(attrs.Password)
	if err != nil {
		return nil, err
	}
	st := &models.Staff{
		Principal: models.Principal{
			Kind:           models.KindStaff,
			ID:             uuid.New(),
			IdentityDigest: s.index.Digest(attrs.StaffNumber),
			PasswordHash:   hash,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Role: attrs.Role,
	}
	if st.StaffNumber, err = s.cipher.Encrypt(attrs.StaffNumber); err != nil {
		return nil, err
	}
	if st.Name, err = s.cipher.Encrypt(attrs.Name); err != nil {
		return nil, err
	}
	if attrs.Email != "" {
		if st.Email, err = s.cipher.Encrypt(utils.NormalizeIdentity(attrs.Email)); err != nil {
			return nil, err
		}
		st.EmailDigest = s.index.Digest(attrs.Email)
	}

	// The unique indexes decide; this lookup only names the conflicting
	// field. It runs first because a failed insert aborts a Postgres tx.
	emailTaken := false
	if attrs.Email != "" {
		_, err := repo.FindActiveByEmail(ctx, models.KindStaff, st.EmailDigest)
		switch {
		case err == nil:
			emailTaken = true
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("check staff email: %w", err)
		}
	}

	if err := repo.CreateStaff(ctx, st); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			if emailTaken {
				return nil, duplicateIdentity("email", "Email is already registered")
			}
			return nil, duplicateIdentity("staff_number", "Staff number is already registered")
		}
		return nil, fmt.Errorf("create staff: %w", err)
	}
	return st, nil
}

// FindActiveByIdentity looks a principal up by its identity field (patient
// email, staff number) through the blind index.
func (s *PrincipalStore) FindActiveByIdentity(ctx context.Context, repo PrincipalRepository, kind models.PrincipalKind, identity string) (models.Account, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrNotFound
	}
	return repo.FindActiveByIdentity(ctx, kind, s.index.Digest(identity))
}

// FindActiveByEmail is the reset lookup. For patients it is the identity
// lookup; staff are found by their optional email digest.
func (s *PrincipalStore) FindActiveByEmail(ctx context.Context, repo PrincipalRepository, kind models.PrincipalKind, email string) (models.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrNotFound
	}
	return repo.FindActiveByEmail(ctx, kind, s.index.Digest(email))
}

// FindActiveByID loads a live principal.
func (s *PrincipalStore) FindActiveByID(ctx context.Context, repo PrincipalRepository, ref models.Subject) (models.Account, error) {
	return repo.FindActiveByID(ctx, ref)
}

// Summarize decrypts the caller-visible fields of acct. Any decryption error
// is returned as ErrDecryptionFailure.
func (s *PrincipalStore) Summarize(acct models.Account) (models.PrincipalSummary, error) {
	switch a := acct.(type) {
	case *models.Patient:
		name, err := s.cipher.Decrypt(a.Name)
		if err != nil {
			return models.PrincipalSummary{}, fmt.Errorf("patient %s name: %w", a.ID, err)
		}
		email, err := s.cipher.Decrypt(a.Email)
		if err != nil {
			return models.PrincipalSummary{}, fmt.Errorf("patient %s email: %w", a.ID, err)
		}
		return models.PrincipalSummary{Kind: models.KindPatient, ID: a.ID.String(), Name: name, Email: email}, nil
	case *models.Staff:
		name, err := s.cipher.Decrypt(a.Name)
		if err != nil {
			return models.PrincipalSummary{}, fmt.Errorf("staff %s name: %w", a.ID, err)
		}
		number, err := s.cipher.Decrypt(a.StaffNumber)
		if err != nil {
			return models.PrincipalSummary{}, fmt.Errorf("staff %s number: %w", a.ID, err)
		}
		email, err := s.cipher.DecryptOptional(a.Email)
		if err != nil {
			return models.PrincipalSummary{}, fmt.Errorf("staff %s email: %w", a.ID, err)
		}
		return models.PrincipalSummary{
			Kind:        models.KindStaff,
			ID:          a.ID.String(),
			Name:        name,
			Email:       email,
			StaffNumber: number,
			Role:        a.Role,
		}, nil
	default:
		return models.PrincipalSummary{}, fmt.Errorf("unknown account type %T", acct)
	}
}

// SetPasswordHash stores an already computed hash.
func (s *PrincipalStore) SetPasswordHash(ctx context.Context, repo PrincipalRepository, ref models.Subject, hash string) error {
	if err := repo.UpdatePassword(ctx, ref, hash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SoftDelete hides the principal from every active lookup. Rows are never removed.
func (s *PrincipalStore) SoftDelete(ctx context.Context, repo PrincipalRepository, ref models.Subject) error {
	if err := repo.SoftDelete(ctx, ref, s.now()); err != nil {
		return fmt.Errorf("soft delete %s: %w", ref, err)
	}
	return nil
}

// passwordError turns a policy violation into a form error.
func passwordError(err error) error {
	if utils.IsValidationError(err) {
		return singleField(err)
	}
	return err
}
