package utils

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8
	// MinPasswordClasses is how many of {lower, upper, digit, symbol} a password needs.
	MinPasswordClasses = 2
	// DefaultBcryptCost is used when no cost is configured.
	DefaultBcryptCost = 12
	// maxPasswordBytes is bcrypt's input limit.
	maxPasswordBytes = 72
)

// CredentialVerifier hashes and verifies passwords with bcrypt.
type CredentialVerifier struct {
	cost      int
	dummyHash []byte
}

// NewCredentialVerifier returns a verifier using cost; out-of-range costs are
// rejected so a misconfiguration cannot silently weaken hashing.
func NewCredentialVerifier(cost int) (*CredentialVerifier, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("rehab-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &CredentialVerifier{cost: cost, dummyHash: dummy}, nil
}

// Hash validates the password policy and returns a bcrypt hash.
func (v *CredentialVerifier) Hash(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. An empty or malformed hash
// never matches.
func (v *CredentialVerifier) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy burns the same amount of time as a real Verify. Used when the
// identity does not exist.
func (v *CredentialVerifier) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
}

// ValidatePassword enforces the acceptance policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}
	if len(password) > maxPasswordBytes {
		return &ValidationError{Field: "password", Message: "Password must be at most 72 bytes"}
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}
	if classes < MinPasswordClasses {
		return &ValidationError{
			Field:   "password",
			Message: "Password must mix at least 2 of: lowercase, uppercase, digits, symbols",
		}
	}
	return nil
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
