package services

import (
	"errors"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/pkg/utils"
	"github.com/hengadev/errsx"
)

var (
	// Authentication. Every credential failure collapses into one of the first two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrSessionExpired     = errors.New("session expired")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")

	// Ephemeral tokens.
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenUsed      = errors.New("token already used")
	ErrScopeMismatch  = errors.New("token scope mismatch")
	ErrTokenCollision = errors.New("token value collision")

	// Storage.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrSessionNotFound   = errors.New("session not found")

	// ErrDecryptionFailure is a data-integrity failure, never a user error.
	ErrDecryptionFailure = utils.ErrDecryptionFailure
)

// IsTokenError reports whether err is one of the redeem failures that are
// shown to callers as a single "invalid or expired" message.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenUsed)
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields errsx.Map
	cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields.AsError())
}

func (e *ValidationError) Unwrap() error { return e.cause }

// FieldMessages flattens the field map for the response envelope.
func (e *ValidationError) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for field, msg := range e.Fields {
		out[field] = fmt.Sprint(msg)
	}
	return out
}

// newValidationError wraps errs, or returns nil when errs is empty.
func newValidationError(errs errsx.Map) error {
	if errs.IsEmpty() {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// collectField records a *utils.ValidationError under its field name and
// passes any other error through.
func collectField(errs *errsx.Map, err error) {
	if err == nil {
		return
	}
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		errs.Set(ve.Field, ve.Message)
		return
	}
	errs.Set("_", err.Error())
}

// duplicateIdentity reports a taken identity as a form error on field that
// still matches ErrDuplicateIdentity.
func duplicateIdentity(field, message string) error {
	var errs errsx.Map
	errs.Set(field, message)
	return &ValidationError{Fields: errs, cause: ErrDuplicateIdentity}
}

// singleField builds a one-field validation error.
func singleField(err error) error {
	var errs errsx.Map
	collectField(&errs, err)
	return newValidationError(errs)
}
