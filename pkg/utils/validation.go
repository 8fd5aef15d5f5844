package utils

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

const (
	MaxNameLength   = 120
	BirthDateLayout = "2006-01-02"
)

var staffNumberRegex = regexp.MustCompile(`^[A-Za-z0-9-]{3,32}$`)

// ValidationError represents a validation error on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateEmail checks the address syntax only.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "Email is not a valid address"}
	}
	return nil
}

// ValidateName requires a non-empty display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "Name is required"}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "Name must be at most 120 characters"}
	}
	return nil
}

// ValidateStaffNumber: 3-32 characters, letters, digits and dashes.
func ValidateStaffNumber(number string) error {
	if !staffNumberRegex.MatchString(strings.TrimSpace(number)) {
		return &ValidationError{Field: "staff_number", Message: "Staff number must be 3-32 letters, digits or dashes"}
	}
	return nil
}

// ValidateBirthDate accepts an empty value or a past YYYY-MM-DD date.
func ValidateBirthDate(value string, now time.Time) error {
	if value == "" {
		return nil
	}
	d, err := time.Parse(BirthDateLayout, value)
	if err != nil {
		return &ValidationError{Field: "birth_date", Message: "Birth date must use YYYY-MM-DD"}
	}
	if !d.Before(now) {
		return &ValidationError{Field: "birth_date", Message: "Birth date must be in the past"}
	}
	return nil
}
