package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
)

const (
	// DefaultLockoutThreshold applies to both principal kinds.
	DefaultLockoutThreshold = 5
	// PatientLockoutDuration is how long a patient stays locked.
	PatientLockoutDuration = 30 * time.Minute
	// StaffLockoutDuration is how long a staff member stays locked.
	StaffLockoutDuration = 15 * time.Minute
)

// LockoutPolicy counts failed logins and locks a principal for a kind-specific
// duration once the threshold is reached. There is no explicit unlock: a lock
// lapses when the clock passes LockedUntil.
type LockoutPolicy struct {
	Threshold       int
	PatientDuration time.Duration
	StaffDuration   time.Duration
}

// DefaultLockoutPolicy returns 5 attempts / 30m patients / 15m staff.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold:       DefaultLockoutThreshold,
		PatientDuration: PatientLockoutDuration,
		StaffDuration:   StaffLockoutDuration,
	}
}

// Duration returns the lock duration for kind.
func (p LockoutPolicy) Duration(kind models.PrincipalKind) time.Duration {
	switch kind {
	case models.KindStaff:
		return p.StaffDuration
	default:
		return p.PatientDuration
	}
}

// IsLocked is a pure read: locked iff LockedUntil is set and still ahead of now.
func (p LockoutPolicy) IsLocked(state models.LockoutState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// RecordFailure increments the failure counter and locks when the threshold is
// reached, as one atomic write.
func (p LockoutPolicy) RecordFailure(ctx context.Context, repo PrincipalRepository, ref models.Subject, now time.Time) (models.LockoutState, error) {
	state, err := repo.IncrementFailedAttempts(ctx, ref, p.Threshold, now.Add(p.Duration(ref.Kind)))
	if err != nil {
		return models.LockoutState{}, fmt.Errorf("record failed attempt: %w", err)
	}
	return state, nil
}

// RecordSuccess clears the counter and any lock.
func (p LockoutPolicy) RecordSuccess(ctx context.Context, repo PrincipalRepository, ref models.Subject) error {
	if err := repo.ResetFailedAttempts(ctx, ref); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}
