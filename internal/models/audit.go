package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates security events.
type AuditAction string

const (
	ActionLoginSucceeded         AuditAction = "login_succeeded"
	ActionLoginFailed            AuditAction = "login_failed"
	ActionLogout                 AuditAction = "logout"
	ActionSessionExpired         AuditAction = "session_expired"
	ActionPasswordChanged        AuditAction = "password_changed"
	ActionPasswordResetRequested AuditAction = "password_reset_requested"
	ActionPasswordResetCompleted AuditAction = "password_reset_completed"
	ActionVideoAccessGranted     AuditAction = "video_access_granted"
	ActionVideoAccess            AuditAction = "video_access"
	ActionPrincipalRegistered    AuditAction = "principal_registered"
	ActionPrincipalDeleted       AuditAction = "principal_deleted"
)

// AuditStatus is the outcome of the audited action.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditEntry is one append-only audit record. Actor is nil for anonymous events.
type AuditEntry struct {
	ID        uuid.UUID
	Actor     *Subject
	Action    AuditAction
	Status    AuditStatus
	IPAddress string
	UserAgent string
	Context   map[string]any
	CreatedAt time.Time
}

// RequestMeta carries the request attributes recorded with every audit entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
