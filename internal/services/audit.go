package services

import (
	"context"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/google/uuid"
)

// AuditLogger writes audit entries through whatever repository the caller is
// holding, so an entry commits or rolls back with the action it describes.
type AuditLogger struct {
	now Clock
}

// NewAuditLogger returns an AuditLogger stamping entries with now.
func NewAuditLogger(now Clock) *AuditLogger {
	return &AuditLogger{now: now}
}

// AuditEvent is the variable part of an entry.
type AuditEvent struct {
	Actor   *models.Subject
	Action  models.AuditAction
	Status  models.AuditStatus
	Context map[string]any
}

// Record appends one entry. A failed write is returned, never dropped.
func (l *AuditLogger) Record(ctx context.Context, repo AuditRepository, ev AuditEvent, meta models.RequestMeta) error {
	entry := models.AuditEntry{
		ID:        uuid.New(),
		Actor:     ev.Actor,
		Action:    ev.Action,
		Status:    ev.Status,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Context:   ev.Context,
		CreatedAt: l.now(),
	}
	if entry.Context == nil {
		entry.Context = map[string]any{}
	}
	if err := repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("write audit entry %s: %w", ev.Action, err)
	}
	return nil
}

// RecordOnly writes an entry in its own unit of work. Used for outcomes that
// changed no other state (rejected logins, failed redemptions).
func (l *AuditLogger) RecordOnly(ctx context.Context, st Store, ev AuditEvent, meta models.RequestMeta) error {
	return st.WithinTx(ctx, func(tx Store) error {
		return l.Record(ctx, tx.Audit(), ev, meta)
	})
}

func actorOf(ref models.Subject) *models.Subject {
	return &ref
}
