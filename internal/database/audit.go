package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/models"
)

type auditRepo struct {
	q queryer
}

func (r auditRepo) Insert(ctx context.Context, e models.AuditEntry) error {
	payload, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("encode audit context: %w", err)
	}
	var (
		actorKind any
		actorID   any
	)
	if e.Actor != nil {
		actorKind = string(e.Actor.Kind)
		actorID = e.Actor.ID
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_kind, actor_id, action, status, ip_address, user_agent, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, actorKind, actorID, string(e.Action), string(e.Status),
		nullString(e.IPAddress), nullString(e.UserAgent), string(payload), e.CreatedAt,
	)
	return err
}
