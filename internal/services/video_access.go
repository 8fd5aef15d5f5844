package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/google/uuid"
)

// IssueVideoAccess mints a video token binding the session's patient to
// exerciseID. Only patients with an active assignment for the exercise get one.
func (s *AuthService) IssueVideoAccess(ctx context.Context, session models.Session, exerciseID uuid.UUID, meta models.RequestMeta) (models.EphemeralToken, error) {
	ref := session.Subject()
	extra := map[string]any{"exercise_id": exerciseID.String()}
	if ref.Kind != models.KindPatient {
		extra["reason"] = "not_a_patient"
		return models.EphemeralToken{}, s.failed(ctx, actorOf(ref), models.ActionVideoAccessGranted, ErrForbidden, meta, extra)
	}

	ok, err := s.assignments.HasActiveAssignment(ctx, ref.ID, exerciseID)
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("check assignment: %w", err)
	}
	if !ok {
		extra["reason"] = "no_active_assignment"
		return models.EphemeralToken{}, s.failed(ctx, actorOf(ref), models.ActionVideoAccessGranted, ErrForbidden, meta, extra)
	}

	var token models.EphemeralToken
	err = s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		token, err = s.tokens.Issue(ctx, tx, ref, models.ScopeVideoAccess, models.Binding{ExerciseID: &exerciseID})
		if err != nil {
			return err
		}
		extra["expires_at"] = token.ExpiresAt
		return s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionVideoAccessGranted,
			Status:  models.AuditSuccess,
			Context: extra,
		}, meta)
	})
	if err != nil {
		return models.EphemeralToken{}, err
	}
	return token, nil
}

// RedeemVideoAccess consumes a video token for exerciseID on behalf of the
// session's principal. The caller serves bytes only on a nil error.
func (s *AuthService) RedeemVideoAccess(ctx context.Context, session models.Session, value string, exerciseID uuid.UUID, meta models.RequestMeta) error {
	ref := session.Subject()
	criteria := RedeemCriteria{
		Scope:      models.ScopeVideoAccess,
		Subject:    &ref,
		ExerciseID: &exerciseID,
	}
	extra := map[string]any{"exercise_id": exerciseID.String()}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if _, err := s.tokens.Redeem(ctx, tx, value, criteria); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(ref),
			Action:  models.ActionVideoAccess,
			Status:  models.AuditSuccess,
			Context: extra,
		}, meta)
	})
	if err != nil {
		if IsTokenError(err) || errors.Is(err, ErrScopeMismatch) {
			extra["reason"] = reasonOf(err)
			return s.failed(ctx, actorOf(ref), models.ActionVideoAccess, err, meta, extra)
		}
		return err
	}
	return nil
}
