package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/google/uuid"
)

// RegisterPatient creates a patient account. A taken email is a form error.
func (s *AuthService) RegisterPatient(ctx context.Context, attrs models.NewPatientAttrs, meta models.RequestMeta) (models.PrincipalSummary, error) {
	var created *models.Patient
	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		created, err = s.principals.CreatePatient(ctx, tx.Principals(), attrs)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(created.Ref()),
			Action:  models.ActionPrincipalRegistered,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": models.KindPatient},
		}, meta)
	})
	if err != nil {
		return models.PrincipalSummary{}, s.registrationFailed(ctx, models.KindPatient, err, meta)
	}
	return s.principals.Summarize(created)
}

// ProvisionStaff creates a staff account. Staff never self-register; this is
// reached from the admin CLI only.
func (s *AuthService) ProvisionStaff(ctx context.Context, attrs models.NewStaffAttrs, meta models.RequestMeta) (models.PrincipalSummary, error) {
	var created *models.Staff
	err := s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		created, err = s.principals.CreateStaff(ctx, tx.Principals(), attrs)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(created.Ref()),
			Action:  models.ActionPrincipalRegistered,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": models.KindStaff, "role": created.Role},
		}, meta)
	})
	if err != nil {
		return models.PrincipalSummary{}, s.registrationFailed(ctx, models.KindStaff, err, meta)
	}
	return s.principals.Summarize(created)
}

func (s *AuthService) registrationFailed(ctx context.Context, kind models.PrincipalKind, err error, meta models.RequestMeta) error {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return s.failed(ctx, nil, models.ActionPrincipalRegistered, err, meta,
		map[string]any{"kind": kind, "reason": reasonOf(err)})
}

// SoftDeletePatient hides a patient from every active lookup, revokes their
// live tokens and ends their sessions. Staff only.
func (s *AuthService) SoftDeletePatient(ctx context.Context, session models.Session, patientID uuid.UUID, meta models.RequestMeta) error {
	actor := session.Subject()
	target := models.PatientSubject(patientID)
	extra := map[string]any{"patient_id": patientID.String()}
	if actor.Kind != models.KindStaff {
		extra["reason"] = "not_staff"
		return s.failed(ctx, actorOf(actor), models.ActionPrincipalDeleted, ErrForbidden, meta, extra)
	}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.principals.SoftDelete(ctx, tx.Principals(), target); err != nil {
			return err
		}
		for _, scope := range []models.TokenScope{models.ScopePasswordReset, models.ScopeVideoAccess} {
			if _, err := s.tokens.InvalidateAll(ctx, tx, target, scope); err != nil {
				return err
			}
		}
		if err := s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(actor),
			Action:  models.ActionPrincipalDeleted,
			Status:  models.AuditSuccess,
			Context: extra,
		}, meta); err != nil {
			return err
		}
		return s.sessions.DestroyAllFor(ctx, target)
	})
	if errors.Is(err, ErrNotFound) {
		extra["reason"] = "not_found"
		return s.failed(ctx, actorOf(actor), models.ActionPrincipalDeleted, ErrNotFound, meta, extra)
	}
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	return nil
}
