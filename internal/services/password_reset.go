package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/models"
)

// RequestPasswordReset issues a reset token for the principal with email and
// hands it to the notifier. The result is the same whether or not the email
// is registered; failures after a match are logged, not returned.
func (s *AuthService) RequestPasswordReset(ctx context.Context, kind models.PrincipalKind, email string, meta models.RequestMeta) error {
	requested := AuditEvent{
		Action:  models.ActionPasswordResetRequested,
		Status:  models.AuditSuccess,
		Context: map[string]any{"kind": kind},
	}
	if !kind.Valid() {
		return s.audit.RecordOnly(ctx, s.store, requested, meta)
	}

	acct, err := s.principals.FindActiveByEmail(ctx, s.store.Principals(), kind, email)
	if errors.Is(err, ErrNotFound) {
		return s.audit.RecordOnly(ctx, s.store, requested, meta)
	}
	if err != nil {
		return fmt.Errorf("load principal: %w", err)
	}
	ref := acct.Base().Ref()

	var token models.EphemeralToken
	err = s.store.WithinTx(ctx, func(tx Store) error {
		var err error
		token, err = s.tokens.Issue(ctx, tx, ref, models.ScopePasswordReset, models.Binding{})
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx.Audit(), requested, meta)
	})
	if err != nil {
		logx.Errorf("password reset for %s: %v", ref, err)
		requested.Status = models.AuditFailure
		return s.audit.RecordOnly(ctx, s.store, requested, meta)
	}

	summary, err := s.principals.Summarize(acct)
	if err != nil {
		logx.Alertf("decrypt %s for password reset: %v", ref, err)
		return nil
	}
	msg := ResetMessage{
		Kind:      kind,
		Email:     summary.Email,
		Name:      summary.Name,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.notifier.SendPasswordReset(ctx, msg); err != nil {
		logx.Errorf("deliver password reset for %s: %v", ref, err)
	}
	return nil
}

// CompletePasswordReset redeems a reset token and sets newPassword for its
// subject. The lockout state is cleared and every session of the subject is
// destroyed. A password that fails the policy leaves the token unused.
func (s *AuthService) CompletePasswordReset(ctx context.Context, value, newPassword string, meta models.RequestMeta) error {
	hash, err := s.principals.Credentials().Hash(newPassword)
	if err != nil {
		return s.failed(ctx, nil, models.ActionPasswordResetCompleted, passwordError(err), meta,
			map[string]any{"reason": "password_policy"})
	}

	var subject models.Subject
	err = s.store.WithinTx(ctx, func(tx Store) error {
		t, err := s.tokens.Redeem(ctx, tx, value, RedeemCriteria{Scope: models.ScopePasswordReset})
		if err != nil {
			return err
		}
		subject = t.Subject
		if err := s.principals.SetPasswordHash(ctx, tx.Principals(), subject, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				// The principal was deleted after the token was issued.
				return ErrTokenNotFound
			}
			return err
		}
		if err := s.audit.Record(ctx, tx.Audit(), AuditEvent{
			Actor:   actorOf(subject),
			Action:  models.ActionPasswordResetCompleted,
			Status:  models.AuditSuccess,
			Context: map[string]any{"kind": subject.Kind},
		}, meta); err != nil {
			return err
		}
		return s.sessions.DestroyAllFor(ctx, subject)
	})
	if err != nil {
		if IsTokenError(err) || errors.Is(err, ErrScopeMismatch) {
			return s.failed(ctx, nil, models.ActionPasswordResetCompleted, err, meta,
				map[string]any{"reason": reasonOf(err)})
		}
		return err
	}
	return nil
}
