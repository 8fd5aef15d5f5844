// Package app assembles the authentication services from configuration.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/config"
	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/utils"
)

// Backends are the storage adapters chosen by the binary.
type Backends struct {
	Store       services.Store
	Sessions    services.SessionStore
	Assignments services.AssignmentChecker
	Notifier    services.ResetNotifier
}

// NewAuthService builds the service graph. km is the only source of key
// material; nothing below reads the environment.
func NewAuthService(cfg *config.Config, km utils.KeyMaterial, b Backends) (*services.AuthService, error) {
	cipher, err := utils.NewFieldCipher(km)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	creds, err := utils.NewCredentialVerifier(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential verifier: %w", err)
	}
	notifier, err := resetNotifier(cfg, b.Notifier)
	if err != nil {
		return nil, err
	}

	now := services.Clock(time.Now)
	return services.NewAuthService(services.AuthDeps{
		Store:      b.Store,
		Principals: services.NewPrincipalStore(cipher, utils.NewBlindIndexer(km), creds, now),
		Sessions:   services.NewSessionAuthenticator(b.Sessions, now),
		Tokens: services.NewTokenService(now,
			services.WithTokenTTL(models.ScopePasswordReset, cfg.PasswordResetTTL),
			services.WithTokenTTL(models.ScopeVideoAccess, cfg.VideoTokenTTL),
		),
		Lockout:     services.DefaultLockoutPolicy(),
		Audit:       services.NewAuditLogger(now),
		Assignments: b.Assignments,
		Notifier:    notifier,
		Clock:       now,
	}), nil
}

// resetNotifier picks how reset links are delivered. An explicit notifier
// wins, then a configured SMTP relay. Only development may run without one.
func resetNotifier(cfg *config.Config, explicit services.ResetNotifier) (services.ResetNotifier, error) {
	if explicit != nil {
		return explicit, nil
	}
	if cfg.SMTPAddr != "" {
		n, err := services.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("reset notifier: %w", err)
		}
		return n, nil
	}
	if cfg.IsDevelopment() {
		return services.LogNotifier{}, nil
	}
	return nil, errors.New("password reset delivery is not configured: set SMTP_ADDR and SMTP_FROM outside development")
}
