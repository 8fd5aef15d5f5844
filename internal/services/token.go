package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
)

// DefaultTokenTTL applies to both scopes unless configured otherwise.
const DefaultTokenTTL = time.Hour

// TokenService issues and redeems single-use ephemeral tokens.
type TokenService struct {
	now        Clock
	randSource io.Reader
	retry      RetryConfig
	ttls       map[models.TokenScope]time.Duration
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenTTL overrides the lifetime of one scope.
func WithTokenTTL(scope models.TokenScope, ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttls[scope] = ttl
		}
	}
}

// WithRandSource replaces crypto/rand, for tests that force collisions.
func WithRandSource(r io.Reader) TokenOption {
	return func(s *TokenService) { s.randSource = r }
}

// WithTokenRetry replaces the collision retry bounds.
func WithTokenRetry(cfg RetryConfig) TokenOption {
	return func(s *TokenService) { s.retry = cfg }
}

// NewTokenService builds a TokenService with one hour TTLs.
func NewTokenService(now Clock, opts ...TokenOption) *TokenService {
	s := &TokenService{
		now:        now,
		randSource: models.DefaultRandSource,
		retry:      DefaultTokenRetry,
		ttls: map[models.TokenScope]time.Duration{
			models.ScopePasswordReset: DefaultTokenTTL,
			models.ScopeVideoAccess:   DefaultTokenTTL,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured lifetime of scope.
func (s *TokenService) TTL(scope models.TokenScope) time.Duration {
	if ttl, ok := s.ttls[scope]; ok {
		return ttl
	}
	return DefaultTokenTTL
}

// Issue mints a token for subject and scope. For single-active scopes every
// live token of the same subject and scope is marked used first, in the same
// transaction as the insert.
func (s *TokenService) Issue(ctx context.Context, st Store, subject models.Subject, scope models.TokenScope, binding models.Binding) (models.EphemeralToken, error) {
	req := models.TokenRequest{Subject: subject, Scope: scope, Binding: binding, TTL: s.TTL(scope)}
	if err := req.Validate(); err != nil {
		return models.EphemeralToken{}, err
	}

	var issued models.EphemeralToken
	err := st.WithinTx(ctx, func(tx Store) error {
		now := s.now()
		if scope.SingleActive() {
			if _, err := tx.Tokens().InvalidateActive(ctx, subject, scope, now); err != nil {
				return fmt.Errorf("invalidate active tokens: %w", err)
			}
		}
		t, err := s.insertWithRetry(ctx, tx.Tokens(), req, now)
		if err != nil {
			return err
		}
		issued = t
		return nil
	})
	if err != nil {
		return models.EphemeralToken{}, err
	}
	return issued, nil
}

// insertWithRetry regenerates the token value when the insert collides with an
// existing hash. Anything other than a collision ends the loop.
func (s *TokenService) insertWithRetry(ctx context.Context, repo TokenRepository, req models.TokenRequest, now time.Time) (models.EphemeralToken, error) {
	var t models.EphemeralToken
	err := retryOn(ctx, s.retry, ErrTokenCollision, func(int) error {
		candidate, err := models.NewEphemeralToken(req, now, s.randSource)
		if err != nil {
			return err
		}
		if err := repo.Insert(ctx, candidate); err != nil {
			return err
		}
		t = candidate
		return nil
	})
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("insert token: %w", err)
	}
	return t, nil
}

// Redeem consumes the token with the given value if it is live and matches c.
// The check and the used_at write are one conditional update, so of two
// concurrent redemptions at most one succeeds. A token that is live but bound
// elsewhere fails with ErrScopeMismatch and stays redeemable.
func (s *TokenService) Redeem(ctx context.Context, st Store, value string, c RedeemCriteria) (models.EphemeralToken, error) {
	if value == "" {
		return models.EphemeralToken{}, ErrTokenNotFound
	}
	hash := models.HashTokenValue(value)
	now := s.now()

	t, err := st.Tokens().Consume(ctx, hash, c, now)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.EphemeralToken{}, fmt.Errorf("consume token: %w", err)
	}
	return models.EphemeralToken{}, s.classify(ctx, st.Tokens(), hash, c, now)
}

// classify explains why Consume changed nothing.
func (s *TokenService) classify(ctx context.Context, repo TokenRepository, hash string, c RedeemCriteria, now time.Time) error {
	t, err := repo.GetByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	switch {
	case t.Scope != c.Scope:
		// A token of another scope does not exist as far as this caller knows.
		return ErrTokenNotFound
	case !now.Before(t.ExpiresAt):
		return ErrTokenExpired
	case t.UsedAt != nil:
		return ErrTokenUsed
	case !c.Matches(t):
		return ErrScopeMismatch
	default:
		// Live and matching, so a concurrent redeem consumed it in between.
		return ErrTokenUsed
	}
}

// InvalidateAll marks every live token of subject and scope used.
func (s *TokenService) InvalidateAll(ctx context.Context, st Store, subject models.Subject, scope models.TokenScope) (int64, error) {
	n, err := st.Tokens().InvalidateActive(ctx, subject, scope, s.now())
	if err != nil {
		return 0, fmt.Errorf("invalidate tokens: %w", err)
	}
	return n, nil
}
