// AngelaMos | 2026
// refresh.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/petlove/backoffice-api/internal/core"
)

const purgeRetention = 24 * time.Hour

var (
	ErrRefreshTokenNotFound = fmt.Errorf("refresh token not found: %w", core.ErrNotFound)
	// ErrTokenReuse is a refusal to rotate an already rotated token. It is
	// also an ErrTokenInactive so callers that only care about usability
	// need a single check.
	ErrTokenReuse = fmt.Errorf("refresh token reuse detected: %w", core.ErrTokenInactive)
)

// IssuedRefreshToken pairs the opaque value handed to the client with the
// record stored for it.
type IssuedRefreshToken struct {
	Token  string
	Record *RefreshToken
}

type RefreshStore struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

type StoreOption func(*RefreshStore)

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *RefreshStore) {
		s.now = now
	}
}

func NewRefreshStore(repo Repository, ttl time.Duration, opts ...StoreOption) *RefreshStore {
	s := &RefreshStore{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue starts a new rotation chain for userID.
func (s *RefreshStore) Issue(
	ctx context.Context,
	userID int64,
	clientIP, userAgent string,
) (*IssuedRefreshToken, error) {
	issued, err := s.newToken(userID, uuid.New().String(), clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, issued.Record); err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return issued, nil
}

func (s *RefreshStore) Lookup(ctx context.Context, token string) (*RefreshToken, error) {
	return s.repo.FindByHash(ctx, core.HashToken(token))
}

// Rotate exchanges an active token for its successor. Presenting a token
// that was already rotated revokes its whole family.
func (s *RefreshStore) Rotate(
	ctx context.Context,
	token, clientIP, userAgent string,
) (*IssuedRefreshToken, error) {
	ctx, span := core.StartSpan(ctx, "auth.RefreshStore.Rotate")
	defer span.End()

	hash := core.HashToken(token)
	now := s.now()

	current, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	if current.Used {
		s.handleReuse(ctx, current)
		return nil, ErrTokenReuse
	}

	if !current.IsActive(now) {
		return nil, fmt.Errorf("rotate refresh token: %w", core.ErrTokenInactive)
	}

	next, err := s.newToken(current.UserID, current.FamilyID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Rotate(ctx, hash, next.Record, now); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return next, nil
}

func (s *RefreshStore) handleReuse(ctx context.Context, current *RefreshToken) {
	logger := core.LoggerFromContext(ctx)

	revoked, err := s.RevokeFamily(ctx, current.FamilyID, ReasonReuseDetected)
	if err != nil {
		logger.Error("failed to revoke token family after reuse",
			"family_id", current.FamilyID,
			"error", err,
		)
	}

	logger.Warn("security event: refresh token reuse detected",
		"user_id", current.UserID,
		"family_id", current.FamilyID,
		"revoked", revoked,
	)
	core.AddSpanEvent(ctx, "refresh_token_reuse",
		attribute.Int64("user.id", current.UserID),
		attribute.String("family.id", current.FamilyID),
	)
}

// Revoke is idempotent; unknown tokens are ignored.
func (s *RefreshStore) Revoke(ctx context.Context, token, reason string) error {
	err := s.repo.Revoke(ctx, core.HashToken(token), reason, s.now())
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, familyID, reason string) (int64, error) {
	return s.repo.RevokeFamily(ctx, familyID, reason, s.now())
}

func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID int64, reason string) (int64, error) {
	return s.repo.RevokeAllForUser(ctx, userID, reason, s.now())
}

func (s *RefreshStore) ActiveSessions(ctx context.Context, userID int64) ([]RefreshToken, error) {
	return s.repo.ActiveForUser(ctx, userID, s.now())
}

func (s *RefreshStore) ActiveCount(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx, s.now())
}

// PurgeExpired drops tokens that expired more than a day ago.
func (s *RefreshStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().Add(-purgeRetention))
}

func (s *RefreshStore) newToken(
	userID int64,
	familyID, clientIP, userAgent string,
) (*IssuedRefreshToken, error) {
	token, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	return &IssuedRefreshToken{
		Token: token,
		Record: &RefreshToken{
			ID:        uuid.New().String(),
			TokenHash: core.HashToken(token),
			UserID:    userID,
			FamilyID:  familyID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
			ClientIP:  clientIP,
			UserAgent: userAgent,
		},
	}, nil
}
