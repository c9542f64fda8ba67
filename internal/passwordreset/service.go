// AngelaMos | 2026
// service.go

package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/notify"
	"github.com/petlove/backoffice-api/internal/signedtoken"
)

// CodeTTL is fixed; it is not configurable.
const CodeTTL = time.Hour

const (
	maxCodeAttempts = 5
	purgeRetention  = 24 * time.Hour
)

// ErrInvalidCode covers unknown, expired and already consumed codes alike.
var ErrInvalidCode = errors.New("invalid or expired code")

type Directory interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
}

type Mailer interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

type Config struct {
	FrontendURL string
	LinkTTL     time.Duration
	Production  bool
}

type Service struct {
	repo      Repository
	directory Directory
	hasher    core.PasswordHasher
	links     *signedtoken.Codec
	mailer    Mailer
	cfg       Config
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	repo Repository,
	directory Directory,
	hasher core.PasswordHasher,
	links *signedtoken.Codec,
	mailer Mailer,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.LinkTTL <= 0 || cfg.LinkTTL > CodeTTL {
		cfg.LinkTTL = CodeTTL
	}

	s := &Service{
		repo:      repo,
		directory: directory,
		hasher:    hasher,
		links:     links,
		mailer:    mailer,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestReset issues a new code for an active account and emails it. Unknown
// and inactive addresses succeed silently without creating anything.
func (s *Service) RequestReset(
	ctx context.Context,
	email, clientIP, userAgent string,
) error {
	ctx, span := core.StartSpan(ctx, "passwordreset.RequestReset")
	defer span.End()

	logger := core.LoggerFromContext(ctx)

	account, err := s.findActiveAccount(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			logger.Info("password reset requested for unknown or inactive account")
			return nil
		}
		core.SetSpanError(ctx, err)
		return err
	}

	link, err := s.links.Encode(account.ID, account.Email, signedtoken.PurposeReset)
	if err != nil {
		return fmt.Errorf("request reset: %w", err)
	}

	token, err := s.persist(ctx, account.ID, link, clientIP, userAgent)
	if err != nil {
		core.SetSpanError(ctx, err)
		return fmt.Errorf("request reset: %w", err)
	}

	span.SetAttributes(attribute.Int64("user.id", account.ID))
	if !s.cfg.Production {
		logger.Debug("password reset code issued",
			"user_id", account.ID,
			"code", token.Code,
		)
	}

	s.mailer.Dispatch(ctx, notify.Message{
		To:       account.Email,
		Template: notify.TemplatePasswordReset,
		Subject:  "Redefinição de senha",
		Data: map[string]string{
			"name":               account.Name,
			"code":               token.Code,
			"link":               s.resetLink(account.Email, link),
			"expires_in_minutes": strconv.Itoa(int(CodeTTL / time.Minute)),
		},
	})

	return nil
}

func (s *Service) persist(
	ctx context.Context,
	userID int64,
	link, clientIP, userAgent string,
) (*Token, error) {
	now := s.now()

	for range maxCodeAttempts {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}

		token := &Token{
			Code:      code,
			LinkToken: &link,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(CodeTTL),
			ClientIP:  clientIP,
			UserAgent: userAgent,
		}

		err = s.repo.CreateReplacingActive(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrCodeCollision) {
			return nil, fmt.Errorf("persist reset token: %w", err)
		}
	}

	return nil, fmt.Errorf("persist reset token: %w", ErrCodeCollision)
}

// VerifyCode reports whether code is currently redeemable. It never consumes
// the token.
func (s *Service) VerifyCode(
	ctx context.Context,
	email, code string,
) (bool, error) {
	if !isWellFormedCode(code) {
		return false, nil
	}

	account, err := s.findActiveAccount(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return false, nil
		}
		return false, err
	}

	if _, err := s.repo.FindActiveByCode(ctx, account.ID, code, s.now()); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("verify code: %w", err)
	}

	return true, nil
}

// ConsumeAndReset redeems code and stores newPassword. It returns the id of
// the account whose password changed.
func (s *Service) ConsumeAndReset(
	ctx context.Context,
	email, code, newPassword string,
) (int64, error) {
	ctx, span := core.StartSpan(ctx, "passwordreset.ConsumeAndReset")
	defer span.End()

	if !isWellFormedCode(code) {
		return 0, ErrInvalidCode
	}

	account, err := s.findActiveAccount(ctx, email)
	if err != nil {
		return 0, err
	}

	token, err := s.repo.FindActiveByCode(ctx, account.ID, code, s.now())
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0, ErrInvalidCode
		}
		return 0, fmt.Errorf("consume code: %w", err)
	}

	return s.consume(ctx, account, token, newPassword)
}

// ConsumeLinkAndReset is ConsumeAndReset for the emailed link instead of the
// typed code.
func (s *Service) ConsumeLinkAndReset(
	ctx context.Context,
	email, link, newPassword string,
) (int64, error) {
	ctx, span := core.StartSpan(ctx, "passwordreset.ConsumeLinkAndReset")
	defer span.End()

	account, err := s.findActiveAccount(ctx, email)
	if err != nil {
		return 0, err
	}

	if !s.links.Validate(link, account.ID, account.Email, signedtoken.PurposeReset, s.cfg.LinkTTL) {
		return 0, ErrInvalidCode
	}

	token, err := s.repo.FindActiveByLink(ctx, account.ID, link, s.now())
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0, ErrInvalidCode
		}
		return 0, fmt.Errorf("consume link: %w", err)
	}

	return s.consume(ctx, account, token, newPassword)
}

func (s *Service) consume(
	ctx context.Context,
	account *Account,
	token *Token,
	newPassword string,
) (int64, error) {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return 0, fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.repo.Consume(ctx, token.ID, account.ID, hash, s.now()); err != nil {
		if errors.Is(err, core.ErrTokenInactive) {
			return 0, ErrInvalidCode
		}
		core.SetSpanError(ctx, err)
		return 0, err
	}

	core.LoggerFromContext(ctx).Info("password reset completed",
		"user_id", account.ID,
	)
	return account.ID, nil
}

// PurgeExpired drops tokens that expired more than a day ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().Add(-purgeRetention))
}

func (s *Service) ActiveCount(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx, s.now())
}

// findActiveAccount maps "no such account" and "inactive account" to
// ErrInvalidCode so callers cannot tell them apart.
func (s *Service) findActiveAccount(
	ctx context.Context,
	email string,
) (*Account, error) {
	account, err := s.directory.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !account.Active {
		return nil, ErrInvalidCode
	}
	return account, nil
}

func (s *Service) resetLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password?" + q.Encode()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
