// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
	"github.com/petlove/backoffice-api/internal/notify"
	"github.com/petlove/backoffice-api/internal/signedtoken"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = fmt.Errorf("account inactive: %w", core.ErrUnauthorized)
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidLink        = errors.New("invalid or expired link")
)

type UserInfo struct {
	ID              int64
	Email           string
	Name            string
	PasswordHash    string
	RoleID          int64
	Role            string
	Active          bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id int64) (*UserInfo, error)
	Create(
		ctx context.Context,
		email, passwordHash, name string,
	) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID int64) error
}

type PasswordResetter interface {
	RequestReset(ctx context.Context, email, clientIP, userAgent string) error
	VerifyCode(ctx context.Context, email, code string) (bool, error)
	ConsumeAndReset(ctx context.Context, email, code, newPassword string) (int64, error)
	ConsumeLinkAndReset(ctx context.Context, email, link, newPassword string) (int64, error)
}

type TokenBlacklist interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}

type Mailer interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

type Config struct {
	LegacyPasswordFallback bool
	WelcomeTTL             time.Duration
	FrontendURL            string
}

// Dependencies groups the collaborators of Service. Blacklist and Mailer may
// be nil.
type Dependencies struct {
	Users     UserProvider
	Hasher    core.PasswordHasher
	JWT       *JWTManager
	Refresh   *RefreshStore
	Resets    PasswordResetter
	Links     *signedtoken.Codec
	Blacklist TokenBlacklist
	Mailer    Mailer
}

type Service struct {
	users     UserProvider
	hasher    core.PasswordHasher
	jwt       *JWTManager
	refresh   *RefreshStore
	resets    PasswordResetter
	links     *signedtoken.Codec
	blacklist TokenBlacklist
	mailer    Mailer
	cfg       Config
}

func NewService(deps Dependencies, cfg Config) *Service {
	return &Service{
		users:     deps.Users,
		hasher:    deps.Hasher,
		jwt:       deps.JWT,
		refresh:   deps.Refresh,
		resets:    deps.Resets,
		links:     deps.Links,
		blacklist: deps.Blacklist,
		mailer:    deps.Mailer,
		cfg:       cfg,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	clientIP, userAgent string,
) (*AuthResponse, error) {
	ctx, span := core.StartSpan(ctx, "auth.Login")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.hasher.VerifyDummy(req.Password)
			return nil, ErrInvalidCredentials
		}
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.Active {
		s.hasher.VerifyDummy(req.Password)
		return nil, ErrInvalidCredentials
	}

	if !s.verifyPassword(ctx, user, req.Password) {
		return nil, ErrInvalidCredentials
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return s.issueSession(ctx, user, clientIP, userAgent)
}

// verifyPassword checks password against the stored credential. Stored
// values without a bcrypt prefix are compared as plaintext when the legacy
// fallback is enabled, and upgraded to a hash on success.
func (s *Service) verifyPassword(
	ctx context.Context,
	user *UserInfo,
	password string,
) bool {
	logger := core.LoggerFromContext(ctx)

	if s.hasher.Verify(password, user.PasswordHash) {
		if s.hasher.NeedsRehash(user.PasswordHash) {
			s.upgradeHash(ctx, user, password)
		}
		return true
	}

	if !s.cfg.LegacyPasswordFallback ||
		user.PasswordHash == "" ||
		s.hasher.IsHash(user.PasswordHash) {
		return false
	}

	if !core.ConstantTimeEquals(password, user.PasswordHash) {
		return false
	}

	s.upgradeHash(ctx, user, password)

	logger.Warn("security event: legacy plaintext password upgraded",
		"user_id", user.ID,
	)
	core.AddSpanEvent(ctx, "legacy_password_upgraded",
		attribute.Int64("user.id", user.ID),
	)
	return true
}

func (s *Service) upgradeHash(ctx context.Context, user *UserInfo, password string) {
	logger := core.LoggerFromContext(ctx)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		logger.Error("failed to hash password for upgrade",
			"user_id", user.ID,
			"error", err,
		)
		return
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		logger.Error("failed to persist upgraded password hash",
			"user_id", user.ID,
			"error", err,
		)
		return
	}
	user.PasswordHash = hash
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
) (*UserResponse, error) {
	ctx, span := core.StartSpan(ctx, "auth.Register")
	defer span.End()

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(
		ctx,
		normalizeEmail(req.Email),
		passwordHash,
		strings.TrimSpace(req.Name),
	)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	s.sendWelcome(ctx, user)

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) sendWelcome(ctx context.Context, user *UserInfo) {
	if s.mailer == nil {
		return
	}

	link, err := s.links.Encode(user.ID, user.Email, signedtoken.PurposeWelcome)
	if err != nil {
		core.LoggerFromContext(ctx).Warn("failed to create welcome link",
			"user_id", user.ID,
			"error", err,
		)
		return
	}

	s.mailer.Dispatch(ctx, notify.Message{
		To:       user.Email,
		Template: notify.TemplateWelcome,
		Subject:  "Bem-vindo à Petlove",
		Data: map[string]string{
			"name": user.Name,
			"link": s.frontendLink("/verify-email", user.Email, link),
		},
	})
}

// Refresh exchanges a refresh token for a new session. When an access token
// accompanies it, its subject must own the refresh token. Every credential
// failure wraps core.ErrUnauthorized.
func (s *Service) Refresh(
	ctx context.Context,
	req RefreshRequest,
	clientIP, userAgent string,
) (*AuthResponse, error) {
	ctx, span := core.StartSpan(ctx, "auth.Refresh")
	defer span.End()

	logger := core.LoggerFromContext(ctx)

	record, err := s.refresh.Lookup(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, unauthorized(err)
		}
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if req.AccessToken != "" {
		claims, err := s.jwt.ExtractExpiredClaims(req.AccessToken)
		if err != nil {
			return nil, unauthorized(err)
		}
		if claims.UserID != record.UserID {
			logger.Warn("refresh token presented with another user's access token",
				"token_user_id", record.UserID,
				"claims_user_id", claims.UserID,
			)
			return nil, unauthorized(core.ErrTokenInvalid)
		}
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, unauthorized(err)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return nil, ErrInactiveAccount
	}

	next, err := s.refresh.Rotate(ctx, req.RefreshToken, clientIP, userAgent)
	if err != nil {
		if errors.Is(err, core.ErrTokenInactive) || errors.Is(err, core.ErrNotFound) {
			return nil, unauthorized(err)
		}
		core.SetSpanError(ctx, err)
		return nil, err
	}

	access, err := s.jwt.CreateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return s.authResponse(user, access, next.Token), nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID int64,
	req ChangePasswordRequest,
) error {
	ctx, span := core.StartSpan(ctx, "auth.ChangePassword")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if !s.verifyPassword(ctx, user, req.CurrentPassword) {
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		core.SetSpanError(ctx, err)
		return fmt.Errorf("update password: %w", err)
	}

	s.revokeSessions(ctx, userID, ReasonPasswordChanged)
	return nil
}

// Logout revokes refreshToken when it belongs to the caller and blacklists
// the caller's access token. It never fails.
func (s *Service) Logout(
	ctx context.Context,
	claims *middleware.AccessTokenClaims,
	refreshToken string,
) {
	ctx, span := core.StartSpan(ctx, "auth.Logout")
	defer span.End()

	logger := core.LoggerFromContext(ctx)

	if refreshToken != "" {
		s.revokeOwnedToken(ctx, claims.UserID, refreshToken)
	}

	if s.blacklist != nil && claims.JTI != "" {
		if err := s.blacklist.Add(ctx, claims.JTI, claims.ExpiresAt); err != nil {
			logger.Warn("failed to blacklist access token",
				"user_id", claims.UserID,
				"error", err,
			)
		}
	}
}

func (s *Service) revokeOwnedToken(ctx context.Context, userID int64, token string) {
	logger := core.LoggerFromContext(ctx)

	record, err := s.refresh.Lookup(ctx, token)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			logger.Error("failed to look up refresh token on logout", "error", err)
		}
		return
	}

	if record.UserID != userID {
		logger.Warn("logout with another user's refresh token ignored",
			"user_id", userID,
			"token_user_id", record.UserID,
		)
		return
	}

	if err := s.refresh.Revoke(ctx, token, ReasonLogout); err != nil {
		logger.Error("failed to revoke refresh token on logout",
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *Service) ForgotPassword(
	ctx context.Context,
	req ForgotPasswordRequest,
	clientIP, userAgent string,
) error {
	return s.resets.RequestReset(ctx, req.Email, clientIP, userAgent)
}

func (s *Service) VerifyResetCode(
	ctx context.Context,
	req VerifyCodeRequest,
) (bool, error) {
	return s.resets.VerifyCode(ctx, req.Email, req.Code)
}

// ResetPassword redeems a code or link token and ends every session of the
// account.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	var (
		userID int64
		err    error
	)
	if req.Token != "" {
		userID, err = s.resets.ConsumeLinkAndReset(ctx, req.Email, req.Token, req.NewPassword)
	} else {
		userID, err = s.resets.ConsumeAndReset(ctx, req.Email, req.Code, req.NewPassword)
	}
	if err != nil {
		return err
	}

	s.revokeSessions(ctx, userID, ReasonPasswordReset)
	return nil
}

// VerifyEmail consumes a welcome link. Repeating it for an already verified
// account succeeds.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return ErrInvalidLink
		}
		return fmt.Errorf("get user: %w", err)
	}

	if !user.Active ||
		!s.links.Validate(req.Token, user.ID, user.Email, signedtoken.PurposeWelcome, s.cfg.WelcomeTTL) {
		return ErrInvalidLink
	}

	if user.EmailVerifiedAt != nil {
		return nil
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

func (s *Service) Sessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	tokens, err := s.refresh.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	return toSessionInfo(tokens), nil
}

func (s *Service) RevokeUserSessions(
	ctx context.Context,
	userID int64,
	reason string,
) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}

	revoked, err := s.refresh.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return revoked, nil
}

func (s *Service) ActiveSessionCount(ctx context.Context) (int64, error) {
	return s.refresh.ActiveCount(ctx)
}

// VerifyAccessToken validates the token, rejects revoked ids and overlays
// the account's current status and role on the claims. An unreachable
// blacklist lets the token through.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.jwt.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.Contains(ctx, claims.JTI)
		if err != nil {
			core.LoggerFromContext(ctx).Warn("token blacklist unavailable, allowing token",
				"user_id", claims.UserID,
				"error", err,
			)
		} else if revoked {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
		}
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims.Active = user.Active
	claims.RoleID = user.RoleID
	claims.Role = user.Role

	return claims, nil
}

func (s *Service) revokeSessions(ctx context.Context, userID int64, reason string) {
	revoked, err := s.refresh.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		core.LoggerFromContext(ctx).Error("failed to revoke sessions",
			"user_id", userID,
			"reason", reason,
			"error", err,
		)
		return
	}

	core.LoggerFromContext(ctx).Info("sessions revoked",
		"user_id", userID,
		"reason", reason,
		"count", revoked,
	)
}

// issueSession creates the token pair for a login. A refresh token that
// cannot be stored is dropped and the login still succeeds.
func (s *Service) issueSession(
	ctx context.Context,
	user *UserInfo,
	clientIP, userAgent string,
) (*AuthResponse, error) {
	access, err := s.jwt.CreateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	var refreshToken string
	issued, err := s.refresh.Issue(ctx, user.ID, clientIP, userAgent)
	if err != nil {
		core.LoggerFromContext(ctx).Error("refresh token not persisted, continuing without one",
			"user_id", user.ID,
			"error", err,
		)
	} else {
		refreshToken = issued.Token
	}

	return s.authResponse(user, access, refreshToken), nil
}

func (s *Service) authResponse(
	user *UserInfo,
	access *IssuedAccessToken,
	refreshToken string,
) *AuthResponse {
	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:  access.Token,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(access.ExpiresAt.Sub(access.IssuedAt).Seconds()),
			ExpiresAt:    access.ExpiresAt,
		},
	}
}

func (s *Service) frontendLink(path, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(s.cfg.FrontendURL, "/") + path + "?" + q.Encode()
}

func unauthorized(err error) error {
	return fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
