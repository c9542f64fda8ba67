// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/petlove/backoffice-api/internal/config"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
)

const (
	minSigningKeyLength = 32
	accessTokenType     = "access"
)

var ErrWeakSigningKey = errors.New("jwt signing key must be at least 32 bytes")

type JWTManager struct {
	key    jwk.Key
	keyID  string
	config config.JWTConfig
	now    func() time.Time
}

type JWTOption func(*JWTManager)

func WithJWTClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		m.now = now
	}
}

func NewJWTManager(cfg config.JWTConfig, opts ...JWTOption) (*JWTManager, error) {
	if len(cfg.SigningKey) < minSigningKeyLength {
		return nil, ErrWeakSigningKey
	}

	key, err := jwk.Import([]byte(cfg.SigningKey))
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	if setErr := key.Set(jwk.AlgorithmKey, jwa.HS256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID := uuid.New().String()[:8]
	if setErr := key.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	m := &JWTManager{
		key:    key,
		keyID:  keyID,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

func (m *JWTManager) GetKeyID() string {
	return m.keyID
}

func (m *JWTManager) AccessTokenTTL() time.Duration {
	return m.config.AccessTokenExpire
}

type IssuedAccessToken struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (m *JWTManager) CreateAccessToken(user *UserInfo) (*IssuedAccessToken, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.config.AccessTokenExpire)
	jti := uuid.New().String()

	token, err := jwt.NewBuilder().
		JwtID(jti).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(strconv.FormatInt(user.ID, 10)).
		IssuedAt(now).
		Expiration(expiresAt).
		NotBefore(now).
		Claim("name", user.Name).
		Claim("email", user.Email).
		Claim("role_id", user.RoleID).
		Claim("role", user.Role).
		Claim("active", user.Active).
		Claim("type", accessTokenType).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), m.key))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedAccessToken{
		Token:     string(signed),
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyAccessToken checks signature, issuer, audience and time claims with
// no clock skew allowance.
func (m *JWTManager) VerifyAccessToken(
	_ context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	if err := checkAlgorithm(tokenString); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithClock(jwt.ClockFunc(m.now)),
		jwt.WithAcceptableSkew(0),
	)
	if err != nil {
		if m.isExpired(tokenString) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	return claimsFromToken(token)
}

// ExtractExpiredClaims recovers the identity of an access token whose only
// defect may be its expiry. Signature, algorithm, issuer, audience and type
// are still enforced.
func (m *JWTManager) ExtractExpiredClaims(
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := m.parseSignedOnly(tokenString)
	if err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}

	return claimsFromToken(token)
}

func (m *JWTManager) isExpired(tokenString string) bool {
	token, err := m.parseSignedOnly(tokenString)
	if err != nil {
		return false
	}

	exp, ok := token.Expiration()
	return ok && !m.now().Before(exp)
}

func (m *JWTManager) parseSignedOnly(tokenString string) (jwt.Token, error) {
	if err := checkAlgorithm(tokenString); err != nil {
		return nil, err
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), m.key),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, core.ErrTokenInvalid
	}

	issuer, ok := token.Issuer()
	if !ok || issuer != m.config.Issuer {
		return nil, core.ErrTokenInvalid
	}

	audience, ok := token.Audience()
	if !ok || !slices.Contains(audience, m.config.Audience) {
		return nil, core.ErrTokenInvalid
	}

	return token, nil
}

// checkAlgorithm rejects any token whose single protected header does not
// name HS256 before signature verification runs.
func checkAlgorithm(tokenString string) error {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil {
		return core.ErrTokenInvalid
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return core.ErrTokenInvalid
	}

	alg, ok := sigs[0].ProtectedHeaders().Algorithm()
	if !ok || alg.String() != jwa.HS256().String() {
		return core.ErrTokenInvalid
	}

	return nil
}

func claimsFromToken(token jwt.Token) (*middleware.AccessTokenClaims, error) {
	invalid := func(field string) error {
		return fmt.Errorf("claim %s: %w", field, core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != accessTokenType {
		return nil, invalid("type")
	}

	subject, ok := token.Subject()
	if !ok {
		return nil, invalid("sub")
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, invalid("sub")
	}

	claims := &middleware.AccessTokenClaims{UserID: userID}

	if err := token.Get("name", &claims.Name); err != nil {
		return nil, invalid("name")
	}
	if err := token.Get("email", &claims.Email); err != nil {
		return nil, invalid("email")
	}
	if err := token.Get("role", &claims.Role); err != nil {
		return nil, invalid("role")
	}
	if err := token.Get("active", &claims.Active); err != nil {
		return nil, invalid("active")
	}

	var rawRoleID any
	if err := token.Get("role_id", &rawRoleID); err != nil {
		return nil, invalid("role_id")
	}
	switch v := rawRoleID.(type) {
	case float64:
		claims.RoleID = int64(v)
	case int64:
		claims.RoleID = v
	case json.Number:
		if claims.RoleID, err = v.Int64(); err != nil {
			return nil, invalid("role_id")
		}
	default:
		return nil, invalid("role_id")
	}

	if claims.JTI, ok = token.JwtID(); !ok {
		return nil, invalid("jti")
	}
	if claims.IssuedAt, ok = token.IssuedAt(); !ok {
		return nil, invalid("iat")
	}
	if claims.ExpiresAt, ok = token.Expiration(); !ok {
		return nil, invalid("exp")
	}

	return claims, nil
}
