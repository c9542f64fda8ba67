// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petlove/backoffice-api/internal/core"
)

func adminUser() *UserInfo {
	return &UserInfo{
		ID:     1,
		Email:  "admin@petlove.com",
		Name:   "Administrador Petlove",
		RoleID: 1,
		Role:   "Administrador",
		Active: true,
	}
}

func TestNewJWTManager_RejectsShortKey(t *testing.T) {
	cfg := testJWTConfig()
	cfg.SigningKey = "too-short"

	_, err := NewJWTManager(cfg)
	assert.ErrorIs(t, err, ErrWeakSigningKey)
}

func TestJWTManager_CreateAndVerify(t *testing.T) {
	clock := newTestClock()
	m, err := NewJWTManager(testJWTConfig(), WithJWTClock(clock.Now))
	require.NoError(t, err)

	issued, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.NotEmpty(t, issued.JTI)
	assert.Equal(t, clock.Now().Add(time.Hour), issued.ExpiresAt)

	claims, err := m.VerifyAccessToken(context.Background(), issued.Token)
	require.NoError(t, err)

	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "Administrador", claims.Role)
	assert.Equal(t, int64(1), claims.RoleID)
	assert.Equal(t, "admin@petlove.com", claims.Email)
	assert.Equal(t, "Administrador Petlove", claims.Name)
	assert.True(t, claims.Active)
	assert.Equal(t, issued.JTI, claims.JTI)
	assert.True(t, claims.ExpiresAt.Equal(issued.ExpiresAt))
}

func TestJWTManager_KeyIDAndTTL(t *testing.T) {
	m, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	assert.Len(t, m.GetKeyID(), 8)
	assert.Equal(t, time.Hour, m.AccessTokenTTL())
}

func TestCheckAlgorithm(t *testing.T) {
	m, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	issued, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)
	assert.NoError(t, checkAlgorithm(issued.Token))

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS384","typ":"JWT"}`))
	parts := strings.Split(issued.Token, ".")
	assert.ErrorIs(t, checkAlgorithm(header+"."+parts[1]+"."+parts[2]), core.ErrTokenInvalid)

	assert.ErrorIs(t, checkAlgorithm("not-a-jwt"), core.ErrTokenInvalid)
	assert.ErrorIs(t, checkAlgorithm(""), core.ErrTokenInvalid)
}

func TestJWTManager_TokensHaveUniqueIDs(t *testing.T) {
	m, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	a, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)
	b, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)

	assert.NotEqual(t, a.JTI, b.JTI)
}

func TestJWTManager_ExpiredAfterTTL(t *testing.T) {
	clock := newTestClock()
	m, err := NewJWTManager(testJWTConfig(), WithJWTClock(clock.Now))
	require.NoError(t, err)

	issued, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = m.VerifyAccessToken(context.Background(), issued.Token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = m.VerifyAccessToken(context.Background(), issued.Token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTManager_RejectsForeignTokens(t *testing.T) {
	clock := newTestClock()
	m, err := NewJWTManager(testJWTConfig(), WithJWTClock(clock.Now))
	require.NoError(t, err)

	otherKey := testJWTConfig()
	otherKey.SigningKey = "another-signing-key-of-32-bytes-or-more"
	foreignKey, err := NewJWTManager(otherKey, WithJWTClock(clock.Now))
	require.NoError(t, err)

	otherAudience := testJWTConfig()
	otherAudience.Audience = "storefront-api"
	foreignAudience, err := NewJWTManager(otherAudience, WithJWTClock(clock.Now))
	require.NoError(t, err)

	otherIssuer := testJWTConfig()
	otherIssuer.Issuer = "someone-else"
	foreignIssuer, err := NewJWTManager(otherIssuer, WithJWTClock(clock.Now))
	require.NoError(t, err)

	tests := []struct {
		name   string
		issuer *JWTManager
	}{
		{"different key", foreignKey},
		{"different audience", foreignAudience},
		{"different issuer", foreignIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issued, err := tt.issuer.CreateAccessToken(adminUser())
			require.NoError(t, err)

			_, err = m.VerifyAccessToken(context.Background(), issued.Token)
			assert.ErrorIs(t, err, core.ErrTokenInvalid)

			_, err = m.ExtractExpiredClaims(issued.Token)
			assert.ErrorIs(t, err, core.ErrTokenInvalid)
		})
	}
}

func TestJWTManager_RejectsOtherAlgorithms(t *testing.T) {
	m, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	tok, err := jwt.NewBuilder().
		Issuer(testJWTConfig().Issuer).
		Audience([]string{testJWTConfig().Audience}).
		Subject("1").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Claim("type", accessTokenType).
		Build()
	require.NoError(t, err)

	hs512, err := jwt.Sign(tok, jwt.WithKey(jwa.HS512(), []byte(testSigningKey)))
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(context.Background(), string(hs512))
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	parts := strings.Split(string(hs512), ".")
	unsigned := header + "." + parts[1] + "."

	_, err = m.VerifyAccessToken(context.Background(), unsigned)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestJWTManager_RejectsTamperedAndMalformed(t *testing.T) {
	m, err := NewJWTManager(testJWTConfig())
	require.NoError(t, err)

	issued, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)

	pos := len(issued.Token) - 5
	replacement := byte('A')
	if issued.Token[pos] == 'A' {
		replacement = 'z'
	}
	tampered := issued.Token[:pos] + string(replacement) + issued.Token[pos+1:]

	for _, token := range []string{tampered, "", "not-a-jwt", "a.b.c", "..."} {
		_, err := m.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrTokenInvalid, "token %q", token)
	}
}

func TestJWTManager_ExtractExpiredClaims(t *testing.T) {
	clock := newTestClock()
	m, err := NewJWTManager(testJWTConfig(), WithJWTClock(clock.Now))
	require.NoError(t, err)

	issued, err := m.CreateAccessToken(adminUser())
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)

	_, err = m.VerifyAccessToken(context.Background(), issued.Token)
	require.ErrorIs(t, err, core.ErrTokenExpired)

	claims, err := m.ExtractExpiredClaims(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "Administrador", claims.Role)
}
