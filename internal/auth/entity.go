// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

const (
	ReasonLogout          = "logout"
	ReasonReuseDetected   = "reuse_detected"
	ReasonPasswordChanged = "password_changed"
	ReasonPasswordReset   = "password_reset"
	ReasonAdminRevoked    = "admin_revoked"
)

// RefreshToken is a persisted rotation record. Only the SHA-256 of the opaque
// token is stored; ReplacedBy holds the successor's hash.
type RefreshToken struct {
	ID               string     `db:"id"`
	TokenHash        string     `db:"token_hash"`
	UserID           int64      `db:"user_id"`
	FamilyID         string     `db:"family_id"`
	CreatedAt        time.Time  `db:"created_at"`
	ExpiresAt        time.Time  `db:"expires_at"`
	Used             bool       `db:"used"`
	UsedAt           *time.Time `db:"used_at"`
	Revoked          bool       `db:"revoked"`
	RevokedAt        *time.Time `db:"revoked_at"`
	ReplacedBy       *string    `db:"replaced_by"`
	RevocationReason *string    `db:"revocation_reason"`
	ClientIP         string     `db:"client_ip"`
	UserAgent        string     `db:"user_agent"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsActive is the only state from which a token may be rotated. Used and
// Revoked are terminal.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Used && !t.Revoked && !t.IsExpired(now)
}
