// AngelaMos | 2026
// entity.go

package passwordreset

import (
	"time"
)

// Token is a one-time reset credential. Code is the six-digit value typed by
// the user; LinkToken is the signed value embedded in the emailed link.
type Token struct {
	ID        int64      `db:"id"`
	Code      string     `db:"code"`
	LinkToken *string    `db:"token"`
	UserID    int64      `db:"user_id"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	ClientIP  string     `db:"client_ip"`
	UserAgent string     `db:"user_agent"`
}

func (t *Token) IsActive(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}

// Account is the slice of a user record the reset flow needs.
type Account struct {
	ID     int64
	Email  string
	Name   string
	Active bool
}
