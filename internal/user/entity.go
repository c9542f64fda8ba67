// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// User is a row of users joined with its role name.
type User struct {
	ID              int64      `db:"id"`
	Email           string     `db:"email"`
	PasswordHash    string     `db:"password_hash"`
	Name            string     `db:"name"`
	RoleID          int64      `db:"role_id"`
	Role            string     `db:"role"`
	Active          bool       `db:"active"`
	EmailVerifiedAt *time.Time `db:"email_verified_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdministrator
}

func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Role names as seeded in the roles table.
const (
	RoleAdministrator = "Administrador"
	RoleCustomer      = "Cliente"
)

// Stats summarizes the user base for the admin dashboard.
type Stats struct {
	Total    int64 `db:"total"    json:"total"`
	Active   int64 `db:"active"   json:"active"`
	Verified int64 `db:"verified" json:"verified"`
}
