// AngelaMos | 2026
// dto.go

package auth

import (
	"time"
)

// bcrypt ignores input past 72 bytes, so longer passwords are refused.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// Emails containing ':' are refused since signed links use it as a separator.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email,excludes=:,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name"     validate:"required,min=1,max=100"`
}

type RefreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code"  validate:"required,len=6,numeric"`
}

// ResetPasswordRequest carries either the emailed code or the link token.
type ResetPasswordRequest struct {
	Email       string `json:"email"        validate:"required,email,max=255"`
	Code        string `json:"code"         validate:"required_without=Token,max=6"`
	Token       string `json:"token"        validate:"required_without=Code,max=512"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Token string `json:"token" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type UserResponse struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	RoleID          int64      `json:"role_id"`
	Role            string     `json:"role"`
	Active          bool       `json:"active"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AuthResponse struct {
	User   UserResponse  `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

type VerifyCodeResponse struct {
	Valid bool `json:"valid"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	UserAgent string    `json:"user_agent"`
	ClientIP  string    `json:"client_ip"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

func toUserResponse(u *UserInfo) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		RoleID:          u.RoleID,
		Role:            u.Role,
		Active:          u.Active,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

func toSessionInfo(tokens []RefreshToken) []SessionInfo {
	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			FamilyID:  t.FamilyID,
			UserAgent: t.UserAgent,
			ClientIP:  t.ClientIP,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return sessions
}
