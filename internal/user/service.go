// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/petlove/backoffice-api/internal/auth"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/passwordreset"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByID(
	ctx context.Context,
	id int64,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

// Create registers a customer account. Administrators are only seeded.
func (s *Service) Create(
	ctx context.Context,
	email, passwordHash, name string,
) (*auth.UserInfo, error) {
	user := &User{
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Role:         RoleCustomer,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID int64,
	passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) MarkEmailVerified(ctx context.Context, userID int64) error {
	return s.repo.MarkEmailVerified(ctx, userID)
}

func (s *Service) FindAccountByEmail(
	ctx context.Context,
	email string,
) (*passwordreset.Account, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}

	return &passwordreset.Account{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Active: user.Active,
	}, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetMe(ctx context.Context, userID int64) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateMe(
	ctx context.Context,
	userID int64,
	req UpdateUserRequest,
) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name == nil {
		return user, nil
	}

	user.Name = strings.TrimSpace(*req.Name)
	if user.Name == "" {
		return nil, fmt.Errorf("update me: empty name: %w", core.ErrInvalidInput)
	}

	if err := s.repo.UpdateName(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		PasswordHash:    u.PasswordHash,
		RoleID:          u.RoleID,
		Role:            u.Role,
		Active:          u.Active,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	_ auth.UserProvider       = (*Service)(nil)
	_ passwordreset.Directory = (*Service)(nil)
)
