// AngelaMos | 2026
// service.go

package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
)

// Permissions seeded for the Administrador role.
const (
	PermAdminStats    = "admin:stats"
	PermAdminSessions = "admin:sessions"
	PermAdminUsers    = "admin:users"
)

const (
	cachePrefix     = "rbac:role:"
	DefaultCacheTTL = 5 * time.Minute
)

// Service resolves role permissions from Postgres through a Redis cache.
// A nil client disables caching.
type Service struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
}

func NewService(repo Repository, client *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{repo: repo, client: client, ttl: ttl}
}

func (s *Service) HasPermissions(
	ctx context.Context,
	roleID int64,
	permissions ...string,
) (bool, error) {
	granted, err := s.Permissions(ctx, roleID)
	if err != nil {
		return false, err
	}

	for _, p := range permissions {
		if !slices.Contains(granted, p) {
			return false, nil
		}
	}

	return true, nil
}

func (s *Service) Permissions(ctx context.Context, roleID int64) ([]string, error) {
	if cached, ok := s.fromCache(ctx, roleID); ok {
		return cached, nil
	}

	permissions, err := s.repo.PermissionsForRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, roleID, permissions)
	return permissions, nil
}

// Invalidate drops the cached permissions of roleID.
func (s *Service) Invalidate(ctx context.Context, roleID int64) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, cacheKey(roleID)).Err(); err != nil {
		return fmt.Errorf("invalidate role cache: %w", err)
	}
	return nil
}

func (s *Service) fromCache(ctx context.Context, roleID int64) ([]string, bool) {
	if s.client == nil {
		return nil, false
	}

	val, err := s.client.Get(ctx, cacheKey(roleID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		core.LoggerFromContext(ctx).Warn("permission cache read failed",
			"role_id", roleID,
			"error", err,
		)
		return nil, false
	}

	if val == "" {
		return []string{}, true
	}
	return strings.Split(val, ","), true
}

func (s *Service) store(ctx context.Context, roleID int64, permissions []string) {
	if s.client == nil {
		return
	}

	err := s.client.Set(ctx, cacheKey(roleID), strings.Join(permissions, ","), s.ttl).Err()
	if err != nil {
		core.LoggerFromContext(ctx).Warn("permission cache write failed",
			"role_id", roleID,
			"error", err,
		)
	}
}

func cacheKey(roleID int64) string {
	return cachePrefix + strconv.FormatInt(roleID, 10)
}

var _ middleware.PermissionResolver = (*Service)(nil)
