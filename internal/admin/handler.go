// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/petlove/backoffice-api/internal/auth"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
	"github.com/petlove/backoffice-api/internal/rbac"
	"github.com/petlove/backoffice-api/internal/user"
)

type SessionService interface {
	Sessions(ctx context.Context, userID int64) ([]auth.SessionInfo, error)
	RevokeUserSessions(ctx context.Context, userID int64, reason string) (int64, error)
	ActiveSessionCount(ctx context.Context) (int64, error)
}

type UserService interface {
	ListUsers(ctx context.Context, params user.ListUsersParams) ([]user.User, int, error)
	Stats(ctx context.Context) (*user.Stats, error)
}

type ResetCounter interface {
	ActiveCount(ctx context.Context) (int64, error)
}

type RevocationCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	sessions   SessionService
	users      UserService
	resets     ResetCounter
	revoked    RevocationCounter
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Sessions   SessionService
	Users      UserService
	Resets     ResetCounter
	Revoked    RevocationCounter
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		sessions:   cfg.Sessions,
		users:      cfg.Users,
		resets:     cfg.Resets,
		revoked:    cfg.Revoked,
	}
}

// RegisterRoutes mounts every /admin route. Each group is gated by the
// permission it needs rather than by role name.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	resolver middleware.PermissionResolver,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(resolver, rbac.PermAdminStats))

			r.Get("/stats", h.GetSystemStats)
			r.Get("/stats/runtime", h.GetRuntimeStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(resolver, rbac.PermAdminUsers))

			r.Get("/users", h.ListUsers)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(resolver, rbac.PermAdminSessions))

			r.Get("/users/{userID}/sessions", h.GetUserSessions)
			r.Post("/users/{userID}/revoke-sessions", h.RevokeUserSessions)
		})
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := true
	if h.dbPing != nil {
		if err := h.dbPing(ctx); err != nil {
			dbHealthy = false
		}
	}

	redisHealthy := true
	if h.redisPing != nil {
		if err := h.redisPing(ctx); err != nil {
			redisHealthy = false
		}
	}

	counts, err := h.authStats(ctx)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: dbHealthy,
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: redisHealthy,
			Stats:   h.getRedisStats(),
		},
		Runtime: readRuntimeStats(),
		Auth:    counts,
	}

	core.OK(w, "system stats", response)
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, "runtime stats", readRuntimeStats())
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := user.ListUsersParams{
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
		Search:   q.Get("search"),
		Role:     q.Get("role"),
	}
	if active, err := strconv.ParseBool(q.Get("active")); err == nil {
		params.Active = &active
	}
	params.Normalize()

	users, total, err := h.users.ListUsers(r.Context(), params)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "users", user.UserListResponse{
		Users:    user.ToUserResponseList(users),
		Page:     params.Page,
		PageSize: params.PageSize,
		Total:    total,
	})
}

func (h *Handler) GetUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.Sessions(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, r, err)
		return
	}

	core.OK(w, "sessions", auth.SessionsResponse{Sessions: sessions})
}

func (h *Handler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	revoked, err := h.sessions.RevokeUserSessions(r.Context(), userID, auth.ReasonAdminRevoked)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, r, err)
		return
	}

	core.LoggerFromContext(r.Context()).Warn("security event: sessions revoked by administrator",
		"admin_id", middleware.GetUserID(r.Context()),
		"user_id", userID,
		"revoked", revoked,
	)

	core.OK(w, "sessions revoked", RevokeSessionsResponse{Revoked: revoked})
}

func (h *Handler) authStats(ctx context.Context) (*AuthStats, error) {
	stats := &AuthStats{}

	if h.users != nil {
		users, err := h.users.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats.Users = *users
	}

	if h.sessions != nil {
		active, err := h.sessions.ActiveSessionCount(ctx)
		if err != nil {
			return nil, err
		}
		stats.ActiveSessions = active
	}

	if h.resets != nil {
		pending, err := h.resets.ActiveCount(ctx)
		if err != nil {
			return nil, err
		}
		stats.PendingResets = pending
	}

	if h.revoked != nil {
		revoked, err := h.revoked.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats.RevokedAccessTokens = revoked
	}

	return stats, nil
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		core.BadRequest(w, "invalid user id")
		return 0, false
	}
	return id, true
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}

type SystemStatsResponse struct {
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
	Auth     *AuthStats     `json:"auth"`
}

type AuthStats struct {
	Users               user.Stats `json:"users"`
	ActiveSessions      int64      `json:"active_sessions"`
	PendingResets       int64      `json:"pending_resets"`
	RevokedAccessTokens int64      `json:"revoked_access_tokens"`
}

type RevokeSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
