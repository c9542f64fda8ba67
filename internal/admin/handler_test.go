// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petlove/backoffice-api/internal/auth"
	"github.com/petlove/backoffice-api/internal/core"
	"github.com/petlove/backoffice-api/internal/middleware"
	"github.com/petlove/backoffice-api/internal/rbac"
	"github.com/petlove/backoffice-api/internal/user"
)

type stubSessions struct {
	sessions   map[int64][]auth.SessionInfo
	revokedFor int64
	reason     string
}

func (s *stubSessions) Sessions(_ context.Context, userID int64) ([]auth.SessionInfo, error) {
	return s.sessions[userID], nil
}

func (s *stubSessions) RevokeUserSessions(_ context.Context, userID int64, reason string) (int64, error) {
	if _, ok := s.sessions[userID]; !ok {
		return 0, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	s.revokedFor = userID
	s.reason = reason
	return int64(len(s.sessions[userID])), nil
}

func (s *stubSessions) ActiveSessionCount(context.Context) (int64, error) {
	var n int64
	for _, list := range s.sessions {
		n += int64(len(list))
	}
	return n, nil
}

type stubUsers struct {
	listed user.ListUsersParams
	err    error
}

func (s *stubUsers) ListUsers(_ context.Context, params user.ListUsersParams) ([]user.User, int, error) {
	s.listed = params
	return []user.User{{ID: 2, Email: "cliente@petlove.com", Role: user.RoleCustomer}}, 1, nil
}

func (s *stubUsers) Stats(context.Context) (*user.Stats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &user.Stats{Total: 2, Active: 2, Verified: 1}, nil
}

type stubResets struct{}

func (stubResets) ActiveCount(context.Context) (int64, error) { return 3, nil }

type stubRevoked struct{}

func (stubRevoked) Count(context.Context) (int64, error) { return 4, nil }

// roleResolver grants role 1 every admin permission and nothing to others.
type roleResolver struct{}

func (roleResolver) HasPermissions(_ context.Context, roleID int64, perms ...string) (bool, error) {
	granted := []string{rbac.PermAdminStats, rbac.PermAdminSessions, rbac.PermAdminUsers}
	for _, p := range perms {
		if roleID != 1 || !slices.Contains(granted, p) {
			return false, nil
		}
	}
	return true, nil
}

func asRole(roleID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.AccessTokenClaims{
				UserID: 1,
				RoleID: roleID,
				Active: true,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type fixture struct {
	sessions *stubSessions
	users    *stubUsers
}

func newFixture() *fixture {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	return &fixture{
		sessions: &stubSessions{sessions: map[int64][]auth.SessionInfo{
			2: {
				{ID: "s1", FamilyID: "f1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
				{ID: "s2", FamilyID: "f2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
			},
		}},
		users: &stubUsers{},
	}
}

func (f *fixture) router(roleID int64) http.Handler {
	h := NewHandler(HandlerConfig{
		DBStats:   func() sql.DBStats { return sql.DBStats{MaxOpenConnections: 25, InUse: 1} },
		DBPing:    func(context.Context) error { return nil },
		RedisPing: func(context.Context) error { return errors.New("down") },
		Sessions:  f.sessions,
		Users:     f.users,
		Resets:    stubResets{},
		Revoked:   stubRevoked{},
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r, asRole(roleID), roleResolver{})
	return r
}

func call(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestAdmin_RequiresPermission(t *testing.T) {
	router := newFixture().router(2)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/stats"},
		{http.MethodGet, "/admin/users"},
		{http.MethodGet, "/admin/users/2/sessions"},
		{http.MethodPost, "/admin/users/2/revoke-sessions"},
	} {
		rec, body := call(t, router, tc.method, tc.path)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		assert.Equal(t, "FORBIDDEN", body["code"], tc.path)
	}
}

func TestAdmin_Stats(t *testing.T) {
	rec, body := call(t, newFixture().router(1), http.MethodGet, "/admin/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["database"].(map[string]any)["healthy"])
	assert.Equal(t, false, data["redis"].(map[string]any)["healthy"])

	counts := data["auth"].(map[string]any)
	assert.EqualValues(t, 2, counts["active_sessions"])
	assert.EqualValues(t, 3, counts["pending_resets"])
	assert.EqualValues(t, 4, counts["revoked_access_tokens"])
	assert.EqualValues(t, 2, counts["users"].(map[string]any)["total"])
}

func TestAdmin_StatsFailure(t *testing.T) {
	f := newFixture()
	f.users.err = errors.New("db down")

	rec, body := call(t, f.router(1), http.MethodGet, "/admin/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
}

func TestAdmin_ListUsers(t *testing.T) {
	f := newFixture()
	rec, body := call(t, f.router(1), http.MethodGet, "/admin/users?page=2&page_size=500&active=true&role=Cliente")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, f.users.listed.Page)
	assert.Equal(t, 100, f.users.listed.PageSize)
	require.NotNil(t, f.users.listed.Active)
	assert.True(t, *f.users.listed.Active)
	assert.Equal(t, user.RoleCustomer, f.users.listed.Role)

	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["total"])
	assert.Len(t, data["users"], 1)
}

func TestAdmin_Sessions(t *testing.T) {
	f := newFixture()
	router := f.router(1)

	rec, body := call(t, router, http.MethodGet, "/admin/users/2/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].(map[string]any)["sessions"], 2)

	rec, body = call(t, router, http.MethodPost, "/admin/users/2/revoke-sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["revoked"])
	assert.Equal(t, int64(2), f.sessions.revokedFor)
	assert.Equal(t, auth.ReasonAdminRevoked, f.sessions.reason)

	rec, body = call(t, router, http.MethodPost, "/admin/users/99/revoke-sessions")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	rec, body = call(t, router, http.MethodGet, "/admin/users/abc/sessions")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])
}
