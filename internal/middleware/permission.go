// AngelaMos | 2026
// permission.go

package middleware

import (
	"context"
	"net/http"

	"github.com/petlove/backoffice-api/internal/core"
)

// PermissionResolver answers whether a role holds every listed permission.
type PermissionResolver interface {
	HasPermissions(
		ctx context.Context,
		roleID int64,
		permissions ...string,
	) (bool, error)
}

// RequirePermission must run after Authenticator. The role is taken from the
// verified claims and evaluated against the persisted role→permission map.
func RequirePermission(
	resolver PermissionResolver,
	permissions ...string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				core.JSONError(
					w,
					core.UnauthorizedError("authentication required"),
				)
				return
			}

			ok, err := resolver.HasPermissions(
				r.Context(),
				claims.RoleID,
				permissions...,
			)
			if err != nil {
				core.InternalServerError(w, r, err)
				return
			}

			if !ok {
				core.LoggerFromContext(r.Context()).Warn("permission denied",
					"user_id", claims.UserID,
					"role", claims.Role,
					"required", permissions,
				)
				core.JSONError(
					w,
					core.ForbiddenError("insufficient permissions"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
