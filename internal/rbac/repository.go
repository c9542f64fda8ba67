// AngelaMos | 2026
// repository.go

package rbac

import (
	"context"
	"fmt"

	"github.com/petlove/backoffice-api/internal/core"
)

type Repository interface {
	PermissionsForRole(ctx context.Context, roleID int64) ([]string, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) PermissionsForRole(
	ctx context.Context,
	roleID int64,
) ([]string, error) {
	query := `
		SELECT permission
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY permission`

	permissions := []string{}
	if err := r.db.SelectContext(ctx, &permissions, query, roleID); err != nil {
		return nil, fmt.Errorf("permissions for role: %w", err)
	}

	return permissions, nil
}
