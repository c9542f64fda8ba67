// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/petlove/backoffice-api/internal/core"
)

type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(
		ctx context.Context,
		oldHash string,
		next *RefreshToken,
		now time.Time,
	) error
	Revoke(ctx context.Context, tokenHash, reason string, now time.Time) error
	RevokeFamily(
		ctx context.Context,
		familyID, reason string,
		now time.Time,
	) (int64, error)
	RevokeAllForUser(
		ctx context.Context,
		userID int64,
		reason string,
		now time.Time,
	) (int64, error)
	ActiveForUser(
		ctx context.Context,
		userID int64,
		now time.Time,
	) ([]RefreshToken, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const refreshColumns = `
	id, token_hash, user_id, family_id, created_at, expires_at,
	used, used_at, revoked, revoked_at, replaced_by, revocation_reason,
	client_ip, user_agent`

const insertRefreshToken = `
	INSERT INTO refresh_tokens (
		id, token_hash, user_id, family_id, created_at, expires_at,
		client_ip, user_agent
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)`

func insertArgs(t *RefreshToken) []any {
	return []any{
		t.ID,
		t.TokenHash,
		t.UserID,
		t.FamilyID,
		t.CreatedAt,
		t.ExpiresAt,
		t.ClientIP,
		t.UserAgent,
	}
}

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	if _, err := r.db.ExecContext(ctx, insertRefreshToken, insertArgs(token)...); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `SELECT` + refreshColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

// Rotate marks oldHash used only while it is still active and inserts next in
// the same transaction. Zero affected rows means another request won.
func (r *repository) Rotate(
	ctx context.Context,
	oldHash string,
	next *RefreshToken,
	now time.Time,
) error {
	markUsed := `
		UPDATE refresh_tokens
		SET used = true, used_at = $2, replaced_by = $3
		WHERE token_hash = $1
			AND used = false
			AND revoked = false
			AND expires_at >= $2`

	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, markUsed, oldHash, now, next.TokenHash)
		if err != nil {
			return fmt.Errorf("mark refresh token used: %w", err)
		}
		if err := core.RowsAffected(res, core.ErrTokenInactive); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, insertRefreshToken, insertArgs(next)...); err != nil {
			return fmt.Errorf("insert successor token: %w", err)
		}
		return nil
	})
}

func (r *repository) Revoke(
	ctx context.Context,
	tokenHash, reason string,
	now time.Time,
) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2, revocation_reason = $3
		WHERE token_hash = $1 AND revoked = false`

	if _, err := r.db.ExecContext(ctx, query, tokenHash, now, reason); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *repository) RevokeFamily(
	ctx context.Context,
	familyID, reason string,
	now time.Time,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2, revocation_reason = $3
		WHERE family_id = $1 AND revoked = false`

	return r.execCount(ctx, "revoke token family", query, familyID, now, reason)
}

func (r *repository) RevokeAllForUser(
	ctx context.Context,
	userID int64,
	reason string,
	now time.Time,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = $2, revocation_reason = $3
		WHERE user_id = $1 AND revoked = false`

	return r.execCount(ctx, "revoke all user tokens", query, userID, now, reason)
}

func (r *repository) ActiveForUser(
	ctx context.Context,
	userID int64,
	now time.Time,
) ([]RefreshToken, error) {
	query := `SELECT` + refreshColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
			AND used = false
			AND revoked = false
			AND expires_at >= $2
		ORDER BY created_at DESC`

	tokens := []RefreshToken{}
	if err := r.db.SelectContext(ctx, &tokens, query, userID, now); err != nil {
		return nil, fmt.Errorf("get active sessions: %w", err)
	}

	return tokens, nil
}

func (r *repository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE used = false AND revoked = false AND expires_at >= $1`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, fmt.Errorf("count active refresh tokens: %w", err)
	}
	return count, nil
}

func (r *repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1`

	return r.execCount(ctx, "delete expired tokens", query, before)
}

func (r *repository) execCount(
	ctx context.Context,
	op, query string,
	args ...any,
) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return rows, nil
}
