// AngelaMos | 2026
// repository.go

package passwordreset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/petlove/backoffice-api/internal/core"
)

// ErrCodeCollision means the generated code already exists; callers retry
// with a fresh code.
var ErrCodeCollision = errors.New("reset code collision")

type Repository interface {
	CreateReplacingActive(ctx context.Context, token *Token) error
	FindActiveByCode(
		ctx context.Context,
		userID int64,
		code string,
		now time.Time,
	) (*Token, error)
	FindActiveByLink(
		ctx context.Context,
		userID int64,
		link string,
		now time.Time,
	) (*Token, error)
	Consume(
		ctx context.Context,
		tokenID, userID int64,
		passwordHash string,
		now time.Time,
	) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const tokenColumns = `
	id, code, token, user_id, created_at, expires_at,
	used, used_at, client_ip, user_agent`

// CreateReplacingActive marks every active token of the user as used and
// inserts token in the same transaction, so at most one stays active. The
// user row is locked first so concurrent requests for one user serialize.
func (r *repository) CreateReplacingActive(
	ctx context.Context,
	token *Token,
) error {
	lock := `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	invalidate := `
		UPDATE password_reset_tokens
		SET used = true, used_at = $2
		WHERE user_id = $1 AND used = false`

	insert := `
		INSERT INTO password_reset_tokens (
			code, token, user_id, created_at, expires_at, client_ip, user_agent
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id`

	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var lockedID int64
		if err := tx.GetContext(ctx, &lockedID, lock, token.UserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lock user: %w", core.ErrNotFound)
			}
			return fmt.Errorf("lock user: %w", err)
		}

		if _, err := tx.ExecContext(ctx, invalidate, token.UserID, token.CreatedAt); err != nil {
			return fmt.Errorf("invalidate active reset tokens: %w", err)
		}

		err := tx.GetContext(ctx, &token.ID, insert,
			token.Code,
			token.LinkToken,
			token.UserID,
			token.CreatedAt,
			token.ExpiresAt,
			token.ClientIP,
			token.UserAgent,
		)
		if err != nil {
			if core.IsDuplicateKeyError(err) {
				return ErrCodeCollision
			}
			return fmt.Errorf("insert reset token: %w", err)
		}

		return nil
	})
}

func (r *repository) FindActiveByCode(
	ctx context.Context,
	userID int64,
	code string,
	now time.Time,
) (*Token, error) {
	query := `SELECT` + tokenColumns + `
		FROM password_reset_tokens
		WHERE user_id = $1 AND code = $2 AND used = false AND expires_at >= $3`

	return r.findOne(ctx, query, userID, code, now)
}

func (r *repository) FindActiveByLink(
	ctx context.Context,
	userID int64,
	link string,
	now time.Time,
) (*Token, error) {
	query := `SELECT` + tokenColumns + `
		FROM password_reset_tokens
		WHERE user_id = $1 AND token = $2 AND used = false AND expires_at >= $3`

	return r.findOne(ctx, query, userID, link, now)
}

func (r *repository) findOne(
	ctx context.Context,
	query string,
	args ...any,
) (*Token, error) {
	var token Token
	err := r.db.GetContext(ctx, &token, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find reset token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return &token, nil
}

// Consume flips the token to used only if it is still active and writes the
// new password hash in the same transaction. A lost race yields
// core.ErrTokenInactive.
func (r *repository) Consume(
	ctx context.Context,
	tokenID, userID int64,
	passwordHash string,
	now time.Time,
) error {
	markUsed := `
		UPDATE password_reset_tokens
		SET used = true, used_at = $2
		WHERE id = $1 AND used = false AND expires_at >= $2`

	setPassword := `
		UPDATE users
		SET password_hash = $1, updated_at = $2
		WHERE id = $3`

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, markUsed, tokenID, now)
		if err != nil {
			return err
		}
		if err := core.RowsAffected(res, core.ErrTokenInactive); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, setPassword, passwordHash, now, userID)
		if err != nil {
			return err
		}
		return core.RowsAffected(res, core.ErrNotFound)
	})
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	return nil
}

func (r *repository) DeleteExpired(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}

	return rows, nil
}

func (r *repository) CountActive(
	ctx context.Context,
	now time.Time,
) (int64, error) {
	query := `
		SELECT COUNT(*) FROM password_reset_tokens
		WHERE used = false AND expires_at >= $1`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, fmt.Errorf("count active reset tokens: %w", err)
	}
	return count, nil
}
