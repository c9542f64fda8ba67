// AngelaMos | 2026
// database_test.go

package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "pgx"), mock
}

func TestInTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		require.NoError(t, InTx(context.Background(), db, func(*sqlx.Tx) error { return nil }))
	})

	t.Run("rolls back and returns fn error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := InTx(context.Background(), db, func(*sqlx.Tx) error { return ErrTokenInactive })
		assert.ErrorIs(t, err, ErrTokenInactive)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = InTx(context.Background(), db, func(*sqlx.Tx) error { panic("boom") })
		})
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

		err := InTx(context.Background(), db, func(*sqlx.Tx) error { return nil })
		assert.ErrorContains(t, err, "begin transaction")
	})
}

func TestRowsAffected(t *testing.T) {
	assert.NoError(t, RowsAffected(sqlmock.NewResult(0, 1), ErrNotFound))
	assert.ErrorIs(t, RowsAffected(sqlmock.NewResult(0, 0), ErrNotFound), ErrNotFound)

	broken := sqlmock.NewErrorResult(errors.New("no rows info"))
	assert.EqualError(t, RowsAffected(broken, ErrNotFound), "no rows info")
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsDuplicateKeyError(errors.New("other")))
}
