package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertSQL        = `(?s)^INSERT\s+INTO\s+refresh_tokens\s*\(user_id,\s*token,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	selectSQL        = `(?s)^SELECT\s+id,\s*user_id,\s*token,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	deleteSQL        = `(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	deleteExpiredSQL = `(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+expires_at\s*<\s*\$2\s*$`
)

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("stores expiry in the future", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(insertSQL).
			WithArgs("u1", "tok", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, "u1", "tok", 30*time.Minute))
	})

	t.Run("wraps driver error", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(insertSQL).WillReturnError(errors.New("db down"))

		err := repo.Create(ctx, "u1", "tok", time.Hour)
		assert.ErrorContains(t, err, "error performing sql request: db down")
	})
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	created := expires.Add(-time.Hour)

	t.Run("found", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(selectSQL).
			WithArgs("tok").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
				AddRow("7", "u1", "tok", expires, created))

		got, err := repo.Find(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "7", got.ID)
		assert.Equal(t, "u1", got.UserID)
		assert.True(t, got.Expires.Equal(expires))
		assert.True(t, got.CreatedAt.Equal(created))
	})

	t.Run("missing maps to not found", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(selectSQL).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.Find(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("driver error", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(selectSQL).WithArgs("tok").WillReturnError(errors.New("boom"))

		_, err := repo.Find(ctx, "tok")
		assert.ErrorContains(t, err, "db error: boom")
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	repo, mock := newMock(t)
	mock.ExpectExec(deleteSQL).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteSQL).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteSQL).WithArgs("tok").WillReturnError(errors.New("boom"))

	require.NoError(t, repo.Delete(ctx, "tok"))
	require.NoError(t, repo.Delete(ctx, "gone"))
	assert.ErrorContains(t, repo.Delete(ctx, "tok"), "db error: boom")
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	repo, mock := newMock(t)
	mock.ExpectExec(deleteExpiredSQL).WithArgs("u1", now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(deleteExpiredSQL).WithArgs("u1", now).WillReturnError(errors.New("boom"))

	n, err := repo.DeleteExpired(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.DeleteExpired(ctx, "u1", now)
	assert.ErrorContains(t, err, "db error: boom")
}
