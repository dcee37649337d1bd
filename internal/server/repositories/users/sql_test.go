package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	insertQuery = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*username,\s*password_salt,\s*password_hash,\s*role,\s*first_name,\s*last_name,\s*email,\s*phone,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,.*\$11\)\s*$`
	selectQuery = `(?s)^SELECT\s+id,\s*username,\s*password_salt,\s*password_hash,\s*role,.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`
	updateQuery = `(?s)^UPDATE\s+users\s+SET\s+password_salt\s*=\s*\$1,\s*password_hash\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+username\s*=\s*\$4\s*$`
)

var userColumns = []string{"id", "username", "password_salt", "password_hash", "role",
	"first_name", "last_name", "email", "phone", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewSQLRepository(db)
	repo.now = func() time.Time { return fixedNow }
	repo.newID = func() string { return "id-1" }
	return repo, mock
}

func aliceRecord() *models.User {
	return &models.User{
		UserName:     "alice",
		PasswordSalt: "c2FsdA==",
		PasswordHash: "aGFzaA==",
		Role:         "Admin",
		Profile:      models.Profile{FirstName: "Alice", Email: "alice@example.com"},
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).
		WithArgs("id-1", "alice", "c2FsdA==", "aGFzaA==", "Admin", "Alice", "", "alice@example.com", "", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	in := aliceRecord()
	got, err := repo.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.Empty(t, in.ID, "input must not be mutated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicatePostgres(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key"})

	_, err := repo.Create(context.Background(), aliceRecord())
	assert.ErrorIs(t, err, common.ErrDuplicateUsername)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), aliceRecord())
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
	assert.NotErrorIs(t, err, common.ErrDuplicateUsername)
}

func TestGetUserByLogin_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows(userColumns).
		AddRow("u-1", "alice", "c2FsdA==", "aGFzaA==", "Admin", "Alice", "Smith", "a@example.com", "555", fixedNow, fixedNow)
	mock.ExpectQuery(selectQuery).WithArgs("alice").WillReturnRows(rows)

	got, err := repo.GetUserByLogin(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &models.User{
		ID:           "u-1",
		UserName:     "alice",
		PasswordSalt: "c2FsdA==",
		PasswordHash: "aGFzaA==",
		Role:         "Admin",
		Profile:      models.Profile{FirstName: "Alice", LastName: "Smith", Email: "a@example.com", Phone: "555"},
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	}, got)
}

func TestGetUserByLogin_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUserByLogin(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetUserByLogin_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQuery).WithArgs("alice").WillReturnError(errors.New("db err"))

	_, err := repo.GetUserByLogin(context.Background(), "alice")
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db err`, err.Error())
}

func TestUpdatePassword(t *testing.T) {
	t.Run("updates salt and hash together", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(updateQuery).
			WithArgs("bmV3c2FsdA==", "bmV3aGFzaA==", fixedNow, "bob").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdatePassword(context.Background(), "bob", "bmV3c2FsdA==", "bmV3aGFzaA=="))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(updateQuery).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdatePassword(context.Background(), "ghost", "s", "h")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(updateQuery).WillReturnError(errors.New("boom"))

		err := repo.UpdatePassword(context.Background(), "bob", "s", "h")
		assert.Regexp(t, `db error: .*boom`, err.Error())
	})

	t.Run("rows affected error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(updateQuery).WillReturnResult(sqlmock.NewErrorResult(errors.New("no count")))

		err := repo.UpdatePassword(context.Background(), "bob", "s", "h")
		assert.Regexp(t, `db error: .*no count`, err.Error())
	})
}
