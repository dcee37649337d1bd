// Package users implements the credential store on top of database/sql.
// The same queries run on PostgreSQL (pgx) and SQLite (modernc); both accept
// $N placeholders.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/dbx"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/google/uuid"
)

type SQLRepository struct {
	db    dbx.DBTX
	now   func() time.Time
	newID func() string
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Create inserts user with a fresh id. A username that already exists
// yields common.ErrDuplicateUsername.
func (r *SQLRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (id, username, password_salt, password_hash, role,
		                    first_name, last_name, email, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 `

	created := *user
	created.ID = r.newID()
	created.CreatedAt = r.now()
	created.UpdatedAt = created.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		created.ID, created.UserName, created.PasswordSalt, created.PasswordHash, created.Role,
		created.Profile.FirstName, created.Profile.LastName, created.Profile.Email, created.Profile.Phone,
		created.CreatedAt, created.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &created, nil
}

func (r *SQLRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`SELECT id, username, password_salt, password_hash, role,
		        first_name, last_name, email, phone, created_at, updated_at
		 FROM users
		 WHERE username = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userName).Scan(
		&user.ID, &user.UserName, &user.PasswordSalt, &user.PasswordHash, &user.Role,
		&user.Profile.FirstName, &user.Profile.LastName, &user.Profile.Email, &user.Profile.Phone,
		&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// UpdatePassword replaces salt and hash in a single statement. Concurrent
// updates are last-writer-wins.
func (r *SQLRepository) UpdatePassword(ctx context.Context, userName, salt, hash string) error {
	query :=
		`UPDATE users SET password_salt = $1, password_hash = $2, updated_at = $3
		 WHERE username = $4
		 `

	res, err := r.db.ExecContext(ctx, query, salt, hash, r.now(), userName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

