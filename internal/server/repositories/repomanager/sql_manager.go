// Package repomanager provides a concrete RepositoryManager for PostgreSQL
// and SQLite, wiring together repository constructors and database
// migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/libraryauth/internal/dbx"
	"github.com/dmitrijs2005/libraryauth/internal/server/migrations"
	"github.com/dmitrijs2005/libraryauth/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager vends database/sql backed repository implementations
// and exposes a schema migration hook for its dialect.
type SQLRepositoryManager struct {
	dialect string
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewSQLRepositoryManager constructs a RepositoryManager for a database/sql
// driver name (DriverPostgres or DriverSQLite).
func NewSQLRepositoryManager(driver string) (RepositoryManager, error) {
	switch driver {
	case DriverPostgres:
		return &SQLRepositoryManager{dialect: dialectPostgres}, nil
	case DriverSQLite:
		return &SQLRepositoryManager{dialect: dialectSQLite}, nil
	}
	return nil, fmt.Errorf("%w: driver %q", ErrUnsupportedDSN, driver)
}
