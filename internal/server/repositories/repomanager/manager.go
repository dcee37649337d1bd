package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/libraryauth/internal/dbx"
	"github.com/dmitrijs2005/libraryauth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}

// Driver names registered by the imported database/sql drivers, paired with
// the goose dialect for each.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	dialectPostgres = "pgx"
	dialectSQLite   = "sqlite3"
)

var ErrUnsupportedDSN = errors.New("unsupported database DSN")

// ParseDSN picks the database/sql driver for dsn and returns the connection
// string that driver expects.
//
//	postgres://..., postgresql://...   -> pgx
//	file:..., sqlite:..., *.db         -> sqlite
func ParseDSN(dsn string) (driver, conn string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return DriverSQLite, strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"):
		return DriverSQLite, dsn, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
}

// Open connects to the database named by dsn and returns a manager for the
// matching SQL dialect. The connection is verified with a ping.
func Open(ctx context.Context, dsn string) (*sql.DB, RepositoryManager, error) {
	driver, conn, err := ParseDSN(dsn)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite serialises writers; a single connection also keeps
		// :memory: databases alive for the life of the pool.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("error connecting to database: %w", err)
	}

	m, err := NewSQLRepositoryManager(driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, m, nil
}

// redact drops everything up to the last '@' so credentials embedded in a
// DSN never reach error messages or logs.
func redact(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return "***" + dsn[i:]
	}
	return dsn
}
