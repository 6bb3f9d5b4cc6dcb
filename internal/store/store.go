// Package store persists transaction records in SQLite or PostgreSQL and
// serves the query side of the dashboard API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a transaction lookup matches no row.
	ErrNotFound = errors.New("transaction not found")
	// ErrUnknownDriver is returned for database drivers other than sqlite and postgres.
	ErrUnknownDriver = errors.New("unknown database driver")
)

// sqliteParams are appended to SQLite DSNs that do not set them. The time
// format must be one the SQLite date functions understand.
var sqliteParams = []struct{ key, value string }{
	{"_time_format", "_time_format=sqlite"},
	{"_pragma=busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_pragma=journal_mode", "_pragma=journal_mode(WAL)"},
}

// Store is the SQL-backed transaction repository.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Connect opens and pings the database identified by driver and dsn.
func Connect(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}

	if dialect.Name == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("Connect: opening %s database: %w", dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Connect: pinging %s database: %w", dialect.Name, err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

// New wraps an existing handle. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteDSN(dsn string) string {
	for _, p := range sqliteParams {
		if strings.Contains(dsn, p.key) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + p.value
	}
	return dsn
}
