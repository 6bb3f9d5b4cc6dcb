package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/momo-tracker/internal/logger"
)

//go:embed migrations
var migrationFiles embed.FS

// ErrChecksumMismatch is returned when an applied migration file was edited afterwards.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    checksum   TEXT,
    applied_by TEXT
)`

// Migrate applies every pending migration for the store's dialect and
// returns how many were applied.
func (s *Store) Migrate(ctx context.Context, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if _, err := s.db.ExecContext(ctx, createSchemaMigrations); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	migrations, err := ReadMigrations(migrationFiles, path.Join("migrations", s.dialect.Name))
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, m := range migrations {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, ErrChecksumMismatch)
			}
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("migration already applied")
			continue
		}

		if err := s.applyMigration(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applied migration")
		count++
	}

	return count, nil
}

func (s *Store) applyMigration(ctx context.Context, m Migration, appliedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
	}

	record := s.dialect.Rebind(`INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Name, time.Now().UTC(), m.Checksum, appliedBy); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}

// AppliedMigrations lists recorded migrations in version order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, name, applied_at, checksum, applied_by FROM schema_migrations ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: querying: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			checksum  *string
			appliedBy *string
		)
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &checksum, &appliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scanning: %w", err)
		}
		if checksum != nil {
			am.Checksum = *checksum
		}
		if appliedBy != nil {
			am.AppliedBy = *appliedBy
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

// ReadMigrations loads migration files from dir in fsys, sorted by version.
// Files that do not match NNNN_name.sql are ignored.
func ReadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// splitStatements splits a migration file on semicolons. Migration files
// must not contain semicolons inside string literals.
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
