// Package migrations holds the ledger schema as embedded golang-migrate
// files and applies them to a SQLite handle owned by the caller.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

var (
	ErrNotMigrated = errors.New("database has no schema version")
	ErrDirty       = errors.New("database schema is dirty")
	ErrOutOfDate   = errors.New("database schema is out of date")
	ErrTooNew      = errors.New("database schema is newer than this binary")
)

// SchemaStatus describes a database's schema relative to the embedded files.
// Version is 0 for a database that was never migrated.
type SchemaStatus struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is clean and at the latest version.
func (s SchemaStatus) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// Err maps the status to one of the package sentinels, or nil when current.
func (s SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, s.Version)
	case s.Version == 0:
		return ErrNotMigrated
	case s.Version < s.Latest:
		return fmt.Errorf("%w: at %d, latest %d", ErrOutOfDate, s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("%w: at %d, binary knows %d", ErrTooNew, s.Version, s.Latest)
	}
	return nil
}

// Status reads the schema version recorded in db.
func Status(db *sql.DB) (SchemaStatus, error) {
	m, err := open(db)
	if err != nil {
		return SchemaStatus{}, err
	}
	// m is not closed: closing it would close db, which the caller owns.

	var st SchemaStatus
	st.Version, st.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{}, fmt.Errorf("reading schema version: %w", err)
	}

	st.Latest, err = latest()
	if err != nil {
		return SchemaStatus{}, err
	}
	return st, nil
}

// Check returns nil when db is at the latest schema version.
func Check(db *sql.DB) error {
	st, err := Status(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// MigrateUp applies every pending migration. An up-to-date database is not an error.
func MigrateUp(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("loading migration files: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("wrapping database for migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// latest returns the highest version among the embedded files.
func latest() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("loading migration files: %w", err)
	}
	defer src.Close()

	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next fails with os.ErrNotExist past the last file.
			return v, nil
		}
		v = next
	}
}
