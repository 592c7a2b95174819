// Package migrations embeds the schema migrations and applies them with
// golang-migrate, which tracks the applied version in a schema_migrations
// table and is safe to run on every startup.
package migrations

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

//go:embed sql/*.sql
var files embed.FS

// Source returns the embedded migration source, usable without a database
// connection (e.g. to validate the migration set at startup or in tests).
func Source() (source interface{ Close() error }, err error) {
	d, err := iofs.New(files, "sql")
	if err != nil {
		return nil, tserrors.Config("bad_migrations", "embedded migrations are malformed", err)
	}
	return d, nil
}

// Apply runs every pending migration against db, in order. It is idempotent:
// migrations already recorded in schema_migrations are skipped.
func Apply(db *sql.DB) error {
	srcDriver, err := iofs.New(files, "sql")
	if err != nil {
		return tserrors.Config("bad_migrations", "embedded migrations are malformed", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return tserrors.TransientIO("migrate_driver_failed", "failed constructing postgres migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return tserrors.TransientIO("migrate_init_failed", "failed initializing migrator", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return tserrors.TransientIO("migrate_up_failed", "failed applying migrations", err)
	}
	return nil
}
