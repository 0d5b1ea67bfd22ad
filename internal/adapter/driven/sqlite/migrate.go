package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// Migrate brings the credentials schema up to the newest embedded version.
// A database left dirty by an interrupted migration is refused rather than
// guessed at.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded schema: %w", err)
	}
	target, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("attach schema driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return fmt.Errorf("prepare schema migration: %w", err)
	}

	if _, dirty, verr := m.Version(); verr == nil && dirty {
		return errors.New("vault schema is dirty; restore from backup before continuing")
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return fmt.Errorf("apply schema: %w", err)
	}

	if version, _, err := m.Version(); err == nil {
		slog.Debug("vault schema ready", "version", version)
	}
	return nil
}
