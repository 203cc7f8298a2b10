package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"materialflow/db"
)

// NewMigrator returns a migrate instance over the embedded migrations for
// the connection's driver.
func NewMigrator(conn *sqlx.DB) (*migrate.Migrate, error) {
	var (
		dir    string
		driver database.Driver
		err    error
	)
	switch conn.DriverName() {
	case DriverSQLite:
		dir = "migrations/sqlite"
		driver, err = migratesqlite.WithInstance(conn.DB, &migratesqlite.Config{})
	default:
		dir = "migrations/postgres"
		driver, err = migratepgx.WithInstance(conn.DB, &migratepgx.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}

	src, err := iofs.New(db.Migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("opening migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, conn.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations.
func Migrate(conn *sqlx.DB) error {
	m, err := NewMigrator(conn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
