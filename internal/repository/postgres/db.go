package postgres

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"materialflow/internal/config"
)

// Driver names accepted by NewDB.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// NewDB opens the relational store. PostgreSQL runs through pgx; SQLite
// (pure Go) serves local runs and tests.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	db, err := sqlx.Connect(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling sqlite foreign keys: %w", err)
		}
		return db, nil
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	return db, nil
}

// builder returns a statement builder with the driver's placeholder format.
func builder(db *sqlx.DB) sq.StatementBuilderType {
	if db.DriverName() == DriverSQLite {
		return sq.StatementBuilder.PlaceholderFormat(sq.Question)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
