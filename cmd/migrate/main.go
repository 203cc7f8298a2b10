// Command migrate applies the embedded schema migrations to the configured
// database (Postgres or SQLite).
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/logging"
	"materialflow/internal/repository/postgres"
)

const usage = "Usage: migrate [up|down|steps N|goto V|force V|version]"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, os.Args[1:], logger); err != nil {
		logger.Fatal("migrate: failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func run(cfg *config.Config, args []string, logger *zap.Logger) error {
	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	m, err := postgres.NewMigrator(db)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("driver", db.DriverName()))

	switch args[0] {
	case "up":
		return report(logger, m, "migrations applied", m.Up())
	case "down":
		return report(logger, m, "migrations reverted", m.Down())
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return report(logger, m, fmt.Sprintf("applied %d migration steps", n), m.Steps(n))
	case "goto":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return report(logger, m, "migrated to version", m.Migrate(uint(v)))
	case "force":
		// Clears the dirty flag after a failed migration was fixed by hand.
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return report(logger, m, "version forced", m.Force(v))
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading version: %w", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)
		return nil
	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a number argument", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid %s argument: %w", args[0], err)
	}
	return n, nil
}

func report(logger *zap.Logger, m *migrate.Migrate, msg string, err error) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	logger.Info("migrate: "+msg, zap.Uint("version", version), zap.Bool("dirty", dirty), zap.Bool("changed", err == nil))
	return nil
}
