package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"pocketledger/internal/config"
	"pocketledger/internal/database"
	"pocketledger/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Migration error: %v", err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: migrate <up|down|version|force> [N]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dbConfig, err := database.NewConfig(cfg)
	if err != nil {
		return err
	}
	if dbConfig.Driver != database.DriverPostgres {
		return fmt.Errorf("SQL migrations target postgres; %s schemas are created by the API on startup", dbConfig.Driver)
	}

	m, err := migrate.New("file://migrations", dbConfig.MigrationURL())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Get().Warnf("migrate source close error: %v", srcErr)
		}
		if dbErr != nil {
			logger.Get().Warnf("migrate database close error: %v", dbErr)
		}
	}()

	switch command := os.Args[1]; command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Get().Info("Migrations applied successfully")

	case "down":
		steps, err := stepArg(1)
		if err != nil {
			return err
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Get().Infof("Rolled back %d migration(s)", steps)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Get().Infof("Version: %d, Dirty: %v", version, dirty)

	case "force":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		logger.Get().Infof("Forced version %d", version)

	default:
		return fmt.Errorf("unknown command: %s (use up, down, version or force)", command)
	}

	return nil
}

func stepArg(def int) (int, error) {
	if len(os.Args) < 3 {
		return def, nil
	}
	n, err := strconv.Atoi(os.Args[2])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid step count %q", os.Args[2])
	}
	return n, nil
}
