package database

import (
	"errors"
	"fmt"
	"time"

	"pocketledger/internal/logger"
	"pocketledger/internal/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Manager handles database operations
type Manager struct {
	db     *gorm.DB
	config *Config
}

// GormConfig is shared by the API and the tests. TranslateError maps driver
// unique violations to gorm.ErrDuplicatedKey, which the recurring store relies on.
func GormConfig() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

// NewManager opens a connection for the configured driver.
func NewManager(config *Config) (*Manager, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(config.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		dialector = postgres.New(postgres.Config{
			DSN:                  config.DSN(),
			PreferSimpleProtocol: true,
		})
	}

	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	if config.Driver == DriverSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return &Manager{db: db, config: config}, nil
}

// RunMigrations applies pending SQL migrations from the migrations/ directory
// for Postgres, and auto-migrates the models for SQLite.
func (m *Manager) RunMigrations() error {
	log := logger.Get()

	if m.config.Driver == DriverSQLite {
		log.Info("Auto-migrating SQLite schema...")
		if err := m.db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate failed: %w", err)
		}
		return nil
	}

	log.Info("Running database migrations...")
	mig, err := migrate.New("file://migrations", m.config.MigrationURL())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := mig.Close()
		if srcErr != nil {
			log.Warnf("migrate source close error: %v", srcErr)
		}
		if dbErr != nil {
			log.Warnf("migrate database close error: %v", dbErr)
		}
	}()

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("Database migrations completed successfully")
	return nil
}

// DB returns the underlying GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
