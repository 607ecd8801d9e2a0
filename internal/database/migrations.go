package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// DefaultMigrationsPath is where the SQL migrations live relative to the working directory.
const DefaultMigrationsPath = "migrations"

// Migration directions accepted by Run.
const (
	Up   = "up"
	Down = "down"
)

// MigrationRunner applies the SQL migrations of the PostgreSQL store.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens the migration source and the configured database.
func NewMigrationRunner(cfg domain.DatabaseConfig, logger *logrus.Logger) (*MigrationRunner, error) {
	path := cfg.MigrationsPath
	if path == "" {
		path = DefaultMigrationsPath
	}
	m, err := migrate.New("file://"+path, URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return &MigrationRunner{migrate: m, log: logger}, nil
}

// Run migrates all the way up, or one step down.
func (mr *MigrationRunner) Run(direction string) error {
	var err error
	switch direction {
	case Up:
		err = mr.migrate.Up()
	case Down:
		err = mr.migrate.Steps(-1)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}

	entry := mr.log.WithField("direction", direction)
	if errors.Is(err, migrate.ErrNoChange) {
		entry.Info("Schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrating %s: %w", direction, err)
	}

	version, dirty, err := mr.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		entry.WithError(err).Warn("Could not read schema version")
		return nil
	}
	entry.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("Schema migrated")
	return nil
}

// Version returns the current schema version.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// Close closes the migration source and database.
func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
