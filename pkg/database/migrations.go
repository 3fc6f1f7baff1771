package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/config"
)

// RunMigrations brings the schema up to date from the SQL files under
// migrationsPath. The migrate library works against database/sql, so a
// short-lived handle is opened here rather than borrowing the pgx pool the
// rest of the engine uses.
func RunMigrations(cfg *config.DatabaseConfig, migrationsPath string, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.URL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to load migrations from %s: %w", migrationsPath, err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Migration cleanup reported errors",
				zap.NamedError("source", srcErr),
				zap.NamedError("database", dbErr))
		}
	}()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Schema already up to date")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	default:
		version, dirty, _ := m.Version()
		logger.Info("Schema migrated",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty))
	}
	return nil
}
