package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	// Registers the postgres:// scheme with migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is the part of *migrate.Migrate that RunMigrations uses.
type Migrator interface {
	Up() error
	Close() (error, error)
}

// MigrationEngine builds a Migrator for a database URL.
type MigrationEngine func(databaseURL string) (Migrator, error)

// EmbeddedEngine reads the SQL files compiled into the binary.
func EmbeddedEngine(databaseURL string) (Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations. It opens its own connection,
// so it is safe to call on every startup next to a live pool.
func RunMigrations(databaseURL string, engine MigrationEngine) (err error) {
	if engine == nil {
		engine = EmbeddedEngine
	}

	m, err := engine(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			err = errors.Join(err, fmt.Errorf("migration source error: %w", srcErr))
		}
		if dbErr != nil {
			err = errors.Join(err, fmt.Errorf("migration database error: %w", dbErr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	log.Println("Database migrations applied")
	return nil
}
