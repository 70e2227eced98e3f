// Package repomanager owns the record store handle lifecycle for each
// supported driver: opening the handle, running the goose migrations and
// vending repositories bound to it.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/buzzdrop/internal/server/config"
	"github.com/dmitrijs2005/buzzdrop/internal/server/migrations"
	"github.com/dmitrijs2005/buzzdrop/internal/server/repositories/artifacts"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	// Open returns the database handle for dsn. Drivers without a database
	// return a nil handle.
	Open(ctx context.Context, dsn string) (*sql.DB, error)
	RunMigrations(ctx context.Context, db *sql.DB) error
	Artifacts(db *sql.DB) artifacts.Repository
}

// New returns the manager for a config.Database* driver name.
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case config.DatabasePostgres:
		return NewPostgresRepositoryManager(), nil
	case config.DatabaseSQLite:
		return NewSQLiteRepositoryManager(), nil
	case config.DatabaseMemory:
		return NewInMemoryRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

var migrationsFS = migrations.Migrations

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// migrate points goose at the embedded directory for dialect and applies
// pending migrations.
func migrate(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
