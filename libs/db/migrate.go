package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies every pending up-migration found at the root of fsys.
// table names the schema_migrations table so services sharing a database keep
// separate version histories.
func Migrate(databaseURL string, fsys fs.FS, table string) (uint, error) {
	m, closeFn, err := newMigrator(databaseURL, fsys, table)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, err
	}
	return version, nil
}

// Force sets the recorded version without running migrations (dirty-state recovery).
func Force(databaseURL string, fsys fs.FS, table string, version int) error {
	m, closeFn, err := newMigrator(databaseURL, fsys, table)
	if err != nil {
		return err
	}
	defer closeFn()
	return m.Force(version)
}

func newMigrator(databaseURL string, fsys fs.FS, table string) (*migrate.Migrate, func(), error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(fsys, ".")
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}
