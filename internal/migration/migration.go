package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// ErrDirtySchema means a previous postgres migration stopped half way and
// needs a manual `migrate force` before the service can start.
var ErrDirtySchema = errors.New("dirty_schema")

// Status is the schema state after Migrate.
type Status struct {
	Dialect string
	// Version and Dirty come from golang-migrate and stay zero on the
	// auto-migrated dialects.
	Version uint
	Dirty   bool
}

// Migrate brings the billing schema up to date. Postgres runs the embedded
// SQL files; sqlite and mysql, used for local runs and tests, sync the gorm
// models instead.
func Migrate(conn *gorm.DB) (Status, error) {
	status := Status{Dialect: conn.Dialector.Name()}
	if status.Dialect != "postgres" {
		return status, conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return status, err
	}
	m, err := newPostgresMigrator(sqlDB)
	if err != nil {
		return status, err
	}
	// m.Close is never called: it would close the pool gorm shares.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			status.Version, status.Dirty = uint(dirty.Version), true
			return status, fmt.Errorf("schema version %d: %w", dirty.Version, ErrDirtySchema)
		}
		return status, fmt.Errorf("apply migrations: %w", err)
	}

	status.Version, status.Dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		err = nil
	}
	return status, err
}

func newPostgresMigrator(db *sql.DB) (*migrate.Migrate, error) {
	files, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "meterbill_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}
