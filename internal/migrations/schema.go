package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// sqlFS contains the embedded SQL migration files.
//
//go:embed sql/*.sql
var sqlFS embed.FS

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init migrate instance: %w", err)
	}
	return m, nil
}

// Up applies all pending database migrations. It is safe to call multiple
// times; when the database schema is up to date, the function is a no-op.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	currentVersion := uint(0)
	if v, _, verr := m.Version(); verr == nil {
		currentVersion = v
		log.Printf("migrations: current database schema version: %d", v)
	} else if errors.Is(verr, migrate.ErrNilVersion) {
		log.Printf("migrations: no existing migration version (fresh database)")
	} else {
		log.Printf("migrations: unable to determine current version: %v", verr)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Printf("migrations: no new migrations to apply; database is up to date (version %d)", currentVersion)
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		log.Printf("migrations: successfully applied migrations; new schema version: %d", v)
	} else {
		log.Printf("migrations: applied migrations but failed to read new version: %v", err)
	}

	return nil
}

// Version returns the current schema version and whether it is dirty. A fresh
// database reports version 0.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations: read version: %w", err)
	}
	return v, dirty, nil
}

// FixDirtyDatabase clears the dirty flag left by a failed migration by forcing
// the last version that completed. The failed migration is retried on the
// next Up.
func FixDirtyDatabase(db *sql.DB) error {
	v, dirty, err := Version(db)
	if err != nil {
		return err
	}
	if !dirty {
		log.Printf("migrations: database is not dirty (version %d)", v)
		return nil
	}

	target := int(v) - 1
	log.Printf("migrations: version %d is dirty; forcing %d", v, target)
	if target <= 0 {
		target = -1
	}
	return force(db, target)
}

// ForceVersion sets the schema version without running migrations.
func ForceVersion(db *sql.DB, version uint) error {
	return force(db, int(version))
}

func force(db *sql.DB, version int) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("migrations: force version %d: %w", version, err)
	}
	return nil
}
