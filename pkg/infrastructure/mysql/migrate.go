package mysql

import (
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"storefront/data"
)

// Migrate applies all embedded schema migrations that have not run yet.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(data.MySQLMigrations, data.MySQLMigrationsDir)
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}
	driver, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrator")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("database schema is up to date")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	version, _, _ := m.Version()
	log.WithField("version", version).Info("database schema migrated")
	return nil
}
