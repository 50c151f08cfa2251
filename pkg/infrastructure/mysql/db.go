package mysql

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Config struct {
	DSN             string
	MaxConnections  int
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, config Config) (*sqlx.DB, error) {
	dsn, err := mysql.ParseDSN(config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql dsn")
	}
	dsn.ParseTime = true
	dsn.MultiStatements = true
	// rows affected counts matched rows, so an UPDATE that changes nothing still finds its row
	dsn.ClientFoundRows = true

	db, err := sqlx.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return db, nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.WithStack(tx.Commit())
}
