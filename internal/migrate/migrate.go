// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kazu-apps/carenote-sync/migrations"
)

// Up runs all pending PostgreSQL migrations for the remote document store.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return run(ctx, goose.DialectPostgres, db, migrations.Postgres, "postgres")
}

// UpSQLite runs all pending migrations for the device record store on db.
func UpSQLite(ctx context.Context, db *sql.DB) error {
	return run(ctx, goose.DialectSQLite3, db, migrations.SQLite, "sqlite")
}

func run(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	_, err = p.Up(ctx)
	return err
}
