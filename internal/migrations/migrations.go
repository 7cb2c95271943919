// Package migrations owns the database schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

func setup() error {
	goose.SetBaseFS(files)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("postgres")
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Rollback undoes the last steps migrations.
func Rollback(ctx context.Context, db *sql.DB, steps int) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	for range steps {
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	return nil
}

func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}
