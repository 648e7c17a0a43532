// Package migrations embeds the schema for each supported SQL dialect and
// applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect names a directory of migrations and the goose dialect that runs it.
type Dialect struct {
	dir   string
	goose goose.Dialect
}

var (
	Postgres = Dialect{dir: "postgres", goose: goose.DialectPostgres}
	SQLite   = Dialect{dir: "sqlite", goose: goose.DialectSQLite3}
)

// Run applies migrations in the given direction ("up" or "down").
// Down rolls back a single version.
func Run(ctx context.Context, db *sql.DB, dialect Dialect, direction string) error {
	fsys, err := fs.Sub(files, dialect.dir)
	if err != nil {
		return fmt.Errorf("migrations: open %s: %w", dialect.dir, err)
	}
	provider, err := goose.NewProvider(dialect.goose, db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	switch direction {
	case "up":
		if _, err := provider.Up(ctx); err != nil {
			return fmt.Errorf("migrations: up: %w", err)
		}
	case "down":
		if _, err := provider.Down(ctx); err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
			return fmt.Errorf("migrations: down: %w", err)
		}
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	return nil
}
