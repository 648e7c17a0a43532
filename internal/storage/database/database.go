// Package database opens the configured storage backend from a DATABASE_URL.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/skulicheck/skulicheck-be/internal/storage"
	"github.com/skulicheck/skulicheck-be/internal/storage/postgres"
	"github.com/skulicheck/skulicheck-be/internal/storage/sqlite"
)

const sqliteScheme = "sqlite://"

// Open connects to Postgres for postgres:// URLs and to a SQLite file for
// sqlite://<path> URLs. Migrations are applied before returning.
func Open(ctx context.Context, databaseURL string) (storage.Store, error) {
	if path, ok := sqlitePath(databaseURL); ok {
		return sqlite.Open(ctx, path)
	}
	if isPostgres(databaseURL) {
		return postgres.NewStore(ctx, databaseURL)
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme")
}

// Migrate runs schema migrations in direction ("up" or "down") without
// opening a long-lived store.
func Migrate(ctx context.Context, databaseURL, direction string) error {
	if path, ok := sqlitePath(databaseURL); ok {
		return sqlite.Migrate(ctx, path, direction)
	}
	if isPostgres(databaseURL) {
		return postgres.Migrate(ctx, databaseURL, direction)
	}
	return fmt.Errorf("unsupported DATABASE_URL scheme")
}

func sqlitePath(databaseURL string) (string, bool) {
	if !strings.HasPrefix(databaseURL, sqliteScheme) {
		return "", false
	}
	return strings.TrimPrefix(databaseURL, sqliteScheme), true
}

func isPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}
