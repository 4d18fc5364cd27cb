// Package migrations embeds and applies the schema for each driver. Every
// statement is idempotent, so running the set again is safe.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sqlite/*.up.sql postgres/*.up.sql
var files embed.FS

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, dir+"/"+entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func apply(ctx context.Context, dir string, exec func(ctx context.Context, sql string) error) error {
	names, err := upFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// RunSQLiteMigrations applies the SQLite schema.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return apply(ctx, "sqlite", func(ctx context.Context, body string) error {
		_, err := db.ExecContext(ctx, body)
		return err
	})
}

// RunPostgresMigrations applies the PostgreSQL schema. Statements without
// arguments go over the simple protocol, so a file may hold several.
func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return apply(ctx, "postgres", func(ctx context.Context, body string) error {
		_, err := pool.Exec(ctx, body)
		return err
	})
}
