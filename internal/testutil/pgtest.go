// Package testutil provides shared infrastructure for integration tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// PGTest connects to POSTGRES_URL, applies every goose migration and returns
// the handle plus a cleanup that truncates application tables. The test is
// skipped when POSTGRES_URL is unset.
//
//	database, cleanup := testutil.PGTest(t)
//	defer cleanup()
func PGTest(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	database, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		_ = database.Close()
		t.Fatalf("pgtest: set dialect: %v", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(database.DB, findMigrationsDir(t)); err != nil {
		_ = database.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	ctx := context.Background()
	truncateAll(ctx, database)
	cleanup := func() {
		truncateAll(ctx, database)
		_ = database.Close()
	}
	return database, cleanup
}

// findMigrationsDir walks up from the working directory to the module's
// migrations/ directory.
func findMigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: could not find migrations/ walking up from cwd")
		}
		dir = parent
	}
}

func truncateAll(ctx context.Context, database *sqlx.DB) {
	var tables []string
	err := database.SelectContext(ctx, &tables, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename <> 'goose_db_version'
	`)
	if err != nil || len(tables) == 0 {
		return
	}
	_, _ = database.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE")
}
