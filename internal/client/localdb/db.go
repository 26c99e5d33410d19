// Package localdb opens the client's sqlite database and applies schema
// migrations.
package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/pulldeck/pulldeck/internal/client/localdb/migrations"
	"github.com/pulldeck/pulldeck/internal/filex"
)

// Open opens (creating if needed) the sqlite database at dsn and brings the
// schema up to date. The sqlite driver must be registered by the caller
// (blank-import of modernc.org/sqlite at the composition root).
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	// Plain file paths may point into a directory that does not exist yet;
	// URI-style DSNs (file:...?mode=memory) are left to the driver.
	if !strings.HasPrefix(dsn, "file:") {
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("failed to prepare database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
