// Package sqlitestore provides SQLite-backed store implementations.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/XSAM/otelsql"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at path and applies the schema.
// Queries are traced through otelsql. Transactions begin IMMEDIATE so a
// check-then-write sequence holds the write lock from its first read.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := otelsql.Open("sqlite", dsn,
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions ordered.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	log.Debug().Str("path", path).Msg("sqlitestore: database ready")
	return db, nil
}

var migrations = []struct {
	version    int
	statements []string
}{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS identities (
				id               TEXT    PRIMARY KEY,
				username         TEXT    NOT NULL UNIQUE COLLATE NOCASE,
				permission_level INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS moderation (
				id           TEXT    PRIMARY KEY,
				moderator_id TEXT    NOT NULL,
				target_id    TEXT    NOT NULL,
				kind         TEXT    NOT NULL,
				active       INTEGER NOT NULL DEFAULT 1,
				time_ends    TEXT    NOT NULL,
				reason       TEXT    NOT NULL DEFAULT '',
				report_id    TEXT    NOT NULL DEFAULT '',
				created_at   TEXT    NOT NULL,
				reversed_at  TEXT,
				reversed_by  TEXT    NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_moderation_target ON moderation(target_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_moderation_active ON moderation(target_id) WHERE active = 1`,
			`CREATE TABLE IF NOT EXISTS moderation_reports (
				id         TEXT PRIMARY KEY,
				reportee   TEXT NOT NULL,
				reporter   TEXT NOT NULL DEFAULT '',
				note       TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id          TEXT PRIMARY KEY,
				category    TEXT NOT NULL,
				actor_id    TEXT NOT NULL DEFAULT '',
				target_id   TEXT NOT NULL DEFAULT '',
				sanction_id TEXT NOT NULL DEFAULT '',
				note        TEXT NOT NULL,
				timestamp   TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp)`,
		},
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		log.Info().Int("version", m.version).Msg("sqlitestore: applied migration")
	}
	return nil
}
