package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations run in order; each one is applied inside its own transaction.
var migrations = []migration{
	{
		Version:     1,
		Description: "documents, chunks, chunks_fts",
		SQL: `
		CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			mime_type   TEXT DEFAULT '',
			size        INTEGER DEFAULT 0,
			chunk_count INTEGER DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			words       INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(document_id, chunk_index);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			content='chunks',
			content_rowid='id',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END;
		CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END;
		`,
	},
}

// runMigrations applies every migration newer than the recorded schema version.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_version (version, description) VALUES (?, ?)`,
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}

// SchemaVersion returns the latest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}
