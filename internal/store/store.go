// Package store persists the knowledge base in SQLite with an FTS5 index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"kbbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.KnowledgeStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.KnowledgeStore = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at dbPath and applies pending
// migrations.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// PutDocument stores doc and replaces any chunks previously stored under its ID.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, name, mime_type, size, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.MimeType, doc.Size, len(chunks), doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (document_id, chunk_index, content, words) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, doc.ID, c.Index, c.Content, c.Words); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

// Search runs a full-text query and returns up to limit hits, best first.
// Free text is reduced to its words, so punctuation in a chat message never
// reaches the FTS5 query parser.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.document_id, c.chunk_index, c.content, c.words, d.name, bm25(chunks_fts) AS score
		 FROM chunks_fts
		 JOIN chunks c ON c.id = chunks_fts.rowid
		 JOIN documents d ON d.id = c.document_id
		 WHERE chunks_fts MATCH ?
		 ORDER BY score
		 LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", match, err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.Chunk.DocumentID, &h.Chunk.Index, &h.Chunk.Content,
			&h.Chunk.Words, &h.DocName, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, mime_type, size, chunk_count, created_at
		 FROM documents ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.MimeType, &d.Size, &d.ChunkCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks. Deleting an unknown ID
// returns ErrNotFound.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
