package domain

import (
	"context"
	"time"
)

// Document is a source file loaded into the knowledge base.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a searchable slice of a document.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Content    string `json:"content"`
	Words      int    `json:"words"`
}

// SearchHit is one ranked chunk returned for a query. Lower Score is better,
// following SQLite's bm25() convention.
type SearchHit struct {
	Chunk   Chunk   `json:"chunk"`
	DocName string  `json:"doc_name"`
	Score   float64 `json:"score"`
}

// KnowledgeStore persists documents and answers full-text queries over their chunks.
type KnowledgeStore interface {
	PutDocument(ctx context.Context, doc Document, chunks []Chunk) error
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	DeleteDocument(ctx context.Context, id string) error
}
