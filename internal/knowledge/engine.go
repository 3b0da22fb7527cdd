// Package knowledge answers questions from a local document knowledge base.
package knowledge

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kbbot/internal/domain"
)

// Engine chunks documents into a KnowledgeStore and answers questions with
// the best-ranked chunk.
type Engine struct {
	store     domain.KnowledgeStore
	chunkSize int
	overlap   int
	topK      int
	noAnswer  string
	logger    *slog.Logger
}

var _ domain.Answerer = (*Engine)(nil)

type EngineConfig struct {
	Store     domain.KnowledgeStore
	ChunkSize int    // words per chunk (default: 200)
	Overlap   int    // words shared by neighbouring chunks
	TopK      int    // hits considered per question (default: 3)
	NoAnswer  string // reply used when nothing matches
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		topK:      cfg.TopK,
		noAnswer:  cfg.NoAnswer,
		logger:    cfg.Logger,
	}
}

// AddDocument chunks content and stores it. The document ID is derived from
// the content, so adding the same text twice replaces the first copy.
func (e *Engine) AddDocument(ctx context.Context, name, mimeType, content string) (*domain.Document, error) {
	hash := sha256.Sum256([]byte(content))
	docID := fmt.Sprintf("%x", hash[:8])

	chunks := chunkWords(content, docID, e.chunkSize, e.overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", name, ErrEmptyDocument)
	}

	doc := domain.Document{
		ID:         docID,
		Name:       name,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now(),
	}
	if err := e.store.PutDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	e.logger.Info("document added to knowledge base",
		"name", name, "id", docID, "chunks", len(chunks), "size", len(content))
	return &doc, nil
}

// Search returns the top-k chunks for query. topK <= 0 uses the engine default.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = e.topK
	}
	return e.store.Search(ctx, query, topK)
}

func (e *Engine) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return e.store.ListDocuments(ctx)
}

func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	return e.store.DeleteDocument(ctx, id)
}

// Answer returns the content of the best matching chunk, or the configured
// no-answer text when nothing matches.
func (e *Engine) Answer(ctx context.Context, text string) (string, error) {
	hits, err := e.Search(ctx, text, 1)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(hits) == 0 {
		e.logger.Debug("no knowledge match", "query_len", len(text))
		return e.noAnswer, nil
	}
	e.logger.Debug("knowledge match", "doc", hits[0].DocName, "chunk", hits[0].Chunk.Index, "score", hits[0].Score)
	return hits[0].Chunk.Content, nil
}

// NoAnswer is the reply used when the knowledge base has nothing relevant.
func (e *Engine) NoAnswer() string { return e.noAnswer }

// BuildContext renders hits as a prompt section.
func BuildContext(hits []domain.SearchHit) string {
	if len(hits) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] %s (chunk %d)\n%s", i+1, h.DocName, h.Chunk.Index, h.Chunk.Content)
		if i < len(hits)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
