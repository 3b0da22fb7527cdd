// Package lookup builds the answer-lookup collaborator selected by config.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kbbot/internal/cloud"
	"kbbot/internal/config"
	"kbbot/internal/domain"
	"kbbot/internal/knowledge"
	"kbbot/internal/store"
)

var ErrUnknownBackend = errors.New("unknown lookup backend")

// Backend is a ready-to-use answerer plus whatever it holds open.
type Backend struct {
	Answerer domain.Answerer
	// Engine is set for backends that read the local knowledge base.
	Engine *knowledge.Engine

	store   *store.SQLiteStore
	closers []func() error
}

// Ping checks the knowledge base when the backend uses one.
func (b *Backend) Ping(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	return b.store.Ping(ctx)
}

// Close releases the knowledge base, if one was opened.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the backend named by cfg.Lookup.Backend. The returned answerer
// is wrapped with lookup metrics.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{}

	switch cfg.Lookup.Backend {
	case config.BackendKnowledge, "":
		engine, err := OpenEngine(cfg, logger)
		if err != nil {
			return nil, err
		}
		b.Engine, b.store = engine.Engine, engine.Store
		b.closers = append(b.closers, engine.Close)
		b.Answerer = engine.Engine

	case config.BackendHTTP:
		b.Answerer = NewHTTP(HTTPConfig{
			URL:     cfg.Lookup.HTTP.URL,
			Token:   cfg.Lookup.HTTP.Token,
			Timeout: time.Duration(cfg.Lookup.HTTP.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})

	case config.BackendBedrock:
		engine, err := OpenEngine(cfg, logger)
		if err != nil {
			return nil, err
		}
		b.Engine, b.store = engine.Engine, engine.Store
		b.closers = append(b.closers, engine.Close)
		awsCfg, err := cloud.LoadAWS(ctx, cfg.AWS.Region)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Answerer = knowledge.NewBedrockAnswerer(knowledge.BedrockConfig{
			Engine:    engine.Engine,
			Client:    cloud.NewBedrock(awsCfg),
			ModelID:   cfg.Lookup.Bedrock.ModelID,
			MaxTokens: cfg.Lookup.Bedrock.MaxTokens,
			Logger:    logger,
		})

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Lookup.Backend)
	}

	logger.Info("lookup backend ready", "backend", backendName(cfg.Lookup.Backend))
	b.Answerer = Instrument(b.Answerer)
	return b, nil
}

// OpenedEngine is a knowledge engine together with the store backing it.
type OpenedEngine struct {
	*knowledge.Engine
	Store *store.SQLiteStore
}

func (o *OpenedEngine) Close() error { return o.Store.Close() }

// OpenEngine opens the SQLite knowledge base at cfg.Knowledge.DBPath.
func OpenEngine(cfg *config.Config, logger *slog.Logger) (*OpenedEngine, error) {
	st, err := store.Open(cfg.Knowledge.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	engine := knowledge.NewEngine(knowledge.EngineConfig{
		Store:     st,
		ChunkSize: cfg.Knowledge.ChunkSize,
		Overlap:   cfg.Knowledge.ChunkOverlap,
		TopK:      cfg.Knowledge.SearchTopK,
		NoAnswer:  cfg.Knowledge.NoAnswer,
		Logger:    logger,
	})
	return &OpenedEngine{Engine: engine, Store: st}, nil
}

func backendName(name string) string {
	if name == "" {
		return config.BackendKnowledge
	}
	return name
}
