package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clearway/claimflow/config"
	contribembed "github.com/clearway/claimflow/contrib/embedder/openai"
	"github.com/clearway/claimflow/contrib/extractor/httpocr"
	redislock "github.com/clearway/claimflow/contrib/lock/redis"
	"github.com/clearway/claimflow/contrib/reasoner/claude"
	contribopenai "github.com/clearway/claimflow/contrib/reasoner/openai"
	"github.com/clearway/claimflow/contrib/vector/inmemory"
	"github.com/clearway/claimflow/contrib/vector/pg"
	"github.com/clearway/claimflow/engine"
	"github.com/clearway/claimflow/metrics"
	"github.com/clearway/claimflow/reasoner"
	"github.com/clearway/claimflow/retrieval"
	"github.com/clearway/claimflow/store"
	"github.com/clearway/claimflow/tools"
	"github.com/clearway/claimflow/vector"
)

// stack holds the wired service dependencies and their closers.
type stack struct {
	cfg    *config.Config
	stores *store.Stores
	deps   tools.Deps
	engine *engine.Engine

	db     *sql.DB
	locker *redislock.Locker
}

// buildStack wires stores, retrieval, the reasoning client, and the engine
// from configuration.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	s := &stack{cfg: cfg}

	var (
		vectorStore vector.Store
		err         error
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pgCfg := &store.PostgresConfig{
			Host:     cfg.Storage.Host,
			Port:     cfg.Storage.Port,
			User:     cfg.Storage.User,
			Password: cfg.Storage.Password,
			DBName:   cfg.Storage.DBName,
			SSLMode:  cfg.Storage.SSLMode,
		}
		s.stores, s.db, err = store.NewPostgresStores(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		vectorStore, err = pg.NewWithDB(ctx, s.db, cfg.Embedder.Dimension, "claim_embeddings")
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("set up pgvector store: %w", err)
		}
	default:
		s.stores = store.NewMemoryStores()
		vectorStore = inmemory.New()
	}

	embedder := contribembed.New(contribembed.Config{
		APIKey:            cfg.Embedder.APIKey,
		BaseURL:           cfg.Embedder.BaseURL,
		Model:             cfg.Embedder.Model,
		Dimension:         cfg.Embedder.Dimension,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
	})

	s.deps = tools.Deps{
		Retriever: retrieval.New(embedder, vectorStore),
		Reasoner:  newReasoner(cfg.Reasoner),
		Stores:    s.stores,
	}
	if cfg.OCR.BaseURL != "" {
		s.deps.Extractor = httpocr.New(httpocr.Config{
			BaseURL: cfg.OCR.BaseURL,
			APIKey:  cfg.OCR.APIKey,
			Timeout: cfg.OCR.Timeout,
		})
	}

	opts := []engine.Option{
		engine.WithMaxIterations(cfg.Engine.MaxIterations),
		engine.WithToolTimeout(cfg.Engine.ToolTimeout),
		engine.WithLLMTimeout(cfg.Engine.LLMTimeout),
		engine.WithDecisionThreshold(cfg.Engine.DecisionThreshold),
		engine.WithModel(cfg.Reasoner.Model),
		engine.WithMetrics(metrics.New()),
	}
	if cfg.Redis.Enabled {
		s.locker, err = redislock.New(ctx, redislock.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, engine.WithLocker(s.locker))
	}

	s.engine = engine.New(s.deps.Reasoner, s.deps, opts...)
	return s, nil
}

func newReasoner(cfg config.ReasonerConfig) reasoner.Client {
	switch cfg.Provider {
	case "claude":
		c := claude.DefaultConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = cfg.MaxTokens
		}
		c.Temperature = cfg.Temperature
		return claude.New(c)
	default:
		c := contribopenai.DefaultConfig()
		c.APIKey = cfg.APIKey
		c.BaseURL = cfg.BaseURL
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = cfg.MaxTokens
		}
		c.Temperature = cfg.Temperature
		return contribopenai.New(c)
	}
}

// Close releases database and lock connections.
func (s *stack) Close() {
	if s.locker != nil {
		_ = s.locker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
