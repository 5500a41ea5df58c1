// Package app constructs the application object graph. Every collaborator is
// built exactly once here and passed into the components that need it; no
// component loads a dependency on demand or reaches for global state.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/common"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/services/catalog"
	"github.com/ternarybob/nuntius/internal/services/dedup"
	"github.com/ternarybob/nuntius/internal/services/embeddings"
	"github.com/ternarybob/nuntius/internal/services/entities"
	"github.com/ternarybob/nuntius/internal/services/impact"
	"github.com/ternarybob/nuntius/internal/services/llm"
	"github.com/ternarybob/nuntius/internal/services/normalize"
	"github.com/ternarybob/nuntius/internal/services/pipeline"
	"github.com/ternarybob/nuntius/internal/services/query"
	"github.com/ternarybob/nuntius/internal/services/sentiment"
	badgerstorage "github.com/ternarybob/nuntius/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Catalog        *catalog.Catalog
	StorageManager interfaces.StorageManager

	EmbeddingService interfaces.EmbeddingService
	LLMService       interfaces.LLMService

	Pipeline    *pipeline.Service
	QueryEngine *query.Engine
}

// New initializes the application with all dependencies in order: catalog,
// storage, providers, then the pipeline and query engine that consume them.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity catalog: %w", err)
	}
	app.Catalog = cat
	logger.Debug().
		Int("companies", len(cat.Companies())).
		Int("regulators", len(cat.Regulators())).
		Int("sectors", len(cat.Sectors())).
		Msg("Entity catalog loaded")

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	if err := app.initEmbeddings(); err != nil {
		storageManager.Close()
		return nil, err
	}

	app.initLLM()

	app.initPipeline(cat)
	app.initQueryEngine(cat)

	logger.Info().
		Str("embedding_mode", cfg.Embedding.Mode).
		Bool("synthesis_enabled", app.LLMService != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initEmbeddings selects the embedding provider from configuration. The
// offline provider needs no credentials; the Gemini provider requires an API
// key and a reachable endpoint.
func (a *App) initEmbeddings() error {
	cfg := a.Config.Embedding

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	switch cfg.Mode {
	case "gemini":
		provider, err := embeddings.NewGeminiProvider(
			context.Background(), cfg.GoogleAPIKey, cfg.Model, cfg.Dimension, timeout, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Gemini embedding provider: %w", err)
		}
		a.EmbeddingService = embeddings.NewService(provider, cfg.Dimension, cfg.RatePerSecond, cfg.CacheSize, a.Logger)
	default:
		a.EmbeddingService = embeddings.NewService(
			embeddings.NewOfflineProvider(cfg.Dimension), cfg.Dimension, 0, cfg.CacheSize, a.Logger)
	}

	a.Logger.Debug().
		Str("mode", cfg.Mode).
		Str("model", a.EmbeddingService.ModelName()).
		Int("dimension", cfg.Dimension).
		Msg("Embedding service initialized")
	return nil
}

// initLLM initializes the Claude service when enabled. Failure leaves the
// service nil so queries run without answer synthesis.
func (a *App) initLLM() {
	if !a.Config.Claude.Enabled {
		a.Logger.Debug().Msg("Answer synthesis disabled by configuration")
		return
	}

	svc, err := llm.NewClaudeService(&a.Config.Claude, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to initialize Claude service - answer synthesis will be unavailable")
		a.Logger.Info().Msg("To enable synthesis, set ANTHROPIC_API_KEY or claude.api_key in config")
		return
	}

	if err := svc.HealthCheck(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("Claude service health check failed - answer synthesis disabled")
		return
	}

	a.LLMService = svc
	a.Logger.Debug().Str("model", svc.ModelName()).Msg("Claude service initialized and health check passed")
}

func (a *App) initPipeline(cat *catalog.Catalog) {
	cfg := a.Config.Pipeline

	stageTimeout, err := a.Config.StageTimeout()
	if err != nil {
		stageTimeout = 30 * time.Second
	}

	a.Pipeline = pipeline.NewService(
		normalize.NewService(cfg.MinContentLength, a.Logger),
		a.EmbeddingService,
		dedup.NewService(
			a.StorageManager.VectorStorage(),
			a.StorageManager.ClusterStorage(),
			cfg.DedupThreshold,
			cfg.DedupNeighbors,
			cfg.ReviewBand,
			a.Logger,
		),
		entities.NewService(cat, a.Logger),
		impact.NewService(cat, a.Logger),
		sentiment.NewService(cfg.MinContentLength, a.Logger),
		a.StorageManager,
		pipeline.Options{
			StageTimeout: stageTimeout,
			Retries:      cfg.StorageRetries,
			RetryBackoff: a.Config.RetryBackoff(),
			Concurrency:  cfg.Concurrency,
		},
		a.Logger,
	)
	a.Logger.Debug().
		Float64("dedup_threshold", cfg.DedupThreshold).
		Int("concurrency", cfg.Concurrency).
		Msg("Ingestion pipeline initialized")
}

func (a *App) initQueryEngine(cat *catalog.Catalog) {
	var synthesizer *query.Synthesizer
	if a.LLMService != nil {
		synthesizer = query.NewSynthesizer(a.LLMService, a.Config.Query.SynthesisTopK, a.Logger)
	}

	a.QueryEngine = query.NewEngine(
		entities.NewService(cat, a.Logger),
		cat,
		a.EmbeddingService,
		a.StorageManager,
		synthesizer,
		query.Options{
			DefaultLimit:    a.Config.Query.DefaultLimit,
			CandidateFactor: a.Config.Query.CandidateFactor,
			SynthesisTopK:   a.Config.Query.SynthesisTopK,
		},
		a.Logger,
	)
	a.Logger.Debug().Msg("Query engine initialized")
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
