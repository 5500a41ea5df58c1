// Package pipeline orchestrates ingestion: normalize, dedup, entity
// extraction, impact scoring, sentiment, and indexing run in sequence for one
// article, with a worker pool fanning out across articles. Normalizer and
// deduplicator failures are fail-closed; enrichment stages are fail-open;
// storage and embedding dependencies retry with backoff before surfacing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/common"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/dedup"
	"github.com/ternarybob/nuntius/internal/services/entities"
	"github.com/ternarybob/nuntius/internal/services/impact"
	"github.com/ternarybob/nuntius/internal/services/normalize"
	"github.com/ternarybob/nuntius/internal/services/sentiment"
)

// Options bound stage execution and dependency retries.
type Options struct {
	StageTimeout time.Duration
	Retries      int
	RetryBackoff time.Duration
	Concurrency  int
}

// Service runs the ingestion pipeline.
type Service struct {
	normalizer *normalize.Service
	embeddings interfaces.EmbeddingService
	dedup      *dedup.Service
	entities   *entities.Service
	impact     *impact.Service
	sentiment  *sentiment.Service
	storage    interfaces.StorageManager
	opts       Options
	logger     arbor.ILogger
}

// NewService wires the pipeline stages together.
func NewService(
	normalizer *normalize.Service,
	embeddings interfaces.EmbeddingService,
	dedupService *dedup.Service,
	entityService *entities.Service,
	impactService *impact.Service,
	sentimentService *sentiment.Service,
	storage interfaces.StorageManager,
	opts Options,
	logger arbor.ILogger,
) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 30 * time.Second
	}
	return &Service{
		normalizer: normalizer,
		embeddings: embeddings,
		dedup:      dedupService,
		entities:   entityService,
		impact:     impactService,
		sentiment:  sentimentService,
		storage:    storage,
		opts:       opts,
		logger:     logger,
	}
}

// Ingest runs one article through the full pipeline and returns the tri-state
// outcome: stored as unique, linked as duplicate, or an error. No record is
// created when normalization or deduplication fails.
func (s *Service) Ingest(ctx context.Context, raw *models.RawArticle) (*models.IngestOutcome, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: raw article is nil", models.ErrInvalidInput)
	}

	content, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	article := &models.Article{
		ID:                common.NewArticleID(),
		Title:             raw.Title,
		NormalizedContent: content,
		Source:            raw.Source,
		URL:               raw.URL,
		PublishedAt:       raw.PublishedAt,
		IngestedAt:        now,
	}
	if article.PublishedAt.IsZero() {
		article.PublishedAt = now
	}

	var embedding []float32
	err = s.withRetry(ctx, "embedding", func(stageCtx context.Context) error {
		var embedErr error
		embedding, embedErr = s.embeddings.GenerateEmbedding(stageCtx, content)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion deferred for %s: %w", article.ID, err)
	}

	stageCtx, cancel := context.WithTimeout(ctx, s.opts.StageTimeout)
	result, err := s.dedup.Resolve(stageCtx, article, embedding, content)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ingestion deferred for %s: %w", article.ID, err)
	}

	if result.IsDuplicate {
		// Duplicates terminate before enrichment but still get a
		// duplicate-linked structured record.
		if err := s.indexStructured(ctx, article); err != nil {
			return nil, err
		}
		return &models.IngestOutcome{
			ArticleID:   article.ID,
			IsDuplicate: true,
			ClusterID:   result.ClusterID,
			Similarity:  result.Similarity,
		}, nil
	}

	s.enrich(article)

	if err := s.index(ctx, article, embedding, content); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("article_id", article.ID).
		Str("source", article.Source).
		Int("entities", len(article.Entities)).
		Int("impacts", len(article.StockImpacts)).
		Str("sentiment", string(article.SentimentLabel)).
		Msg("Article ingested")

	return &models.IngestOutcome{
		ArticleID: article.ID,
		ClusterID: result.ClusterID,
	}, nil
}

// enrich runs the fail-open stages. A panic in extraction or classification
// is logged as an enrichment failure and the article keeps safe defaults.
func (s *Service) enrich(article *models.Article) {
	func() {
		defer s.recoverEnrichment(article, "entity_extraction")
		extraction := s.entities.Extract(article.NormalizedContent)
		article.Entities = extraction.All()
		article.StockImpacts = s.impact.Score(extraction)
	}()

	func() {
		defer s.recoverEnrichment(article, "sentiment")
		result := s.sentiment.Classify(article.NormalizedContent)
		article.SentimentLabel = result.Label
		article.SentimentScore = result.Score
		article.LowConfidence = result.LowConfidence
	}()
}

func (s *Service) recoverEnrichment(article *models.Article, stage string) {
	r := recover()
	if r == nil {
		return
	}
	err := &models.EnrichmentError{Stage: stage, Err: fmt.Errorf("%v", r)}
	s.logger.Error().Err(err).Str("article_id", article.ID).Msg("Enrichment stage failed, continuing with defaults")

	if stage == "sentiment" {
		fallback := sentiment.Neutral()
		article.SentimentLabel = fallback.Label
		article.SentimentScore = fallback.Score
		article.LowConfidence = fallback.LowConfidence
	}
}

// index writes both stores. A single-half failure surfaces as a
// PartialStorageError after per-half retries, so callers never re-run the
// whole pipeline for a half-written article.
func (s *Service) index(ctx context.Context, article *models.Article, embedding []float32, document string) error {
	vectorErr := s.withRetry(ctx, "vector_store", func(stageCtx context.Context) error {
		return s.storage.VectorStorage().Upsert(stageCtx, article.ID, embedding, document, article)
	})

	structuredErr := s.withRetry(ctx, "structured_store", func(_ context.Context) error {
		return s.storage.ArticleStorage().UpsertArticle(article)
	})

	switch {
	case vectorErr == nil && structuredErr == nil:
		return nil
	case vectorErr != nil && structuredErr != nil:
		return fmt.Errorf("indexing failed for %s: %w", article.ID, vectorErr)
	case vectorErr != nil:
		return &models.PartialStorageError{StructuredStored: true, Err: vectorErr}
	default:
		return &models.PartialStorageError{VectorStored: true, Err: structuredErr}
	}
}

// indexStructured writes only the structured record (vector already written
// during dedup resolution).
func (s *Service) indexStructured(ctx context.Context, article *models.Article) error {
	err := s.withRetry(ctx, "structured_store", func(_ context.Context) error {
		return s.storage.ArticleStorage().UpsertArticle(article)
	})
	if err != nil {
		return &models.PartialStorageError{VectorStored: true, Err: err}
	}
	return nil
}

// withRetry runs fn under the stage timeout, retrying retryable failures with
// linear backoff. Non-retryable errors surface immediately.
func (s *Service) withRetry(ctx context.Context, stage string, fn func(context.Context) error) error {
	var lastErr error
	attempts := s.opts.Retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, s.opts.StageTimeout)
		err := fn(stageCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !models.IsRetryable(err) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}

		s.logger.Warn().
			Err(err).
			Str("stage", stage).
			Int("attempt", attempt).
			Msg("Stage failed, retrying")

		select {
		case <-time.After(s.opts.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", models.ErrProviderTimeout, ctx.Err())
		}
	}

	return lastErr
}

// BatchResult pairs one raw article's position with its outcome.
type BatchResult struct {
	Index   int
	Outcome *models.IngestOutcome
	Err     error
}

// IngestBatch processes articles through a bounded worker pool. Results are
// returned in input order; each article succeeds or fails independently.
func (s *Service) IngestBatch(ctx context.Context, raws []*models.RawArticle) []BatchResult {
	results := make([]BatchResult, len(raws))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcome, err := s.Ingest(ctx, raws[i])
				results[i] = BatchResult{Index: i, Outcome: outcome, Err: err}
			}
		}()
	}

	for i := range raws {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
