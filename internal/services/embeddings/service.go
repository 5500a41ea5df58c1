// Package embeddings converts article text and queries into fixed-dimension
// vectors. A rate-limited, cached wrapper fronts one of two providers: the
// Gemini API for production, or a deterministic offline hasher for development
// and tests.
package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
	"golang.org/x/time/rate"
)

// provider is the minimal surface the wrapper needs from a backend.
type provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	HealthCheck(ctx context.Context) error
}

// Service implements interfaces.EmbeddingService. It enforces the fixed
// dimension invariant, rate-limits provider calls, and caches vectors by
// content hash.
type Service struct {
	provider  provider
	dimension int
	limiter   *rate.Limiter
	cache     *vectorCache
	logger    arbor.ILogger
}

// NewService wraps a provider with rate limiting and caching. ratePerSecond
// <= 0 disables limiting; cacheSize <= 0 disables the cache.
func NewService(p provider, dimension int, ratePerSecond float64, cacheSize int, logger arbor.ILogger) *Service {
	s := &Service{
		provider:  p,
		dimension: dimension,
		logger:    logger,
	}
	if ratePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	if cacheSize > 0 {
		s.cache = newVectorCache(cacheSize)
	}
	return s
}

// GenerateEmbedding returns the embedding for raw text, serving from cache
// when the identical content was embedded before.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", models.ErrInvalidInput)
	}

	key := cacheKey(text)
	if vec, ok := s.cache.get(key); ok {
		s.logger.Debug().Str("model", s.provider.ModelName()).Msg("Embedding cache hit")
		return vec, nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter wait aborted: %v", models.ErrProviderTimeout, err)
		}
	}

	start := time.Now()
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrDependencyUnavailable, err)
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, expected %d",
			models.ErrDependencyUnavailable, len(vec), s.dimension)
	}

	s.cache.put(key, vec)

	s.logger.Debug().
		Str("model", s.provider.ModelName()).
		Int("text_length", len(text)).
		Int("embedding_dim", len(vec)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return vec, nil
}

// GenerateQueryEmbedding embeds a search query. Queries go through the same
// provider and dimension so cosine comparisons against stored article vectors
// stay valid.
func (s *Service) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return s.GenerateEmbedding(ctx, query)
}

// ModelName returns the underlying provider's model name.
func (s *Service) ModelName() string { return s.provider.ModelName() }

// Dimension returns the fixed output vector length.
func (s *Service) Dimension() int { return s.dimension }

// IsAvailable reports whether the provider can serve requests.
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.provider == nil {
		return false
	}
	if err := s.provider.HealthCheck(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Embedding provider not available")
		return false
	}
	return true
}
