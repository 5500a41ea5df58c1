package interfaces

import "context"

// EmbeddingService converts text to a fixed-dimension dense vector. The
// dimension is constant across calls so cosine comparisons stay valid.
type EmbeddingService interface {
	// GenerateEmbedding returns the embedding for raw text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateQueryEmbedding returns the embedding for a search query.
	GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error)

	// ModelName identifies the underlying model.
	ModelName() string

	// Dimension is the fixed output vector length.
	Dimension() int

	// IsAvailable reports whether the provider can serve requests.
	IsAvailable(ctx context.Context) bool
}
