package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// GeminiProvider generates embeddings via the Gemini API.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
	timeout   time.Duration
	logger    arbor.ILogger
}

// NewGeminiProvider creates a Gemini-backed embedding provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string, dimension int, timeout time.Duration, logger arbor.ILogger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google API key is required for gemini embedding mode (set via NUNTIUS_EMBEDDING_GOOGLE_API_KEY or embedding.google_api_key in config)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info().
		Str("model", model).
		Int("dimension", dimension).
		Dur("timeout", timeout).
		Msg("Gemini embedding provider initialized")

	return &GeminiProvider{
		client:    client,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Embed generates an embedding with the configured output dimensionality.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	outputDim := int32(p.dimension)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := p.client.Models.EmbedContent(timeoutCtx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != p.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", p.dimension, len(embedding))
	}

	return embedding, nil
}

// ModelName identifies the remote model.
func (p *GeminiProvider) ModelName() string { return p.model }

// HealthCheck exercises the embedding model with a lightweight probe.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	embedding, err := p.Embed(probeCtx, "health check probe")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("embedding probe returned empty vector")
	}

	return nil
}
