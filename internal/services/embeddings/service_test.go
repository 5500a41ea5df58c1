package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
)

type countingProvider struct {
	inner *OfflineProvider
	calls int
	fail  error
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) ModelName() string                   { return "counting" }
func (p *countingProvider) HealthCheck(_ context.Context) error { return p.fail }

func newTestService(p provider, dim int) *Service {
	return NewService(p, dim, 0, 16, arbor.NewLogger())
}

func TestOfflineProviderDeterministic(t *testing.T) {
	p := NewOfflineProvider(64)

	a, err := p.Embed(context.Background(), "RBI raises repo rate by 50 basis points")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "RBI raises repo rate by 50 basis points")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must produce identical vectors")
	assert.Len(t, a, 64)
}

func TestOfflineProviderNormalized(t *testing.T) {
	p := NewOfflineProvider(64)

	vec, err := p.Embed(context.Background(), "HDFC Bank quarterly results beat estimates")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5, "vector must be L2-normalized")
}

func TestOfflineProviderDistinctTexts(t *testing.T) {
	p := NewOfflineProvider(64)

	a, err := p.Embed(context.Background(), "RBI raises repo rate")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "Tata Steel announces buyback")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestServiceRejectsEmptyText(t *testing.T) {
	svc := newTestService(NewOfflineProvider(64), 64)

	_, err := svc.GenerateEmbedding(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestServiceCachesByContent(t *testing.T) {
	counting := &countingProvider{inner: NewOfflineProvider(64)}
	svc := newTestService(counting, 64)

	text := "SEBI tightens disclosure norms for listed companies"
	first, err := svc.GenerateEmbedding(context.Background(), text)
	require.NoError(t, err)
	second, err := svc.GenerateEmbedding(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls, "second call must be served from cache")
}

func TestServiceDimensionMismatch(t *testing.T) {
	// Provider emits 32 dimensions but the service is configured for 64.
	svc := newTestService(NewOfflineProvider(32), 64)

	_, err := svc.GenerateEmbedding(context.Background(), "dimension mismatch probe")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
}

func TestServiceWrapsProviderFailure(t *testing.T) {
	counting := &countingProvider{inner: NewOfflineProvider(64), fail: errors.New("connection refused")}
	svc := newTestService(counting, 64)

	_, err := svc.GenerateEmbedding(context.Background(), "provider down probe")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
	assert.True(t, models.IsRetryable(err))
}

func TestServiceQueryEmbeddingSameSpace(t *testing.T) {
	svc := newTestService(NewOfflineProvider(64), 64)

	doc, err := svc.GenerateEmbedding(context.Background(), "banking sector outlook")
	require.NoError(t, err)
	query, err := svc.GenerateQueryEmbedding(context.Background(), "banking sector outlook")
	require.NoError(t, err)

	assert.Equal(t, doc, query, "queries and documents share one embedding space")
}

func TestVectorCacheEviction(t *testing.T) {
	cache := newVectorCache(2)

	cache.put("a", []float32{1})
	cache.put("b", []float32{2})
	cache.put("c", []float32{3})

	_, ok := cache.get("a")
	assert.False(t, ok, "oldest entry must be evicted at capacity")
	assert.Equal(t, 2, cache.len())

	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestServiceAvailability(t *testing.T) {
	svc := newTestService(NewOfflineProvider(64), 64)
	assert.True(t, svc.IsAvailable(context.Background()))

	down := &countingProvider{inner: NewOfflineProvider(64), fail: errors.New("unreachable")}
	svc = newTestService(down, 64)
	assert.False(t, svc.IsAvailable(context.Background()))
}
