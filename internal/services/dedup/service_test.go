package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
)

// fakeVectors is an in-memory VectorStorage with scripted similarity results.
type fakeVectors struct {
	matches   []interfaces.SimilarityMatch
	queryErr  error
	upsertErr error
	upserts   map[string][]float32
	deleted   []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{upserts: make(map[string][]float32)}
}

func (f *fakeVectors) Upsert(_ context.Context, id string, embedding []float32, _ string, _ *models.Article) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts[id] = embedding
	return nil
}

func (f *fakeVectors) QuerySimilar(_ context.Context, _ []float32, _ int, _ *interfaces.VectorFilters) ([]interfaces.SimilarityMatch, error) {
	return f.matches, f.queryErr
}

func (f *fakeVectors) Delete(_ context.Context, id string) error {
	delete(f.upserts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeVectors) Count(_ context.Context) (int, error) { return len(f.upserts), nil }

// fakeClusters records cluster operations.
type fakeClusters struct {
	created      []string
	members      map[string][]string
	createErr    error
	addMemberErr error
}

func newFakeClusters() *fakeClusters {
	return &fakeClusters{members: make(map[string][]string)}
}

func (f *fakeClusters) CreateCluster(c *models.DedupCluster) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, c.ID)
	f.members[c.ID] = append([]string{}, c.Sources...)
	return nil
}

func (f *fakeClusters) GetCluster(id string) (*models.DedupCluster, error) { return nil, nil }

func (f *fakeClusters) AddMember(clusterID, source string) error {
	if f.addMemberErr != nil {
		return f.addMemberErr
	}
	if _, ok := f.members[clusterID]; !ok {
		return errors.New("cluster not found: " + clusterID)
	}
	f.members[clusterID] = append(f.members[clusterID], source)
	return nil
}

func (f *fakeClusters) GetStats() (*models.ClusterStats, error) { return &models.ClusterStats{}, nil }

func newTestService(vectors *fakeVectors, clusters *fakeClusters) *Service {
	return NewService(vectors, clusters, 0.70, 5, 0.15, arbor.NewLogger())
}

func testArticle(id string) *models.Article {
	return &models.Article{ID: id, Title: "RBI raises repo rate", Source: "feed-a"}
}

func TestResolveUniqueCreatesCluster(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	svc := newTestService(vectors, clusters)

	article := testArticle("article_1")
	result, err := svc.Resolve(context.Background(), article, []float32{1, 0}, "doc")
	require.NoError(t, err)

	assert.False(t, result.IsDuplicate)
	assert.Equal(t, "article_1", result.ClusterID)
	assert.False(t, article.IsDuplicate)
	assert.Equal(t, "article_1", article.ClusterID, "representative anchors its own cluster")
	assert.Equal(t, []string{"article_1"}, clusters.created)
	assert.Contains(t, vectors.upserts, "article_1")
}

func TestResolveDuplicateAtThreshold(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	clusters.members["article_rep"] = []string{"feed-a"}

	// Similarity exactly at the threshold is a duplicate.
	vectors.matches = []interfaces.SimilarityMatch{
		{ArticleID: "article_rep", Similarity: 0.70, ClusterID: "article_rep"},
	}
	svc := newTestService(vectors, clusters)

	article := testArticle("article_2")
	result, err := svc.Resolve(context.Background(), article, []float32{1, 0}, "doc")
	require.NoError(t, err)

	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "article_rep", result.ClusterID)
	assert.True(t, article.IsDuplicate)
	assert.Equal(t, "article_rep", article.ClusterID)
	assert.Empty(t, clusters.created, "duplicates never create clusters")
	assert.Equal(t, []string{"feed-a", "feed-a"}, clusters.members["article_rep"])
	assert.Contains(t, vectors.upserts, "article_2", "duplicates are still stored for future matching")
}

func TestResolveBelowThresholdIsUnique(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	vectors.matches = []interfaces.SimilarityMatch{
		{ArticleID: "article_rep", Similarity: 0.699, ClusterID: "article_rep"},
	}
	svc := newTestService(vectors, clusters)

	article := testArticle("article_2")
	result, err := svc.Resolve(context.Background(), article, []float32{1, 0}, "doc")
	require.NoError(t, err)

	assert.False(t, result.IsDuplicate)
	assert.True(t, result.NeedsReview, "just below threshold lands in the review band")
	assert.Equal(t, []string{"article_2"}, clusters.created)
}

func TestResolveBelowReviewBand(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	vectors.matches = []interfaces.SimilarityMatch{
		{ArticleID: "article_rep", Similarity: 0.40, ClusterID: "article_rep"},
	}
	svc := newTestService(vectors, clusters)

	result, err := svc.Resolve(context.Background(), testArticle("article_2"), []float32{1, 0}, "doc")
	require.NoError(t, err)

	assert.False(t, result.IsDuplicate)
	assert.False(t, result.NeedsReview)
}

func TestResolveFailsClosedOnQueryError(t *testing.T) {
	vectors := newFakeVectors()
	vectors.queryErr = models.ErrDependencyUnavailable
	clusters := newFakeClusters()
	svc := newTestService(vectors, clusters)

	article := testArticle("article_1")
	_, err := svc.Resolve(context.Background(), article, []float32{1, 0}, "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)

	// Fail closed: nothing marked, nothing stored.
	assert.Empty(t, clusters.created)
	assert.Empty(t, vectors.upserts)
	assert.Empty(t, article.ClusterID)
}

func TestResolveFailsClosedOnVectorWriteFailure(t *testing.T) {
	vectors := newFakeVectors()
	vectors.upsertErr = models.ErrDependencyUnavailable
	clusters := newFakeClusters()
	svc := newTestService(vectors, clusters)

	_, err := svc.Resolve(context.Background(), testArticle("article_1"), []float32{1, 0}, "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)

	// A failed vector write must not leave a cluster record behind.
	assert.Empty(t, clusters.created)
	assert.Empty(t, clusters.members)
	assert.Empty(t, vectors.upserts)
}

func TestResolveRollsBackVectorOnClusterCreateFailure(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	clusters.createErr = models.ErrDependencyUnavailable
	svc := newTestService(vectors, clusters)

	_, err := svc.Resolve(context.Background(), testArticle("article_1"), []float32{1, 0}, "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)

	assert.Equal(t, []string{"article_1"}, vectors.deleted, "vector rolled back after cluster write failure")
	assert.Empty(t, vectors.upserts)
	assert.Empty(t, clusters.created)
}

func TestResolveRollsBackVectorOnAddMemberFailure(t *testing.T) {
	vectors := newFakeVectors()
	vectors.matches = []interfaces.SimilarityMatch{
		{ArticleID: "article_rep", Similarity: 0.95, ClusterID: "article_rep"},
	}
	clusters := newFakeClusters()
	clusters.members["article_rep"] = []string{"feed-a"}
	clusters.addMemberErr = models.ErrDependencyUnavailable
	svc := newTestService(vectors, clusters)

	_, err := svc.Resolve(context.Background(), testArticle("article_2"), []float32{1, 0}, "doc")
	require.Error(t, err)

	assert.Equal(t, []string{"article_2"}, vectors.deleted)
	assert.Equal(t, []string{"feed-a"}, clusters.members["article_rep"], "membership unchanged on failure")
}

func TestResolveDuplicateWithMissingClusterIDFallsBack(t *testing.T) {
	vectors := newFakeVectors()
	clusters := newFakeClusters()
	clusters.members["article_rep"] = []string{"feed-a"}
	vectors.matches = []interfaces.SimilarityMatch{
		{ArticleID: "article_rep", Similarity: 0.95},
	}
	svc := newTestService(vectors, clusters)

	result, err := svc.Resolve(context.Background(), testArticle("article_2"), []float32{1, 0}, "doc")
	require.NoError(t, err)
	assert.Equal(t, "article_rep", result.ClusterID, "match without cluster id falls back to the match's article id")
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	svc := newTestService(newFakeVectors(), newFakeClusters())

	_, err := svc.Resolve(context.Background(), nil, []float32{1}, "doc")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Resolve(context.Background(), testArticle("article_1"), nil, "doc")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestBucketForDeterministic(t *testing.T) {
	a := bucketFor([]float32{0.1, 0.2, 0.3})
	b := bucketFor([]float32{0.1, 0.2, 0.3})
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, bucketCount)
}
