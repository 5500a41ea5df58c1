package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/common"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/catalog"
	"github.com/ternarybob/nuntius/internal/services/dedup"
	"github.com/ternarybob/nuntius/internal/services/embeddings"
	"github.com/ternarybob/nuntius/internal/services/entities"
	"github.com/ternarybob/nuntius/internal/services/impact"
	"github.com/ternarybob/nuntius/internal/services/normalize"
	"github.com/ternarybob/nuntius/internal/services/sentiment"
	badgerstorage "github.com/ternarybob/nuntius/internal/storage/badger"
)

func newTestPipeline(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()

	cat, err := catalog.Load("")
	require.NoError(t, err)

	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	embedSvc := embeddings.NewService(embeddings.NewOfflineProvider(128), 128, 0, 64, logger)
	dedupSvc := dedup.NewService(storage.VectorStorage(), storage.ClusterStorage(), 0.70, 5, 0.15, logger)

	svc := NewService(
		normalize.NewService(50, logger),
		embedSvc,
		dedupSvc,
		entities.NewService(cat, logger),
		impact.NewService(cat, logger),
		sentiment.NewService(50, logger),
		storage,
		Options{StageTimeout: 10 * time.Second, Retries: 2, RetryBackoff: 10 * time.Millisecond, Concurrency: 4},
		logger,
	)
	return svc, storage
}

func rawArticle(title, content, source string) *models.RawArticle {
	return &models.RawArticle{
		Title:       title,
		Content:     content,
		Source:      source,
		PublishedAt: time.Now().Add(-2 * time.Hour),
	}
}

func TestIngestDirectImpactBullish(t *testing.T) {
	svc, storage := newTestPipeline(t)

	outcome, err := svc.Ingest(context.Background(), rawArticle(
		"HDFC Bank reports record quarterly profit, shares seen higher",
		"HDFC Bank reported a record quarterly profit with strong growth in advances and deposits.",
		"feed-x",
	))
	require.NoError(t, err)
	assert.False(t, outcome.IsDuplicate)

	article, err := storage.ArticleStorage().GetArticle(outcome.ArticleID)
	require.NoError(t, err)
	require.NotNil(t, article)

	companies := article.EntitiesOfType(models.EntityTypeCompany)
	require.NotEmpty(t, companies)
	assert.Equal(t, "HDFC Bank", companies[0].Value)

	var direct *models.StockImpact
	for i := range article.StockImpacts {
		if article.StockImpacts[i].ImpactType == models.ImpactTypeDirect {
			direct = &article.StockImpacts[i]
			break
		}
	}
	require.NotNil(t, direct)
	assert.Equal(t, "HDFCBANK", direct.StockSymbol)
	assert.Equal(t, 1.0, direct.Confidence)

	assert.Equal(t, models.SentimentBullish, article.SentimentLabel)
}

func TestIngestDuplicateLinksCluster(t *testing.T) {
	svc, storage := newTestPipeline(t)
	ctx := context.Background()

	title := "RBI raises repo rate by 50 basis points to tame inflation"
	content := "The Reserve Bank of India raised the repo rate citing persistent inflation pressure across the economy."

	first, err := svc.Ingest(ctx, rawArticle(title, content, "feed-a"))
	require.NoError(t, err)
	require.False(t, first.IsDuplicate)

	// Identical content from another source embeds identically.
	second, err := svc.Ingest(ctx, rawArticle(title, content, "feed-b"))
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ArticleID, second.ClusterID)
	assert.NotEqual(t, first.ArticleID, second.ArticleID, "duplicates get their own record")

	dup, err := storage.ArticleStorage().GetArticle(second.ArticleID)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.True(t, dup.IsDuplicate)
	assert.Empty(t, dup.Entities, "duplicates terminate before enrichment")

	cluster, err := storage.ClusterStorage().GetCluster(first.ArticleID)
	require.NoError(t, err)
	require.NotNil(t, cluster)
	assert.Equal(t, 2, cluster.MemberCount)
	assert.Contains(t, cluster.Sources, "feed-b")
}

func TestIngestDistinctArticlesStayUnique(t *testing.T) {
	svc, _ := newTestPipeline(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, rawArticle(
		"Tata Steel announces share buyback programme",
		"Tata Steel said its board approved a share buyback worth five thousand crore rupees.",
		"feed-a",
	))
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, rawArticle(
		"Infosys wins large cloud transformation deal",
		"Infosys signed a multi-year cloud and digital transformation agreement with a European bank.",
		"feed-a",
	))
	require.NoError(t, err)

	assert.False(t, first.IsDuplicate)
	assert.False(t, second.IsDuplicate)
	assert.NotEqual(t, first.ClusterID, second.ClusterID)
}

func TestIngestRegulatorOnlyArticle(t *testing.T) {
	svc, storage := newTestPipeline(t)

	outcome, err := svc.Ingest(context.Background(), rawArticle(
		"RBI announces revised prudential norms for lenders",
		"The central bank RBI published revised prudential norms effective from the next fiscal year.",
		"feed-x",
	))
	require.NoError(t, err)

	article, err := storage.ArticleStorage().GetArticle(outcome.ArticleID)
	require.NoError(t, err)
	require.NotNil(t, article)

	require.NotEmpty(t, article.StockImpacts)
	for _, imp := range article.StockImpacts {
		assert.NotEqual(t, models.ImpactTypeDirect, imp.ImpactType)
		if imp.ImpactType == models.ImpactTypeRegulatory {
			assert.GreaterOrEqual(t, imp.Confidence, 0.3)
			assert.LessOrEqual(t, imp.Confidence, 0.7)
		}
	}
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	svc, storage := newTestPipeline(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, rawArticle("", "some content that is long enough to pass the floor easily", "feed-a"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Ingest(ctx, rawArticle("Short", "tiny", "feed-a"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	// Fail-closed: nothing was stored.
	count, err := storage.ArticleStorage().CountArticles()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestBatchWorkerPool(t *testing.T) {
	svc, storage := newTestPipeline(t)

	headlines := [][2]string{
		{"Maruti Suzuki posts higher monthly vehicle sales", "Maruti Suzuki dispatched more vehicles to dealers last month on festive demand."},
		{"Sun Pharma receives approval for new drug launch", "Sun Pharma received regulatory approval to launch a new specialty medicine in overseas markets."},
		{"NTPC commissions additional solar power capacity", "NTPC commissioned additional grid connected solar capacity at two project sites."},
		{"Bharti Airtel expands 5g coverage to more cities", "Bharti Airtel switched on high speed mobile coverage across forty additional cities."},
		{"ITC reports steady growth in consumer business", "ITC said its branded consumer packaged goods portfolio grew steadily during the quarter."},
		{"JSW Steel raises output guidance for the year", "JSW Steel lifted its full year crude steel production guidance after a strong first half."},
		{"Asian Paints flags soft demand in urban markets", "Asian Paints noted subdued decorative paint demand in large urban markets this season."},
		{"Power Grid wins new transmission project bids", "Power Grid secured several interstate transmission projects under competitive bidding."},
	}

	raws := make([]*models.RawArticle, len(headlines))
	for i, h := range headlines {
		raws[i] = rawArticle(h[0], h[1], "feed-batch")
	}

	results := svc.IngestBatch(context.Background(), raws)
	require.Len(t, results, 8)

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		require.NoError(t, res.Err)
		require.NotNil(t, res.Outcome)
	}

	count, err := storage.ArticleStorage().CountArticles()
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestConcurrentIdenticalArticlesSingleCluster(t *testing.T) {
	svc, storage := newTestPipeline(t)

	title := "SEBI tightens disclosure norms for listed entities"
	content := "The markets regulator SEBI tightened disclosure norms for listed entities effective immediately."

	raws := make([]*models.RawArticle, 6)
	for i := range raws {
		raws[i] = rawArticle(title, content, fmt.Sprintf("feed-%d", i))
	}

	results := svc.IngestBatch(context.Background(), raws)

	uniques := 0
	for _, res := range results {
		require.NoError(t, res.Err)
		if !res.Outcome.IsDuplicate {
			uniques++
		}
	}
	assert.Equal(t, 1, uniques, "bucket locking admits exactly one representative")

	stats, err := storage.ClusterStorage().GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalClusters)
	assert.Equal(t, 5, stats.TotalDuplicates)
}
