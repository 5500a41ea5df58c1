package badger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArticleStorage implements the ArticleStorage interface for Badger
type ArticleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArticleStorage creates a new ArticleStorage instance
func NewArticleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArticleStorage {
	return &ArticleStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertArticle writes the full record, overwriting any existing article with
// the same id.
func (s *ArticleStorage) UpsertArticle(article *models.Article) error {
	if article.ID == "" {
		return fmt.Errorf("%w: article ID is required", models.ErrInvalidInput)
	}

	now := time.Now()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now

	if err := s.db.Store().Upsert(article.ID, article); err != nil {
		return fmt.Errorf("%w: failed to save article: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

// GetArticle returns the article by id, or nil when it does not exist.
func (s *ArticleStorage) GetArticle(id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Store().Get(id, &article); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &article, nil
}

// QueryByEntity returns articles carrying an extracted entity of the given
// type and value. Matching is case-insensitive on the entity value.
func (s *ArticleStorage) QueryByEntity(entityType models.EntityType, value string) ([]*models.Article, error) {
	want := strings.ToLower(strings.TrimSpace(value))

	var articles []models.Article
	err := s.db.Store().Find(&articles, badgerhold.Where("ID").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		article, ok := ra.Record().(*models.Article)
		if !ok {
			return false, nil
		}
		for _, e := range article.Entities {
			if e.Type == entityType && strings.ToLower(e.Value) == want {
				return true, nil
			}
		}
		return false, nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to query articles by entity: %w", err)
	}

	return toPointers(articles), nil
}

// QueryBySector returns articles tagged with the sector, either via an
// extracted sector entity or a sector-level stock impact reasoning tag.
func (s *ArticleStorage) QueryBySector(sector string) ([]*models.Article, error) {
	return s.QueryByEntity(models.EntityTypeSector, sector)
}

// ListArticles returns articles most recently ingested first. limit <= 0
// returns everything.
func (s *ArticleStorage) ListArticles(limit int) ([]*models.Article, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("IngestedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var articles []models.Article
	if err := s.db.Store().Find(&articles, query); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return toPointers(articles), nil
}

// CountArticles returns the total stored article count.
func (s *ArticleStorage) CountArticles() (int, error) {
	count, err := s.db.Store().Count(&models.Article{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return int(count), nil
}

// GetStats aggregates per-source and per-sector counts over the corpus.
func (s *ArticleStorage) GetStats() (*models.ArticleStats, error) {
	var articles []models.Article
	if err := s.db.Store().Find(&articles, nil); err != nil {
		return nil, fmt.Errorf("failed to load articles for stats: %w", err)
	}

	stats := &models.ArticleStats{
		TotalArticles:    len(articles),
		ArticlesBySource: make(map[string]int),
		ArticlesBySector: make(map[string]int),
		LastUpdated:      time.Now(),
	}

	for i := range articles {
		stats.ArticlesBySource[articles[i].Source]++
		for _, e := range articles[i].Entities {
			if e.Type == models.EntityTypeSector {
				stats.ArticlesBySector[e.Value]++
			}
		}
	}

	return stats, nil
}

func toPointers(articles []models.Article) []*models.Article {
	result := make([]*models.Article, len(articles))
	for i := range articles {
		result[i] = &articles[i]
	}
	return result
}
