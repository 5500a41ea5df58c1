package interfaces

import (
	"context"

	"github.com/ternarybob/nuntius/internal/models"
)

// SimilarityMatch is one neighbor returned from a vector similarity query.
type SimilarityMatch struct {
	ArticleID  string
	Similarity float64
	ClusterID  string
	Sector     string
}

// VectorFilters narrows a similarity query to articles carrying the given
// metadata. Empty fields are ignored.
type VectorFilters struct {
	Sectors []string
	Source  string
}

// VectorStorage persists article embeddings for semantic retrieval. Upserts
// are atomic per article id: readers see either the full old record or the
// full new one, never a partial write.
type VectorStorage interface {
	Upsert(ctx context.Context, id string, embedding []float32, document string, article *models.Article) error
	QuerySimilar(ctx context.Context, embedding []float32, topN int, filters *VectorFilters) ([]SimilarityMatch, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// ArticleStorage is the structured store for filterable entity/sector queries.
// UpsertArticle overwrites any existing record with the same id.
type ArticleStorage interface {
	UpsertArticle(article *models.Article) error
	GetArticle(id string) (*models.Article, error)
	QueryByEntity(entityType models.EntityType, value string) ([]*models.Article, error)
	QueryBySector(sector string) ([]*models.Article, error)
	ListArticles(limit int) ([]*models.Article, error)
	CountArticles() (int, error)
	GetStats() (*models.ArticleStats, error)
}

// ClusterStorage tracks dedup clusters. Clusters are append-only.
type ClusterStorage interface {
	CreateCluster(cluster *models.DedupCluster) error
	GetCluster(id string) (*models.DedupCluster, error)
	AddMember(clusterID, source string) error
	GetStats() (*models.ClusterStats, error)
}

// StorageManager owns the store lifecycles and hands out the typed stores.
type StorageManager interface {
	VectorStorage() VectorStorage
	ArticleStorage() ArticleStorage
	ClusterStorage() ClusterStorage
	Close() error
}
