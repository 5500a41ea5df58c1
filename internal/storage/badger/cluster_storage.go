package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ClusterStorage implements the ClusterStorage interface for Badger. Clusters
// are append-only: members accumulate, clusters are never deleted.
type ClusterStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClusterStorage creates a new ClusterStorage instance
func NewClusterStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClusterStorage {
	return &ClusterStorage{
		db:     db,
		logger: logger,
	}
}

// CreateCluster stores a new cluster. Creating an existing cluster id is an
// error; clusters are created exactly once for their representative.
func (s *ClusterStorage) CreateCluster(cluster *models.DedupCluster) error {
	if cluster.ID == "" {
		return fmt.Errorf("%w: cluster ID is required", models.ErrInvalidInput)
	}

	now := time.Now()
	if cluster.FirstSeen.IsZero() {
		cluster.FirstSeen = now
	}
	cluster.LastUpdated = now
	if cluster.MemberCount == 0 {
		cluster.MemberCount = 1
	}

	if err := s.db.Store().Insert(cluster.ID, cluster); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("cluster already exists: %s", cluster.ID)
		}
		return fmt.Errorf("%w: failed to create cluster: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

// GetCluster returns the cluster by id, or nil when it does not exist.
func (s *ClusterStorage) GetCluster(id string) (*models.DedupCluster, error) {
	var cluster models.DedupCluster
	if err := s.db.Store().Get(id, &cluster); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return &cluster, nil
}

// AddMember increments the member count and records the member's source.
func (s *ClusterStorage) AddMember(clusterID, source string) error {
	var cluster models.DedupCluster
	if err := s.db.Store().Get(clusterID, &cluster); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("cluster not found: %s", clusterID)
		}
		return fmt.Errorf("failed to load cluster: %w", err)
	}

	cluster.MemberCount++
	cluster.LastUpdated = time.Now()
	if source != "" {
		cluster.Sources = append(cluster.Sources, source)
	}

	if err := s.db.Store().Upsert(clusterID, &cluster); err != nil {
		return fmt.Errorf("%w: failed to update cluster: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

// GetStats aggregates cluster-level dedup statistics across the corpus.
func (s *ClusterStorage) GetStats() (*models.ClusterStats, error) {
	var clusters []models.DedupCluster
	if err := s.db.Store().Find(&clusters, nil); err != nil {
		return nil, fmt.Errorf("failed to load clusters for stats: %w", err)
	}

	stats := &models.ClusterStats{
		TotalClusters: len(clusters),
		Sources:       make(map[string]int),
	}

	for i := range clusters {
		stats.TotalArticles += clusters[i].MemberCount
		stats.TotalDuplicates += clusters[i].MemberCount - 1
		for _, src := range clusters[i].Sources {
			stats.Sources[src]++
		}
	}

	if stats.TotalArticles > 0 {
		stats.DedupRate = float64(stats.TotalDuplicates) / float64(stats.TotalArticles)
	}

	return stats, nil
}
