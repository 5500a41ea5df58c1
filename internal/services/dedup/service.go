// Package dedup detects near-duplicate articles by cosine similarity over
// embeddings and maintains the append-only cluster index. The check and the
// vector write happen under one per-bucket lock so two concurrent copies of
// the same story cannot both become cluster representatives.
package dedup

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
)

const bucketCount = 64

// Result is the outcome of one dedup resolution.
type Result struct {
	IsDuplicate      bool
	ClusterID        string
	RepresentativeID string
	Similarity       float64
	NeedsReview      bool
}

// Service resolves incoming articles against the existing corpus.
type Service struct {
	vectors    interfaces.VectorStorage
	clusters   interfaces.ClusterStorage
	threshold  float64
	neighbors  int
	reviewBand float64
	buckets    [bucketCount]sync.Mutex
	logger     arbor.ILogger
}

// NewService creates a dedup service. threshold is the inclusive similarity
// cutoff; neighbors is the top-N candidate count consulted per check;
// reviewBand is the width below threshold logged for manual review.
func NewService(vectors interfaces.VectorStorage, clusters interfaces.ClusterStorage, threshold float64, neighbors int, reviewBand float64, logger arbor.ILogger) *Service {
	return &Service{
		vectors:    vectors,
		clusters:   clusters,
		threshold:  threshold,
		neighbors:  neighbors,
		reviewBand: reviewBand,
		logger:     logger,
	}
}

// Resolve classifies the article as unique or duplicate, updates the cluster
// index, and writes the article's vector so later arrivals can match it. The
// article's IsDuplicate and ClusterID fields are set on return.
//
// Any storage or query failure fails closed: the article is neither marked
// unique nor stored, and the caller defers ingestion.
func (s *Service) Resolve(ctx context.Context, article *models.Article, embedding []float32, document string) (*Result, error) {
	if article == nil || article.ID == "" {
		return nil, fmt.Errorf("%w: article with ID is required", models.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding is required", models.ErrInvalidInput)
	}

	// Identical content embeds identically, so concurrent copies of one
	// story serialize on the same bucket.
	bucket := bucketFor(embedding)
	s.buckets[bucket].Lock()
	defer s.buckets[bucket].Unlock()

	matches, err := s.vectors.QuerySimilar(ctx, embedding, s.neighbors, nil)
	if err != nil {
		return nil, fmt.Errorf("dedup neighbor query failed: %w", err)
	}

	result := s.classify(article, matches)

	if result.IsDuplicate {
		article.IsDuplicate = true
		article.ClusterID = result.ClusterID
	} else {
		// A representative anchors its own cluster.
		article.IsDuplicate = false
		article.ClusterID = article.ID
		result.ClusterID = article.ID
		result.RepresentativeID = article.ID
	}

	// Vector first, cluster second: a failed vector write must leave no
	// cluster record behind, and a failed cluster write rolls the vector
	// back so fail-closed means nothing persisted.
	if err := s.vectors.Upsert(ctx, article.ID, embedding, document, article); err != nil {
		return nil, fmt.Errorf("failed to store vector for %s: %w", article.ID, err)
	}

	if result.IsDuplicate {
		if err := s.clusters.AddMember(result.ClusterID, article.Source); err != nil {
			s.rollbackVector(ctx, article.ID)
			return nil, fmt.Errorf("failed to link duplicate to cluster %s: %w", result.ClusterID, err)
		}
		s.logger.Info().
			Str("article_id", article.ID).
			Str("cluster_id", result.ClusterID).
			Float64("similarity", result.Similarity).
			Msg("Duplicate detected")
	} else {
		if err := s.clusters.CreateCluster(&models.DedupCluster{
			ID:                      article.ID,
			RepresentativeArticleID: article.ID,
			MemberCount:             1,
			Sources:                 []string{article.Source},
			FirstSeen:               time.Now(),
		}); err != nil {
			s.rollbackVector(ctx, article.ID)
			return nil, fmt.Errorf("failed to create cluster for %s: %w", article.ID, err)
		}
	}

	return result, nil
}

// rollbackVector removes the just-written vector after a cluster write
// failure. Best effort: a leftover vector without a cluster only widens the
// next duplicate check, it never corrupts cluster stats.
func (s *Service) rollbackVector(ctx context.Context, articleID string) {
	if err := s.vectors.Delete(ctx, articleID); err != nil {
		s.logger.Warn().Err(err).Str("article_id", articleID).Msg("Failed to roll back vector after cluster write failure")
	}
}

// classify applies the threshold to the nearest neighbor. Similarity exactly
// at the threshold counts as a duplicate.
func (s *Service) classify(article *models.Article, matches []interfaces.SimilarityMatch) *Result {
	result := &Result{}
	if len(matches) == 0 {
		return result
	}

	best := matches[0]
	result.Similarity = best.Similarity
	result.RepresentativeID = best.ArticleID

	if best.Similarity >= s.threshold {
		result.IsDuplicate = true
		result.ClusterID = best.ClusterID
		if result.ClusterID == "" {
			result.ClusterID = best.ArticleID
		}
		return result
	}

	if best.Similarity >= s.threshold-s.reviewBand {
		result.NeedsReview = true
		s.logger.Warn().
			Str("article_id", article.ID).
			Str("nearest_article_id", best.ArticleID).
			Float64("similarity", best.Similarity).
			Float64("threshold", s.threshold).
			Msg("Near-duplicate below threshold, flagged for review")
	}

	return result
}

func bucketFor(embedding []float32) int {
	h := fnv.New32a()
	buf := make([]byte, 4)
	for _, v := range embedding {
		bits := math.Float32bits(v)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf)
	}
	return int(h.Sum32() % bucketCount)
}
