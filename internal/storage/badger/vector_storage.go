package badger

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// vectorRecord is the stored form of one article embedding plus the metadata
// needed for filtered similarity queries.
type vectorRecord struct {
	ID        string
	Embedding []float32
	Document  string
	ClusterID string
	Sectors   []string
	Source    string
}

// VectorStorage implements the VectorStorage interface for Badger. Similarity
// queries are an exhaustive cosine scan; corpus sizes here are bounded by the
// news ingestion rate, not web scale.
type VectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVectorStorage creates a new VectorStorage instance
func NewVectorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VectorStorage {
	return &VectorStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the embedding and its query metadata in one transaction, so a
// reader sees either the full old record or the full new one.
func (s *VectorStorage) Upsert(ctx context.Context, id string, embedding []float32, document string, article *models.Article) error {
	if id == "" {
		return fmt.Errorf("%w: vector record ID is required", models.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding is empty", models.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
	}

	record := &vectorRecord{
		ID:        id,
		Embedding: embedding,
		Document:  document,
	}
	if article != nil {
		record.ClusterID = article.ClusterID
		record.Source = article.Source
		for _, e := range article.EntitiesOfType(models.EntityTypeSector) {
			record.Sectors = append(record.Sectors, e.Value)
		}
	}

	if err := s.db.Store().Upsert(id, record); err != nil {
		return fmt.Errorf("%w: failed to save vector record: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

// QuerySimilar returns the topN nearest records by cosine similarity,
// most similar first. Filters narrow the candidate set before ranking.
func (s *VectorStorage) QuerySimilar(ctx context.Context, embedding []float32, topN int, filters *interfaces.VectorFilters) ([]interfaces.SimilarityMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is empty", models.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
	}

	var records []vectorRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to scan vector records: %v", models.ErrDependencyUnavailable, err)
	}

	matches := make([]interfaces.SimilarityMatch, 0, len(records))
	for i := range records {
		rec := &records[i]
		if !matchesFilters(rec, filters) {
			continue
		}
		sim, ok := cosineSimilarity(embedding, rec.Embedding)
		if !ok {
			continue
		}
		match := interfaces.SimilarityMatch{
			ArticleID:  rec.ID,
			Similarity: sim,
			ClusterID:  rec.ClusterID,
		}
		if len(rec.Sectors) > 0 {
			match.Sector = rec.Sectors[0]
		}
		matches = append(matches, match)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

// Delete removes a vector record. Deleting a missing record is not an error.
func (s *VectorStorage) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
	}
	if err := s.db.Store().Delete(id, &vectorRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete vector record: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *VectorStorage) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
	}
	count, err := s.db.Store().Count(&vectorRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count vector records: %w", err)
	}
	return int(count), nil
}

func matchesFilters(rec *vectorRecord, filters *interfaces.VectorFilters) bool {
	if filters == nil {
		return true
	}
	if filters.Source != "" && rec.Source != filters.Source {
		return false
	}
	if len(filters.Sectors) > 0 {
		found := false
		for _, want := range filters.Sectors {
			for _, have := range rec.Sectors {
				if have == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// cosineSimilarity returns the cosine of the angle between a and b. The
// second return is false when the vectors differ in length or either has
// zero magnitude.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
