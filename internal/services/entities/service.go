// Package entities extracts typed entities from article text and queries. A
// catalog-backed matcher handles known companies and regulators, a pattern
// recognizer handles financial events and off-catalog organizations, and the
// service layer reconciles the two and infers sectors.
package entities

import (
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/catalog"
)

// Sector inference confidences. Keyword hits are weaker than catalog company
// matches; company-derived sectors inherit the company confidence scaled
// down one step.
const (
	sectorKeywordConfidence = 0.8
	sectorInheritanceFactor = 0.9
)

// Service runs the recognizers and reconciles their output.
type Service struct {
	catalog     *catalog.Catalog
	recognizers []interfaces.EntityRecognizer
	logger      arbor.ILogger
}

// NewService creates an extraction service with the default recognizer set.
func NewService(cat *catalog.Catalog, logger arbor.ILogger) *Service {
	return &Service{
		catalog: cat,
		recognizers: []interfaces.EntityRecognizer{
			NewCatalogMatcher(cat),
			NewStatisticalRecognizer(),
		},
		logger: logger,
	}
}

// Extract returns all entities found in the text, grouped by type. When two
// recognizers find the same (type, value) pair the higher confidence wins.
// Extraction never fails; an article with no matches yields an empty result.
func (s *Service) Extract(text string) *models.EntityExtractionResult {
	merged := make(map[string]models.Entity)

	for _, rec := range s.recognizers {
		for _, e := range rec.Recognize(text) {
			key := string(e.Type) + ":" + strings.ToLower(e.Value)
			if existing, ok := merged[key]; ok && existing.Confidence >= e.Confidence {
				continue
			}
			merged[key] = e
		}
	}

	s.inferSectors(text, merged)

	result := &models.EntityExtractionResult{}
	for _, e := range merged {
		switch e.Type {
		case models.EntityTypeCompany:
			result.Companies = append(result.Companies, e)
		case models.EntityTypeSector:
			result.Sectors = append(result.Sectors, e)
		case models.EntityTypeRegulator:
			result.Regulators = append(result.Regulators, e)
		case models.EntityTypeEvent:
			result.Events = append(result.Events, e)
		}
	}

	sortEntities(result.Companies)
	sortEntities(result.Sectors)
	sortEntities(result.Regulators)
	sortEntities(result.Events)

	s.logger.Debug().
		Int("companies", len(result.Companies)).
		Int("sectors", len(result.Sectors)).
		Int("regulators", len(result.Regulators)).
		Int("events", len(result.Events)).
		Msg("Entity extraction completed")

	return result
}

// ExtractFromQuery extracts entities from a user query for context-aware
// expansion. Queries go through the same recognizers as articles.
func (s *Service) ExtractFromQuery(query string) *models.EntityExtractionResult {
	return s.Extract(query)
}

// inferSectors adds sector entities from two signals: catalog keyword hits in
// the text, and the sectors of matched catalog companies. Direct keyword
// hits and inherited sectors reconcile by higher confidence.
func (s *Service) inferSectors(text string, merged map[string]models.Entity) {
	lower := strings.ToLower(text)

	for _, sec := range s.catalog.Sectors() {
		for _, kw := range sec.Keywords {
			idx := indexWord(lower, strings.ToLower(kw))
			if idx < 0 {
				continue
			}
			addIfStronger(merged, models.Entity{
				Type:       models.EntityTypeSector,
				Value:      sec.Name,
				Confidence: sectorKeywordConfidence,
				SpanStart:  idx,
				SpanEnd:    idx + len(kw),
			})
			break
		}
	}

	// Collect first; adding to the map while ranging over it is undefined.
	var inherited []models.Entity
	for _, e := range merged {
		if e.Type != models.EntityTypeCompany {
			continue
		}
		co, ok := s.catalog.LookupCompany(e.Value)
		if !ok {
			continue
		}
		inherited = append(inherited, models.Entity{
			Type:       models.EntityTypeSector,
			Value:      co.Sector,
			Confidence: e.Confidence * sectorInheritanceFactor,
		})
	}
	for _, e := range inherited {
		addIfStronger(merged, e)
	}
}

func addIfStronger(merged map[string]models.Entity, e models.Entity) {
	key := string(e.Type) + ":" + strings.ToLower(e.Value)
	if existing, ok := merged[key]; ok && existing.Confidence >= e.Confidence {
		return
	}
	merged[key] = e
}

// indexWord finds kw in text at a word boundary, returning -1 when absent.
func indexWord(text, kw string) int {
	for start := 0; ; {
		idx := strings.Index(text[start:], kw)
		if idx < 0 {
			return -1
		}
		idx += start
		end := idx + len(kw)
		beforeOK := idx == 0 || !isWordChar(text[idx-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// sortEntities orders by confidence descending, then value for stability.
func sortEntities(entities []models.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return entities[i].Value < entities[j].Value
	})
}
