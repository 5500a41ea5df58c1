package models

import (
	"time"
)

// EntityType classifies an extracted mention.
type EntityType string

const (
	EntityTypeCompany   EntityType = "company"
	EntityTypeSector    EntityType = "sector"
	EntityTypeRegulator EntityType = "regulator"
	EntityTypeEvent     EntityType = "event"
)

// ImpactType classifies how an article affects a security.
type ImpactType string

const (
	ImpactTypeDirect      ImpactType = "direct"
	ImpactTypeSector      ImpactType = "sector"
	ImpactTypeRegulatory  ImpactType = "regulatory"
	ImpactTypeSupplyChain ImpactType = "supply_chain"
)

// Priority returns the sort priority for an impact type (lower sorts first).
// Direct impacts always rank ahead of inferred impacts at equal confidence.
func (t ImpactType) Priority() int {
	switch t {
	case ImpactTypeDirect:
		return 0
	case ImpactTypeSector:
		return 1
	case ImpactTypeRegulatory:
		return 2
	case ImpactTypeSupplyChain:
		return 3
	default:
		return 4
	}
}

// SentimentLabel is the three-way financial sentiment classification.
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "bullish"
	SentimentBearish SentimentLabel = "bearish"
	SentimentNeutral SentimentLabel = "neutral"
	SentimentUnset   SentimentLabel = ""
)

// Entity is a typed mention extracted from an article. Entities are owned by
// their article and never shared between records.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	SpanStart  int        `json:"span_start,omitempty"`
	SpanEnd    int        `json:"span_end,omitempty"`
}

// StockImpact is a scored relationship between an article and a security.
// Within one article at most one entry exists per (StockSymbol, ImpactType).
type StockImpact struct {
	StockSymbol string     `json:"stock_symbol"`
	CompanyName string     `json:"company_name"`
	ImpactType  ImpactType `json:"impact_type"`
	Confidence  float64    `json:"confidence"`
	Reasoning   string     `json:"reasoning"`
}

// Article is a fully processed news record. Fields are populated incrementally
// by the pipeline stages and the record is immutable once stored; re-ingestion
// of the same logical event creates a new duplicate-linked record.
type Article struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	NormalizedContent string         `json:"normalized_content"`
	Source            string         `json:"source"`
	URL               string         `json:"url,omitempty"`
	PublishedAt       time.Time      `json:"published_at"`
	IngestedAt        time.Time      `json:"ingested_at"`
	IsDuplicate       bool           `json:"is_duplicate"`
	ClusterID         string         `json:"cluster_id,omitempty"`
	SentimentLabel    SentimentLabel `json:"sentiment_label,omitempty"`
	SentimentScore    float64        `json:"sentiment_score"`
	LowConfidence     bool           `json:"low_confidence,omitempty"`
	Entities          []Entity       `json:"entities,omitempty"`
	StockImpacts      []StockImpact  `json:"stock_impacts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntitiesOfType filters the article's entities by type.
func (a *Article) EntitiesOfType(t EntityType) []Entity {
	var out []Entity
	for _, e := range a.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// RawArticle is the ingestion entrypoint payload, before normalization.
type RawArticle struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// DedupCluster is a logical event group: one representative article plus zero
// or more duplicate-linked members. Clusters are append-only and never deleted.
// A representative's ClusterID equals its own article ID.
type DedupCluster struct {
	ID                      string    `json:"id"`
	RepresentativeArticleID string    `json:"representative_article_id"`
	MemberCount             int       `json:"member_count"`
	Sources                 []string  `json:"sources,omitempty"`
	FirstSeen               time.Time `json:"first_seen"`
	LastUpdated             time.Time `json:"last_updated"`
}

// ClusterStats summarizes the corpus-wide deduplication state.
type ClusterStats struct {
	TotalClusters   int            `json:"total_clusters"`
	TotalDuplicates int            `json:"total_duplicates"`
	TotalArticles   int            `json:"total_articles"`
	DedupRate       float64        `json:"dedup_rate"`
	Sources         map[string]int `json:"sources,omitempty"`
}

// ArticleStats summarizes the stored corpus.
type ArticleStats struct {
	TotalArticles    int            `json:"total_articles"`
	ArticlesBySource map[string]int `json:"articles_by_source,omitempty"`
	ArticlesBySector map[string]int `json:"articles_by_sector,omitempty"`
	LastUpdated      time.Time      `json:"last_updated"`
}

// EntityExtractionResult groups extracted entities by type.
type EntityExtractionResult struct {
	Companies  []Entity `json:"companies,omitempty"`
	Sectors    []Entity `json:"sectors,omitempty"`
	Regulators []Entity `json:"regulators,omitempty"`
	Events     []Entity `json:"events,omitempty"`
}

// All returns every extracted entity in type order.
func (r *EntityExtractionResult) All() []Entity {
	out := make([]Entity, 0, len(r.Companies)+len(r.Sectors)+len(r.Regulators)+len(r.Events))
	out = append(out, r.Companies...)
	out = append(out, r.Sectors...)
	out = append(out, r.Regulators...)
	out = append(out, r.Events...)
	return out
}

// Empty reports whether extraction found nothing.
func (r *EntityExtractionResult) Empty() bool {
	return len(r.Companies) == 0 && len(r.Sectors) == 0 && len(r.Regulators) == 0 && len(r.Events) == 0
}

// SentimentResult is the output of the sentiment classifier.
type SentimentResult struct {
	Label         SentimentLabel     `json:"label"`
	Score         float64            `json:"score"`
	Distribution  map[string]float64 `json:"distribution,omitempty"`
	LowConfidence bool               `json:"low_confidence,omitempty"`
}

// IngestOutcome is the tri-state result returned to ingestion callers.
type IngestOutcome struct {
	ArticleID   string  `json:"article_id"`
	IsDuplicate bool    `json:"is_duplicate"`
	ClusterID   string  `json:"cluster_id"`
	Similarity  float64 `json:"similarity"`
}
