package models

import "time"

// QueryIntent classifies a query from the entity types it contains.
type QueryIntent string

const (
	IntentCompanyQuery   QueryIntent = "company_query"
	IntentSectorQuery    QueryIntent = "sector_query"
	IntentRegulatorQuery QueryIntent = "regulator_query"
	IntentThemeQuery     QueryIntent = "theme_query"
)

// QueryEntity is a detected query entity together with its expansion set
// (ticker aliases, sector, peers, regulated sectors).
type QueryEntity struct {
	Type     EntityType `json:"type"`
	Value    string     `json:"value"`
	Expanded []string   `json:"expanded,omitempty"`
}

// QueryAnalysis explains how a query was interpreted.
type QueryAnalysis struct {
	OriginalQuery    string        `json:"original_query"`
	Intent           QueryIntent   `json:"intent"`
	DetectedEntities []QueryEntity `json:"detected_entities"`
	Sectors          []string      `json:"sectors,omitempty"`
}

// QueryResult is an ephemeral, query-time ranking entry. RelevanceScore sums
// multiple weighted terms and is unbounded above; clamp for display only.
type QueryResult struct {
	Article        *Article `json:"article"`
	RelevanceScore float64  `json:"relevance_score"`
	MatchReason    string   `json:"match_reason"`
	Highlights     []string `json:"highlights,omitempty"`
}

// SynthesizedAnswer is the optional natural-language summary produced by the
// external answer-synthesis collaborator. Its absence is never an error.
type SynthesizedAnswer struct {
	Answer      string        `json:"answer"`
	SourcesUsed []string      `json:"sources_used,omitempty"`
	Latency     time.Duration `json:"latency_ms"`
	Model       string        `json:"model,omitempty"`
}

// QueryResponse is the full query entrypoint payload.
type QueryResponse struct {
	Query            string             `json:"query"`
	Analysis         QueryAnalysis      `json:"analysis"`
	Results          []QueryResult      `json:"results"`
	TotalCount       int                `json:"total_count"`
	SemanticDegraded bool               `json:"semantic_degraded,omitempty"`
	Synthesized      *SynthesizedAnswer `json:"synthesized_answer,omitempty"`
	ExecutionTime    time.Duration      `json:"execution_time_ms"`
}
