// Package query serves free-text search over the indexed corpus. A query is
// analyzed with the same entity extractor used at ingestion, expanded through
// the catalog, retrieved through three strategies (semantic neighbors, exact
// entity filters, sector filters), and ranked under one blended score. Answer
// synthesis through the LLM collaborator is optional and never fails a query.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/interfaces"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/catalog"
	"github.com/ternarybob/nuntius/internal/services/entities"
)

// Ranking weights. The blended score sums weighted strategy signals; the
// duplicate penalty gives representatives a flat preference over
// duplicate-linked records that are otherwise tied.
const (
	semanticWeight   = 0.4
	entityWeight     = 0.3
	sectorWeight     = 0.15
	recencyWeight    = 0.2
	duplicatePenalty = 0.1

	maxHighlights = 3
)

// Options tunes retrieval breadth.
type Options struct {
	DefaultLimit    int
	CandidateFactor int
	SynthesisTopK   int
}

// Engine answers free-text queries against the stored corpus.
type Engine struct {
	entities    *entities.Service
	catalog     *catalog.Catalog
	embeddings  interfaces.EmbeddingService
	storage     interfaces.StorageManager
	synthesizer *Synthesizer
	opts        Options
	logger      arbor.ILogger
}

// NewEngine wires the query engine. The synthesizer may be nil; queries then
// return retrieval results without a synthesized answer.
func NewEngine(
	entityService *entities.Service,
	cat *catalog.Catalog,
	embeddings interfaces.EmbeddingService,
	storage interfaces.StorageManager,
	synthesizer *Synthesizer,
	opts Options,
	logger arbor.ILogger,
) *Engine {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = 2
	}
	return &Engine{
		entities:    entityService,
		catalog:     cat,
		embeddings:  embeddings,
		storage:     storage,
		synthesizer: synthesizer,
		opts:        opts,
		logger:      logger,
	}
}

// candidate accumulates per-article signals across retrieval strategies.
type candidate struct {
	article     *models.Article
	semantic    float64
	entityMatch bool
	sectorMatch bool
	strategies  []string
}

// Search analyzes the query, runs multi-strategy retrieval, and returns
// ranked results. The vector store being unreachable degrades the response to
// filter-only results rather than failing it.
func (e *Engine) Search(ctx context.Context, queryText string, limit int) (*models.QueryResponse, error) {
	start := time.Now()

	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("%w: query text is empty", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	analysis := e.analyze(queryText)

	candidates := make(map[string]*candidate)
	degraded := e.retrieveSemantic(ctx, queryText, limit, candidates)
	e.retrieveByEntities(analysis, candidates)
	e.retrieveBySectors(analysis, candidates)

	results := e.rank(candidates, analysis, limit)

	response := &models.QueryResponse{
		Query:            queryText,
		Analysis:         analysis,
		Results:          results,
		TotalCount:       len(results),
		SemanticDegraded: degraded,
	}

	if e.synthesizer != nil {
		response.Synthesized = e.synthesizer.Synthesize(ctx, queryText, results)
	}

	response.ExecutionTime = time.Since(start)

	e.logger.Info().
		Str("query", queryText).
		Str("intent", string(analysis.Intent)).
		Int("results", len(results)).
		Bool("semantic_degraded", degraded).
		Msg("Query served")

	return response, nil
}

// analyze detects entities with the ingestion extractor, expands each through
// the catalog, and classifies intent from the detected entity types.
func (e *Engine) analyze(queryText string) models.QueryAnalysis {
	extraction := e.entities.ExtractFromQuery(queryText)

	analysis := models.QueryAnalysis{
		OriginalQuery: queryText,
		Intent:        models.IntentThemeQuery,
	}

	sectors := make(map[string]struct{})

	for _, ent := range extraction.Companies {
		qe := models.QueryEntity{Type: models.EntityTypeCompany, Value: ent.Value}
		if co, ok := e.catalog.LookupCompany(ent.Value); ok {
			qe.Expanded = e.expandCompany(co)
			sectors[co.Sector] = struct{}{}
		}
		analysis.DetectedEntities = append(analysis.DetectedEntities, qe)
	}

	for _, ent := range extraction.Sectors {
		qe := models.QueryEntity{Type: models.EntityTypeSector, Value: ent.Value}
		if sec, ok := e.catalog.LookupSector(ent.Value); ok {
			qe.Expanded = e.expandSector(sec.Name)
			sectors[sec.Name] = struct{}{}
		}
		analysis.DetectedEntities = append(analysis.DetectedEntities, qe)
	}

	for _, ent := range extraction.Regulators {
		qe := models.QueryEntity{Type: models.EntityTypeRegulator, Value: ent.Value}
		if reg, ok := e.catalog.LookupRegulator(ent.Value); ok {
			qe.Expanded = e.expandRegulator(reg)
			for _, s := range reg.Sectors {
				sectors[s] = struct{}{}
			}
		}
		analysis.DetectedEntities = append(analysis.DetectedEntities, qe)
	}

	for _, ent := range extraction.Events {
		analysis.DetectedEntities = append(analysis.DetectedEntities, models.QueryEntity{
			Type:  models.EntityTypeEvent,
			Value: ent.Value,
		})
	}

	for s := range sectors {
		analysis.Sectors = append(analysis.Sectors, s)
	}
	sort.Strings(analysis.Sectors)

	// Intent priority: company, then sector, then regulator, then theme.
	switch {
	case len(extraction.Companies) > 0:
		analysis.Intent = models.IntentCompanyQuery
	case len(extraction.Sectors) > 0:
		analysis.Intent = models.IntentSectorQuery
	case len(extraction.Regulators) > 0:
		analysis.Intent = models.IntentRegulatorQuery
	}

	return analysis
}

// expandCompany broadens a company to its ticker aliases, sector, regulators,
// and in-sector peers.
func (e *Engine) expandCompany(co *catalog.Company) []string {
	expanded := []string{co.Ticker, co.Sector}
	expanded = append(expanded, co.Aliases...)

	for _, reg := range e.catalog.RegulatorsForSector(co.Sector) {
		expanded = append(expanded, reg.Name)
	}
	for _, peer := range e.catalog.CompaniesInSector(co.Sector) {
		if peer.Ticker != co.Ticker {
			expanded = append(expanded, peer.Name)
		}
	}
	return dedupeStrings(expanded)
}

// expandRegulator broadens a regulator to everything under its jurisdiction.
func (e *Engine) expandRegulator(reg *catalog.Regulator) []string {
	var expanded []string
	for _, sector := range reg.Sectors {
		expanded = append(expanded, sector)
		for _, co := range e.catalog.CompaniesInSector(sector) {
			expanded = append(expanded, co.Name)
		}
	}
	return dedupeStrings(expanded)
}

// expandSector broadens a sector to its member companies.
func (e *Engine) expandSector(sector string) []string {
	var expanded []string
	for _, co := range e.catalog.CompaniesInSector(sector) {
		expanded = append(expanded, co.Name)
	}
	return dedupeStrings(expanded)
}

// retrieveSemantic embeds the query and folds nearest neighbors into the
// candidate set. Returns true when the semantic path was unavailable.
func (e *Engine) retrieveSemantic(ctx context.Context, queryText string, limit int, candidates map[string]*candidate) bool {
	embedding, err := e.embeddings.GenerateQueryEmbedding(ctx, queryText)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Query embedding unavailable, serving filter-only results")
		return true
	}

	matches, err := e.storage.VectorStorage().QuerySimilar(ctx, embedding, limit*e.opts.CandidateFactor, nil)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Vector store unavailable, serving filter-only results")
		return true
	}

	for _, match := range matches {
		article, err := e.storage.ArticleStorage().GetArticle(match.ArticleID)
		if err != nil || article == nil {
			continue
		}
		c := e.candidateFor(candidates, article)
		if match.Similarity > c.semantic {
			c.semantic = match.Similarity
		}
		c.strategies = appendStrategy(c.strategies, "semantic")
	}
	return false
}

// retrieveByEntities runs exact filter searches on detected company and
// regulator values.
func (e *Engine) retrieveByEntities(analysis models.QueryAnalysis, candidates map[string]*candidate) {
	for _, qe := range analysis.DetectedEntities {
		if qe.Type != models.EntityTypeCompany && qe.Type != models.EntityTypeRegulator {
			continue
		}
		articles, err := e.storage.ArticleStorage().QueryByEntity(qe.Type, qe.Value)
		if err != nil {
			e.logger.Warn().Err(err).Str("entity", qe.Value).Msg("Entity filter search failed")
			continue
		}
		for _, article := range articles {
			c := e.candidateFor(candidates, article)
			c.entityMatch = true
			c.strategies = appendStrategy(c.strategies, "entity")
		}
	}
}

// retrieveBySectors runs filter searches over the expanded sector set.
func (e *Engine) retrieveBySectors(analysis models.QueryAnalysis, candidates map[string]*candidate) {
	for _, sector := range analysis.Sectors {
		articles, err := e.storage.ArticleStorage().QueryBySector(sector)
		if err != nil {
			e.logger.Warn().Err(err).Str("sector", sector).Msg("Sector filter search failed")
			continue
		}
		for _, article := range articles {
			c := e.candidateFor(candidates, article)
			c.sectorMatch = true
			c.strategies = appendStrategy(c.strategies, "sector")
		}
	}
}

func (e *Engine) candidateFor(candidates map[string]*candidate, article *models.Article) *candidate {
	if c, ok := candidates[article.ID]; ok {
		return c
	}
	c := &candidate{article: article}
	candidates[article.ID] = c
	return c
}

// rank scores every candidate under the blended formula, sorts descending with
// newer published_at breaking ties, and truncates to limit.
func (e *Engine) rank(candidates map[string]*candidate, analysis models.QueryAnalysis, limit int) []models.QueryResult {
	now := time.Now()
	results := make([]models.QueryResult, 0, len(candidates))

	for _, c := range candidates {
		score := semanticWeight * c.semantic
		if c.entityMatch {
			score += entityWeight
		}
		if c.sectorMatch {
			score += sectorWeight
		}
		score += recencyWeight * recencyBonus(now, c.article.PublishedAt)
		if c.article.IsDuplicate {
			score -= duplicatePenalty
		}

		results = append(results, models.QueryResult{
			Article:        c.article,
			RelevanceScore: score,
			MatchReason:    matchReason(c.strategies),
			Highlights:     highlights(c.article, analysis.DetectedEntities),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Article.PublishedAt.After(results[j].Article.PublishedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// recencyBonus decays linearly with article age and bottoms out at zero after
// ten days.
func recencyBonus(now, publishedAt time.Time) float64 {
	days := now.Sub(publishedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Max(0, 0.2-0.02*days)
}

func matchReason(strategies []string) string {
	if len(strategies) == 0 {
		return "no strategy matched"
	}
	labels := make([]string, 0, len(strategies))
	for _, s := range strategies {
		switch s {
		case "semantic":
			labels = append(labels, "semantic similarity")
		case "entity":
			labels = append(labels, "entity match")
		case "sector":
			labels = append(labels, "sector match")
		}
	}
	return strings.Join(labels, ", ")
}

// highlights pulls up to three sentences from the article that mention a
// detected query entity.
func highlights(article *models.Article, detected []models.QueryEntity) []string {
	if len(detected) == 0 {
		return nil
	}

	var out []string
	for _, sentence := range splitSentences(article.NormalizedContent) {
		lower := strings.ToLower(sentence)
		for _, qe := range detected {
			if strings.Contains(lower, strings.ToLower(qe.Value)) {
				out = append(out, sentence)
				break
			}
		}
		if len(out) == maxHighlights {
			break
		}
	}
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, strings.TrimRight(s, ".!?"))
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func appendStrategy(strategies []string, name string) []string {
	for _, s := range strategies {
		if s == name {
			return strategies
		}
	}
	return append(strategies, name)
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
