package entities

import (
	"regexp"
	"strings"

	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/catalog"
)

// CatalogMatcher recognizes companies and regulators by exact catalog match:
// names, aliases, and tickers compiled into word-bounded patterns, longest
// term first so greedy matching prefers the most specific alias. Catalog
// matches carry confidence 1.0.
type CatalogMatcher struct {
	catalog          *catalog.Catalog
	companyPattern   *regexp.Regexp
	regulatorPattern *regexp.Regexp
}

// NewCatalogMatcher compiles matching patterns from the loaded catalog.
func NewCatalogMatcher(cat *catalog.Catalog) *CatalogMatcher {
	return &CatalogMatcher{
		catalog:          cat,
		companyPattern:   compileTermPattern(cat.CompanyTerms()),
		regulatorPattern: compileTermPattern(cat.RegulatorTerms()),
	}
}

// Name identifies the recognizer.
func (m *CatalogMatcher) Name() string { return "catalog" }

// Recognize returns company and regulator entities found in text. Values are
// canonicalized to the catalog name, and each canonical entity appears once
// at its first mention.
func (m *CatalogMatcher) Recognize(text string) []models.Entity {
	var out []models.Entity
	seen := make(map[string]bool)

	for _, loc := range m.companyPattern.FindAllStringIndex(text, -1) {
		co, ok := m.catalog.LookupCompany(text[loc[0]:loc[1]])
		if !ok || seen["company:"+co.Name] {
			continue
		}
		seen["company:"+co.Name] = true
		out = append(out, models.Entity{
			Type:       models.EntityTypeCompany,
			Value:      co.Name,
			Confidence: 1.0,
			SpanStart:  loc[0],
			SpanEnd:    loc[1],
		})
	}

	for _, loc := range m.regulatorPattern.FindAllStringIndex(text, -1) {
		reg, ok := m.catalog.LookupRegulator(text[loc[0]:loc[1]])
		if !ok || seen["regulator:"+reg.Name] {
			continue
		}
		seen["regulator:"+reg.Name] = true
		out = append(out, models.Entity{
			Type:       models.EntityTypeRegulator,
			Value:      reg.Name,
			Confidence: 1.0,
			SpanStart:  loc[0],
			SpanEnd:    loc[1],
		})
	}

	return out
}

// compileTermPattern builds a case-insensitive word-bounded alternation over
// the given terms. Terms must already be sorted longest first.
func compileTermPattern(terms []string) *regexp.Regexp {
	if len(terms) == 0 {
		// Matches nothing.
		return regexp.MustCompile(`\bx\bx`)
	}
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`)
}
