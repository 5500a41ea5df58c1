// Package impact maps extracted entities to scored stock impacts. Scoring is
// deterministic over the entity set and the catalog: direct mentions score
// highest, then sector propagation, regulatory jurisdiction, and one-hop
// supply-chain adjacency, each in its own confidence band.
package impact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntius/internal/models"
	"github.com/ternarybob/nuntius/internal/services/catalog"
)

// Confidence band parameters.
const (
	sectorBaseConfidence  = 0.6
	sectorCorroboration   = 0.2
	regulatoryFloor       = 0.3
	regulatoryCeiling     = 0.7
	supplyChainDecay      = 0.5
	rateChangeBankingLift = 0.2
)

// Service scores stock impacts from an extraction result.
type Service struct {
	catalog *catalog.Catalog
	logger  arbor.ILogger
}

// NewService creates an impact scorer backed by the entity catalog.
func NewService(cat *catalog.Catalog, logger arbor.ILogger) *Service {
	return &Service{catalog: cat, logger: logger}
}

// Score returns the ranked impact list for the extracted entities. Within the
// result at most one entry exists per (symbol, impact type) pair; entries are
// sorted by confidence descending with impact type priority breaking ties.
func (s *Service) Score(entities *models.EntityExtractionResult) []models.StockImpact {
	if entities == nil || entities.Empty() {
		return nil
	}

	var raw []models.StockImpact

	direct, directBySector := s.scoreDirect(entities)
	raw = append(raw, direct...)

	directTickers := make(map[string]bool, len(direct))
	for _, imp := range direct {
		directTickers[imp.StockSymbol] = true
	}

	impactedSectors := s.collectSectors(entities, directBySector)

	raw = append(raw, s.scoreSectors(impactedSectors, directBySector, directTickers)...)
	raw = append(raw, s.scoreRegulatory(entities)...)
	raw = append(raw, s.scoreSupplyChain(impactedSectors, directBySector, raw)...)

	impacts := dedupeImpacts(raw)
	sortImpacts(impacts)

	s.logger.Debug().
		Int("impacts", len(impacts)).
		Int("direct", len(direct)).
		Msg("Impact scoring completed")

	return impacts
}

// scoreDirect maps company entities to direct impacts and counts distinct
// direct mentions per sector for the sector band formula.
func (s *Service) scoreDirect(entities *models.EntityExtractionResult) ([]models.StockImpact, map[string]int) {
	var impacts []models.StockImpact
	directBySector := make(map[string]int)
	seen := make(map[string]bool)

	for _, e := range entities.Companies {
		co, ok := s.catalog.LookupCompany(e.Value)
		if !ok || seen[co.Ticker] {
			continue
		}
		seen[co.Ticker] = true
		directBySector[co.Sector]++

		confidence := e.Confidence
		if confidence > 1.0 {
			confidence = 1.0
		}
		impacts = append(impacts, models.StockImpact{
			StockSymbol: co.Ticker,
			CompanyName: co.Name,
			ImpactType:  models.ImpactTypeDirect,
			Confidence:  confidence,
			Reasoning:   "Directly mentioned in article",
		})
	}

	return impacts, directBySector
}

// collectSectors gathers every sector implicated by the article: explicit
// sector entities plus sectors of directly-impacted companies.
func (s *Service) collectSectors(entities *models.EntityExtractionResult, directBySector map[string]int) []string {
	set := make(map[string]bool)
	var sectors []string

	add := func(name string) {
		if sec, ok := s.catalog.LookupSector(name); ok && !set[sec.Name] {
			set[sec.Name] = true
			sectors = append(sectors, sec.Name)
		}
	}

	for _, e := range entities.Sectors {
		add(e.Value)
	}
	for sector := range directBySector {
		add(sector)
	}

	sort.Strings(sectors)
	return sectors
}

// scoreSectors propagates to catalog peers of each impacted sector. The band
// rises with corroboration: more distinct direct mentions in the sector push
// confidence from 0.6 toward 0.8.
func (s *Service) scoreSectors(sectors []string, directBySector map[string]int, directTickers map[string]bool) []models.StockImpact {
	var impacts []models.StockImpact

	for _, sector := range sectors {
		mentions := directBySector[sector]
		share := float64(mentions) / 3.0
		if share > 1 {
			share = 1
		}
		confidence := sectorBaseConfidence + sectorCorroboration*share

		for _, co := range s.catalog.CompaniesInSector(sector) {
			// Directly-mentioned companies already carry a direct impact.
			if directTickers[co.Ticker] {
				continue
			}
			impacts = append(impacts, models.StockImpact{
				StockSymbol: co.Ticker,
				CompanyName: co.Name,
				ImpactType:  models.ImpactTypeSector,
				Confidence:  confidence,
				Reasoning:   fmt.Sprintf("Part of %s sector implicated by article", sector),
			})
		}
	}

	return impacts
}

// scoreRegulatory propagates regulator mentions to every company under the
// regulator's jurisdiction. Narrow regulators score higher than broad ones,
// and event context shifts the band: rate changes hit banking harder, while
// company-specific events (merger, ipo, buyback) dilute the regulatory read.
func (s *Service) scoreRegulatory(entities *models.EntityExtractionResult) []models.StockImpact {
	var impacts []models.StockImpact

	events := make(map[string]bool)
	for _, e := range entities.Events {
		events[e.Value] = true
	}
	companySpecificEvent := events["merger"] || events["ipo"] || events["buyback"]

	for _, regEntity := range entities.Regulators {
		reg, ok := s.catalog.LookupRegulator(regEntity.Value)
		if !ok || len(reg.Sectors) == 0 {
			continue
		}

		// Specificity: a single-sector regulator scores 0.7, jurisdiction
		// over N sectors divides the spread.
		base := regulatoryFloor + (regulatoryCeiling-regulatoryFloor)/float64(len(reg.Sectors))

		for _, sector := range reg.Sectors {
			confidence := base
			if events["rate_change"] && sector == "Banking" {
				confidence += rateChangeBankingLift
			}
			if companySpecificEvent {
				confidence = 0.4
			}
			confidence = clamp(confidence, regulatoryFloor, regulatoryCeiling)

			for _, co := range s.catalog.CompaniesInSector(sector) {
				impacts = append(impacts, models.StockImpact{
					StockSymbol: co.Ticker,
					CompanyName: co.Name,
					ImpactType:  models.ImpactTypeRegulatory,
					Confidence:  confidence,
					Reasoning:   fmt.Sprintf("Affected by %s regulatory action", reg.Name),
				})
			}
		}
	}

	return impacts
}

// scoreSupplyChain propagates one hop along the sector adjacency graph at
// half the upstream confidence. Adjacent sectors never propagate further.
func (s *Service) scoreSupplyChain(sectors []string, directBySector map[string]int, existing []models.StockImpact) []models.StockImpact {
	// Upstream confidence per sector: the strongest impact already scored
	// for a company in that sector.
	upstream := make(map[string]float64)
	for _, imp := range existing {
		if co, ok := s.catalog.LookupCompany(imp.CompanyName); ok {
			if imp.Confidence > upstream[co.Sector] {
				upstream[co.Sector] = imp.Confidence
			}
		}
	}

	var impacts []models.StockImpact
	for _, sector := range sectors {
		strength := upstream[sector]
		if strength == 0 {
			// Sector implicated with no scored companies still propagates
			// from the bottom of the sector band.
			strength = sectorBaseConfidence
		}

		for _, adjacent := range s.catalog.AdjacentSectors(sector) {
			confidence := strength * supplyChainDecay
			for _, co := range s.catalog.CompaniesInSector(adjacent) {
				impacts = append(impacts, models.StockImpact{
					StockSymbol: co.Ticker,
					CompanyName: co.Name,
					ImpactType:  models.ImpactTypeSupplyChain,
					Confidence:  confidence,
					Reasoning:   fmt.Sprintf("Supply chain impact: %s -> %s", sector, adjacent),
				})
			}
		}
	}

	return impacts
}

// dedupeImpacts keeps one entry per (symbol, impact type), retaining the max
// confidence and concatenating distinct reasoning strings.
func dedupeImpacts(impacts []models.StockImpact) []models.StockImpact {
	type key struct {
		symbol string
		typ    models.ImpactType
	}

	index := make(map[key]int)
	var out []models.StockImpact

	for _, imp := range impacts {
		k := key{symbol: imp.StockSymbol, typ: imp.ImpactType}
		at, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, imp)
			continue
		}
		kept := &out[at]
		if imp.Confidence > kept.Confidence {
			kept.Confidence = imp.Confidence
		}
		if imp.Reasoning != "" && !strings.Contains(kept.Reasoning, imp.Reasoning) {
			kept.Reasoning = kept.Reasoning + "; " + imp.Reasoning
		}
	}

	return out
}

// sortImpacts orders by confidence descending; equal confidence falls back to
// impact type priority, then symbol for determinism.
func sortImpacts(impacts []models.StockImpact) {
	sort.SliceStable(impacts, func(i, j int) bool {
		if impacts[i].Confidence != impacts[j].Confidence {
			return impacts[i].Confidence > impacts[j].Confidence
		}
		if impacts[i].ImpactType != impacts[j].ImpactType {
			return impacts[i].ImpactType.Priority() < impacts[j].ImpactType.Priority()
		}
		return impacts[i].StockSymbol < impacts[j].StockSymbol
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
