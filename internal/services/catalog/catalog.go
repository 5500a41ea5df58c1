// Package catalog loads the static entity reference data: company→ticker→sector
// mappings, regulator jurisdictions, sector keyword sets, and the supply-chain
// sector adjacency graph. The catalog is read-only and loaded once at startup;
// schema validation failure is fatal.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Company is one catalog company entry.
type Company struct {
	Name    string   `yaml:"name" validate:"required"`
	Ticker  string   `yaml:"ticker" validate:"required,uppercase"`
	Sector  string   `yaml:"sector" validate:"required"`
	Aliases []string `yaml:"aliases"`
}

// Regulator is one catalog regulator entry with the sectors it regulates.
type Regulator struct {
	Name    string   `yaml:"name" validate:"required"`
	Aliases []string `yaml:"aliases"`
	Sectors []string `yaml:"sectors" validate:"required,min=1"`
}

// Sector is one catalog sector entry with its keyword set.
type Sector struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1"`
}

// Adjacency is a one-hop supply-chain edge from one sector to its dependents.
type Adjacency struct {
	From string   `yaml:"from" validate:"required"`
	To   []string `yaml:"to" validate:"required,min=1"`
}

type catalogFile struct {
	Companies  []Company   `yaml:"companies" validate:"required,min=1,dive"`
	Regulators []Regulator `yaml:"regulators" validate:"required,min=1,dive"`
	Sectors    []Sector    `yaml:"sectors" validate:"required,min=1,dive"`
	Adjacency  []Adjacency `yaml:"adjacency" validate:"dive"`
}

// Catalog holds the loaded reference data plus derived lookup tables. All maps
// are built once at load time and never mutated afterwards, so concurrent
// reads need no locking.
type Catalog struct {
	companies  []Company
	regulators []Regulator
	sectors    []Sector

	companyByAlias  map[string]*Company   // lowercased name/alias/ticker -> company
	companiesBySec  map[string][]*Company // sector -> companies
	regulatorByName map[string]*Regulator // lowercased name/alias -> regulator
	sectorByName    map[string]*Sector    // lowercased sector name -> sector
	adjacentSectors map[string][]string   // sector -> one-hop dependent sectors
}

// Load reads the catalog from path, or the embedded default when path is
// empty. Schema validation failure is a startup-fatal error.
func Load(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
		}
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := validator.New().Struct(&file); err != nil {
		return nil, fmt.Errorf("catalog schema validation failed: %w", err)
	}

	c := &Catalog{
		companies:       file.Companies,
		regulators:      file.Regulators,
		sectors:         file.Sectors,
		companyByAlias:  make(map[string]*Company),
		companiesBySec:  make(map[string][]*Company),
		regulatorByName: make(map[string]*Regulator),
		sectorByName:    make(map[string]*Sector),
		adjacentSectors: make(map[string][]string),
	}

	for i := range c.companies {
		co := &c.companies[i]
		c.companyByAlias[strings.ToLower(co.Name)] = co
		c.companyByAlias[strings.ToLower(co.Ticker)] = co
		for _, alias := range co.Aliases {
			c.companyByAlias[strings.ToLower(alias)] = co
		}
		c.companiesBySec[co.Sector] = append(c.companiesBySec[co.Sector], co)
	}

	for i := range c.regulators {
		reg := &c.regulators[i]
		c.regulatorByName[strings.ToLower(reg.Name)] = reg
		for _, alias := range reg.Aliases {
			c.regulatorByName[strings.ToLower(alias)] = reg
		}
	}

	for i := range c.sectors {
		sec := &c.sectors[i]
		c.sectorByName[strings.ToLower(sec.Name)] = sec
	}

	// Companies must reference known sectors so sector-level propagation
	// never dead-ends.
	for i := range c.companies {
		if _, ok := c.sectorByName[strings.ToLower(c.companies[i].Sector)]; !ok {
			return nil, fmt.Errorf("catalog schema validation failed: company %q references unknown sector %q",
				c.companies[i].Name, c.companies[i].Sector)
		}
	}

	for _, adj := range file.Adjacency {
		c.adjacentSectors[adj.From] = append(c.adjacentSectors[adj.From], adj.To...)
	}

	return c, nil
}

// LookupCompany resolves a name, alias, or ticker to its catalog entry.
func (c *Catalog) LookupCompany(nameOrAlias string) (*Company, bool) {
	co, ok := c.companyByAlias[strings.ToLower(strings.TrimSpace(nameOrAlias))]
	return co, ok
}

// LookupRegulator resolves a regulator name or alias to its catalog entry.
func (c *Catalog) LookupRegulator(nameOrAlias string) (*Regulator, bool) {
	reg, ok := c.regulatorByName[strings.ToLower(strings.TrimSpace(nameOrAlias))]
	return reg, ok
}

// LookupSector resolves a sector name to its catalog entry.
func (c *Catalog) LookupSector(name string) (*Sector, bool) {
	sec, ok := c.sectorByName[strings.ToLower(strings.TrimSpace(name))]
	return sec, ok
}

// CompaniesInSector returns the catalog companies classified under sector.
func (c *Catalog) CompaniesInSector(sector string) []*Company {
	return c.companiesBySec[sector]
}

// AdjacentSectors returns the one-hop supply-chain dependents of sector.
func (c *Catalog) AdjacentSectors(sector string) []string {
	return c.adjacentSectors[sector]
}

// RegulatorsForSector returns the regulators whose jurisdiction covers sector.
func (c *Catalog) RegulatorsForSector(sector string) []*Regulator {
	var out []*Regulator
	for i := range c.regulators {
		for _, s := range c.regulators[i].Sectors {
			if s == sector {
				out = append(out, &c.regulators[i])
				break
			}
		}
	}
	return out
}

// Companies returns all catalog companies.
func (c *Catalog) Companies() []Company { return c.companies }

// Regulators returns all catalog regulators.
func (c *Catalog) Regulators() []Regulator { return c.regulators }

// Sectors returns all catalog sectors.
func (c *Catalog) Sectors() []Sector { return c.sectors }

// CompanyTerms returns every company name, alias, and ticker, longest first,
// for greedy pattern matching.
func (c *Catalog) CompanyTerms() []string {
	var terms []string
	for i := range c.companies {
		terms = append(terms, c.companies[i].Name)
		terms = append(terms, c.companies[i].Ticker)
		terms = append(terms, c.companies[i].Aliases...)
	}
	sortByLengthDesc(terms)
	return terms
}

// RegulatorTerms returns every regulator name and alias, longest first.
func (c *Catalog) RegulatorTerms() []string {
	var terms []string
	for i := range c.regulators {
		terms = append(terms, c.regulators[i].Name)
		terms = append(terms, c.regulators[i].Aliases...)
	}
	sortByLengthDesc(terms)
	return terms
}

func sortByLengthDesc(terms []string) {
	sort.SliceStable(terms, func(i, j int) bool {
		return len(terms[i]) > len(terms[j])
	})
}
