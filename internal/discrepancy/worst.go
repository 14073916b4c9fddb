package discrepancy

import (
	"sort"

	"github.com/sells-group/extraction-ops/internal/model"
)

// CompanyErrors ranks one company by its failing data points.
type CompanyErrors struct {
	WikidataID string       `json:"wikidata_id"`
	Name       string       `json:"name"`
	Errors     int          `json:"errors"`
	Difficult  bool         `json:"difficult"`
	Breakdown  Counts       `json:"breakdown"`
	Failing    []CompanyRow `json:"failing"`
}

// WorstCompanies ranks companies by how many data points fail comparison
// for year. Only companies with a reporting period for year in both
// datasets are ranked.
func WorstCompanies(stage, prod []model.Company, year int, opts Options) []CompanyErrors {
	opts = opts.withDefaults()

	var ranked []CompanyErrors
	for _, pair := range pairCompanies(stage, prod, opts.Language) {
		sp, pp := pair.periods(year)
		if sp == nil || pp == nil {
			continue
		}
		ce := CompanyErrors{WikidataID: pair.wikidataID, Name: pair.name}
		for _, row := range assessCompany(opts.Catalog, pair, sp, pp, opts.RoundingThreshold) {
			ce.Breakdown.Add(row.Discrepancy)
			if row.Discrepancy.Passing() {
				continue
			}
			ce.Errors++
			ce.Failing = append(ce.Failing, row)
		}
		ce.Difficult = ce.Errors >= opts.DifficultAt
		ranked = append(ranked, ce)
	}

	// pairCompanies already orders by name, so a stable sort keeps ties
	// alphabetical.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Errors > ranked[j].Errors
	})
	return ranked
}
