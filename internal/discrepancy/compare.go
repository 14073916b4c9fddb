package discrepancy

import (
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/model"
)

// DefaultLanguage is the collation used to order company names.
var DefaultLanguage = language.Swedish

// Options controls a comparison.
type Options struct {
	// RoundingThreshold is used as given: zero means only identical values
	// pass. Use DefaultOptions for the standard 0.5.
	RoundingThreshold float64
	// Catalog defaults to datapoint.Default().
	Catalog *datapoint.Catalog
	// DifficultAt is the error count at which a company is flagged
	// difficult. Defaults to 5.
	DifficultAt int
	// Language selects the collation for company names. Defaults to
	// DefaultLanguage.
	Language language.Tag
}

// DefaultOptions returns the standard comparison settings.
func DefaultOptions() Options {
	return Options{
		RoundingThreshold: DefaultRoundingThreshold,
		Catalog:           datapoint.Default(),
		DifficultAt:       5,
		Language:          DefaultLanguage,
	}
}

func (o Options) withDefaults() Options {
	if o.Catalog == nil {
		o.Catalog = datapoint.Default()
	}
	if o.DifficultAt <= 0 {
		o.DifficultAt = 5
	}
	if o.RoundingThreshold < 0 {
		o.RoundingThreshold = 0
	}
	if o.Language == language.Und {
		o.Language = DefaultLanguage
	}
	return o
}

// CompanyRow is the comparison of one data point for one company. Rows are
// derived on demand and never persisted.
type CompanyRow struct {
	WikidataID        string            `json:"wikidata_id"`
	Name              string            `json:"name"`
	DataPoint         string            `json:"data_point"`
	StageValue        *float64          `json:"stage_value"`
	ProdValue         *float64          `json:"prod_value"`
	Discrepancy       Type              `json:"discrepancy"`
	Diff              *float64          `json:"diff"`
	MatchedDataPoint  string            `json:"matched_data_point,omitempty"`
	CategoryErrorKind CategoryErrorKind `json:"category_error_kind,omitempty"`
	UnitErrorFactor   *float64          `json:"unit_error_factor,omitempty"`
}

// companyPair is a company present in both datasets.
type companyPair struct {
	wikidataID string
	name       string
	stage      *model.Company
	prod       *model.Company
}

// pairCompanies matches companies by Wikidata ID. Companies without an ID
// or present on one side only are dropped. The result is ordered by name
// under the collation of lang, then ID.
func pairCompanies(stage, prod []model.Company, lang language.Tag) []companyPair {
	prodByID := make(map[string]*model.Company, len(prod))
	for i := range prod {
		id := prod[i].WikidataID
		if id == "" {
			continue
		}
		if _, dup := prodByID[id]; !dup {
			prodByID[id] = &prod[i]
		}
	}

	seen := make(map[string]bool, len(stage))
	var pairs []companyPair
	for i := range stage {
		s := &stage[i]
		if s.WikidataID == "" || seen[s.WikidataID] {
			continue
		}
		p, ok := prodByID[s.WikidataID]
		if !ok {
			continue
		}
		seen[s.WikidataID] = true
		name := s.Name
		if name == "" {
			name = p.Name
		}
		pairs = append(pairs, companyPair{wikidataID: s.WikidataID, name: name, stage: s, prod: p})
	}

	if lang == language.Und {
		lang = DefaultLanguage
	}
	col := collate.New(lang, collate.IgnoreCase)
	sort.SliceStable(pairs, func(i, j int) bool {
		if c := col.CompareString(pairs[i].name, pairs[j].name); c != 0 {
			return c < 0
		}
		return pairs[i].wikidataID < pairs[j].wikidataID
	})
	return pairs
}

// assessCompany classifies every catalog data point for one company and
// year. Category-error reclassification sees the original classification of
// every sibling.
func assessCompany(cat *datapoint.Catalog, pair companyPair, sp, pp *model.ReportingPeriod, threshold float64) []CompanyRow {
	points := cat.All()
	v := values{
		stage: make(map[string]*float64, len(points)),
		prod:  make(map[string]*float64, len(points)),
	}
	for _, dp := range points {
		v.stage[dp.Key] = cat.Value(sp, dp)
		v.prod[dp.Key] = cat.Value(pp, dp)
	}

	rows := make([]CompanyRow, 0, len(points))
	for _, dp := range points {
		res := Evaluate(v.stage[dp.Key], v.prod[dp.Key], threshold)
		row := CompanyRow{
			WikidataID:      pair.wikidataID,
			Name:            pair.name,
			DataPoint:       dp.Key,
			StageValue:      v.stage[dp.Key],
			ProdValue:       v.prod[dp.Key],
			Discrepancy:     res.Type,
			Diff:            res.Diff,
			UnitErrorFactor: res.UnitErrorFactor,
		}
		reclassify(cat, dp, &row, v, threshold)
		rows = append(rows, row)
	}
	return rows
}

// periods returns both reporting periods for year.
func (p companyPair) periods(year int) (stage, prod *model.ReportingPeriod) {
	return p.stage.PeriodForYear(year), p.prod.PeriodForYear(year)
}

// CompareAll returns one row per company and data point for year. A company
// is included when it exists in both datasets and at least one side reports
// a period for year.
func CompareAll(stage, prod []model.Company, year int, opts Options) []CompanyRow {
	opts = opts.withDefaults()
	var rows []CompanyRow
	for _, pair := range pairCompanies(stage, prod, opts.Language) {
		sp, pp := pair.periods(year)
		if sp == nil && pp == nil {
			continue
		}
		rows = append(rows, assessCompany(opts.Catalog, pair, sp, pp, opts.RoundingThreshold)...)
	}
	return rows
}

// Compare returns the rows for a single data point.
func Compare(stage, prod []model.Company, dataPointKey string, year int, opts Options) ([]CompanyRow, error) {
	opts = opts.withDefaults()
	if _, ok := opts.Catalog.Get(dataPointKey); !ok {
		return nil, eris.Errorf("discrepancy: unknown data point %q", dataPointKey)
	}

	var rows []CompanyRow
	for _, r := range CompareAll(stage, prod, year, opts) {
		if r.DataPoint == dataPointKey {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// Years returns the reporting years of companies present in both datasets,
// newest first.
func Years(stage, prod []model.Company) []int {
	seen := make(map[int]bool)
	for _, pair := range pairCompanies(stage, prod, language.Und) {
		for _, y := range pair.stage.Years() {
			seen[y] = true
		}
		for _, y := range pair.prod.Years() {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
