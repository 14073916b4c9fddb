package discrepancy

import (
	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/model"
)

// Counts tallies classifications.
type Counts struct {
	Identical      int `json:"identical"`
	Rounding       int `json:"rounding"`
	SmallError     int `json:"small_error"`
	UnitError      int `json:"unit_error"`
	CategoryError  int `json:"category_error"`
	Hallucination  int `json:"hallucination"`
	Missing        int `json:"missing"`
	BothNull       int `json:"both_null"`
	Error          int `json:"error"`
	TotalCompanies int `json:"total_companies"`
	WithAnyData    int `json:"with_any_data"`
}

// Add records one classification.
func (c *Counts) Add(t Type) {
	switch t {
	case Identical:
		c.Identical++
	case Rounding:
		c.Rounding++
	case SmallError:
		c.SmallError++
	case UnitError:
		c.UnitError++
	case CategoryError:
		c.CategoryError++
	case Hallucination:
		c.Hallucination++
	case Missing:
		c.Missing++
	case BothNull:
		c.BothNull++
	default:
		c.Error++
	}
	c.TotalCompanies++
	if t != BothNull {
		c.WithAnyData++
	}
}

// Merge adds other into c.
func (c *Counts) Merge(other Counts) {
	c.Identical += other.Identical
	c.Rounding += other.Rounding
	c.SmallError += other.SmallError
	c.UnitError += other.UnitError
	c.CategoryError += other.CategoryError
	c.Hallucination += other.Hallucination
	c.Missing += other.Missing
	c.BothNull += other.BothNull
	c.Error += other.Error
	c.TotalCompanies += other.TotalCompanies
	c.WithAnyData += other.WithAnyData
}

// Get returns the count for t.
func (c Counts) Get(t Type) int {
	switch t {
	case Identical:
		return c.Identical
	case Rounding:
		return c.Rounding
	case SmallError:
		return c.SmallError
	case UnitError:
		return c.UnitError
	case CategoryError:
		return c.CategoryError
	case Hallucination:
		return c.Hallucination
	case Missing:
		return c.Missing
	case BothNull:
		return c.BothNull
	default:
		return c.Error
	}
}

// Rates are accuracy percentages (0-100).
type Rates struct {
	ExactMatch    float64 `json:"exact_match"`
	Tolerant      float64 `json:"tolerant"`
	Approximate   float64 `json:"approximate"`
	ZeroInclusive float64 `json:"zero_inclusive"`
}

// Rates computes accuracy rates. Rates over an empty denominator are 0.
func (c Counts) Rates() Rates {
	return Rates{
		ExactMatch:    percent(c.Identical, c.WithAnyData),
		Tolerant:      percent(c.Identical+c.Rounding, c.WithAnyData),
		Approximate:   percent(c.Identical+c.Rounding+c.SmallError, c.WithAnyData),
		ZeroInclusive: percent(c.Identical+c.Rounding+c.BothNull, c.TotalCompanies),
	}
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// DataPointSummary is the breakdown for one data point.
type DataPointSummary struct {
	DataPoint datapoint.DataPoint `json:"data_point"`
	Counts    Counts              `json:"counts"`
	Rates     Rates               `json:"rates"`
}

// ScopeSummary is the breakdown summed over a scope.
type ScopeSummary struct {
	Scope  datapoint.Scope `json:"scope"`
	Counts Counts          `json:"counts"`
	Rates  Rates           `json:"rates"`
}

// Overview summarizes every data point for one reporting year.
type Overview struct {
	Year              int                `json:"year"`
	RoundingThreshold float64            `json:"rounding_threshold"`
	Companies         int                `json:"companies"`
	DataPoints        []DataPointSummary `json:"data_points"`
	Scopes            []ScopeSummary     `json:"scopes"`
	Total             Counts             `json:"total"`
	TotalRates        Rates              `json:"total_rates"`
}

// Summarize folds rows into an Overview. Rows are classified independently
// per data point and company.
func Summarize(rows []CompanyRow, year int, opts Options) Overview {
	opts = opts.withDefaults()
	cat := opts.Catalog

	byPoint := make(map[string]*Counts, cat.Len())
	for _, dp := range cat.All() {
		byPoint[dp.Key] = &Counts{}
	}
	companies := make(map[string]bool)
	for _, r := range rows {
		companies[r.WikidataID] = true
		if c, ok := byPoint[r.DataPoint]; ok {
			c.Add(r.Discrepancy)
		}
	}

	ov := Overview{
		Year:              year,
		RoundingThreshold: opts.RoundingThreshold,
		Companies:         len(companies),
	}
	byScope := make(map[datapoint.Scope]*Counts, len(datapoint.Scopes))
	for _, dp := range cat.All() {
		c := *byPoint[dp.Key]
		ov.DataPoints = append(ov.DataPoints, DataPointSummary{DataPoint: dp, Counts: c, Rates: c.Rates()})
		if byScope[dp.Scope] == nil {
			byScope[dp.Scope] = &Counts{}
		}
		byScope[dp.Scope].Merge(c)
		ov.Total.Merge(c)
	}
	for _, s := range datapoint.Scopes {
		c, ok := byScope[s]
		if !ok {
			continue
		}
		ov.Scopes = append(ov.Scopes, ScopeSummary{Scope: s, Counts: *c, Rates: c.Rates()})
	}
	ov.TotalRates = ov.Total.Rates()
	return ov
}

// BuildOverview compares both datasets for year and summarizes the result.
func BuildOverview(stage, prod []model.Company, year int, opts Options) Overview {
	return Summarize(CompareAll(stage, prod, year, opts), year, opts)
}
