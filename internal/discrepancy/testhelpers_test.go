package discrepancy

import (
	"fmt"
	"strings"

	"github.com/sells-group/extraction-ops/internal/model"
)

// vals maps default-catalog data point keys to values.
type vals map[string]float64

func f(v float64) *float64 { return &v }

// period builds a reporting period ending in year from catalog keys.
func period(year int, v vals) model.ReportingPeriod {
	e := &model.Emissions{
		Scope1: &model.Scope1{},
		Scope2: &model.Scope2{},
		Scope3: &model.Scope3{StatedTotalEmissions: &model.StatedTotal{}},
	}
	for key, n := range v {
		num := model.NewNumber(n)
		switch {
		case key == "scope1_total":
			e.Scope1.Total = num
		case key == "scope2_mb":
			e.Scope2.MB = num
		case key == "scope2_lb":
			e.Scope2.LB = num
		case key == "scope2_unknown":
			e.Scope2.Unknown = num
		case key == "scope3_stated_total":
			e.Scope3.StatedTotalEmissions.Total = num
		case key == "scope3_calculated_total":
			e.Scope3.CalculatedTotalEmissions = num
		case strings.HasPrefix(key, "scope3_cat"):
			var c int
			if _, err := fmt.Sscanf(key, "scope3_cat%d", &c); err != nil {
				panic(err)
			}
			e.Scope3.Categories = append(e.Scope3.Categories, model.Category{Category: c, Total: num})
		default:
			panic("unknown key " + key)
		}
	}
	return model.ReportingPeriod{
		StartDate: fmt.Sprintf("%d-01-01", year),
		EndDate:   fmt.Sprintf("%d-12-31", year),
		Emissions: e,
	}
}

func company(id, name string, periods ...model.ReportingPeriod) model.Company {
	return model.Company{WikidataID: id, Name: name, ReportingPeriods: periods}
}

// rowFor picks the row of a data point out of rows.
func rowFor(rows []CompanyRow, id, key string) CompanyRow {
	for _, r := range rows {
		if r.WikidataID == id && r.DataPoint == key {
			return r
		}
	}
	panic("no row for " + id + "/" + key)
}
