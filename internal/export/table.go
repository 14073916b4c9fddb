// Package export serializes comparison results as CSV and XLSX.
package export

import (
	"strconv"

	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/discrepancy"
)

// Kind selects which table to export.
type Kind string

const (
	KindRows     Kind = "rows"
	KindWorst    Kind = "worst"
	KindOverview Kind = "overview"
)

// cell is one table value. Text cells are quoted in CSV, numbers are not.
type cell struct {
	text  string
	num   float64
	isNum bool
	empty bool
}

func str(s string) cell { return cell{text: s} }

func num(v float64) cell { return cell{num: v, isNum: true} }

func optNum(v *float64) cell {
	if v == nil {
		return cell{empty: true}
	}
	return num(*v)
}

func (c cell) String() string {
	switch {
	case c.empty:
		return ""
	case c.isNum:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return c.text
	}
}

// Table is a named grid ready for serialization.
type Table struct {
	Name   string
	Header []string
	rows   [][]cell
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Records returns the header followed by every row as plain text.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, append([]string(nil), t.Header...))
	for _, row := range t.rows {
		rec := make([]string, len(row))
		for i, c := range row {
			rec[i] = c.String()
		}
		out = append(out, rec)
	}
	return out
}

var rowColumns = []string{
	"Company",
	"Wikidata ID",
	"Data Point",
	"Label",
	"Stage Value",
	"Production Value",
	"Discrepancy",
	"Diff",
	"Matched Data Point",
	"Category Error Kind",
	"Unit Error Factor",
}

// RowsTable lays out company rows.
func RowsTable(rows []discrepancy.CompanyRow, cat *datapoint.Catalog) *Table {
	if cat == nil {
		cat = datapoint.Default()
	}
	t := &Table{Name: "Rows", Header: rowColumns}
	for _, r := range rows {
		label := r.DataPoint
		if dp, ok := cat.Get(r.DataPoint); ok {
			label = dp.Label
		}
		t.rows = append(t.rows, []cell{
			str(r.Name),
			str(r.WikidataID),
			str(r.DataPoint),
			str(label),
			optNum(r.StageValue),
			optNum(r.ProdValue),
			str(string(r.Discrepancy)),
			optNum(r.Diff),
			str(r.MatchedDataPoint),
			str(string(r.CategoryErrorKind)),
			optNum(r.UnitErrorFactor),
		})
	}
	return t
}

// WorstTable lays out the worst-company ranking.
func WorstTable(ranked []discrepancy.CompanyErrors) *Table {
	header := []string{"Rank", "Company", "Wikidata ID", "Errors", "Difficult"}
	for _, typ := range discrepancy.Types {
		header = append(header, string(typ))
	}
	t := &Table{Name: "Worst", Header: header}
	for i, ce := range ranked {
		row := []cell{
			num(float64(i + 1)),
			str(ce.Name),
			str(ce.WikidataID),
			num(float64(ce.Errors)),
			str(strconv.FormatBool(ce.Difficult)),
		}
		for _, typ := range discrepancy.Types {
			row = append(row, num(float64(ce.Breakdown.Get(typ))))
		}
		t.rows = append(t.rows, row)
	}
	return t
}

// OverviewTable lays out per-data-point, per-scope and total counts.
func OverviewTable(ov discrepancy.Overview) *Table {
	header := []string{"Level", "Key", "Label", "Total", "With Data"}
	for _, typ := range discrepancy.Types {
		header = append(header, string(typ))
	}
	header = append(header, "Exact %", "Tolerant %", "Approximate %", "Zero-inclusive %")

	t := &Table{Name: "Overview", Header: header}
	add := func(level, key, label string, c discrepancy.Counts, r discrepancy.Rates) {
		row := []cell{str(level), str(key), str(label), num(float64(c.TotalCompanies)), num(float64(c.WithAnyData))}
		for _, typ := range discrepancy.Types {
			row = append(row, num(float64(c.Get(typ))))
		}
		row = append(row, num(round2(r.ExactMatch)), num(round2(r.Tolerant)), num(round2(r.Approximate)), num(round2(r.ZeroInclusive)))
		t.rows = append(t.rows, row)
	}
	for _, dp := range ov.DataPoints {
		add("datapoint", dp.DataPoint.Key, dp.DataPoint.Label, dp.Counts, dp.Rates)
	}
	for _, s := range ov.Scopes {
		add("scope", string(s.Scope), string(s.Scope), s.Counts, s.Rates)
	}
	add("total", "all", strconv.Itoa(ov.Year), ov.Total, ov.TotalRates)
	return t
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
