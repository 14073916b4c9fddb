package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/discrepancy"
	"github.com/sells-group/extraction-ops/internal/export"
)

func (s *Server) catalog() *datapoint.Catalog {
	if cat := s.comparator.Options().Catalog; cat != nil {
		return cat
	}
	return datapoint.Default()
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.comparator.Years(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, map[string][]int{"years": years})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q, err := comparisonQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ov, err := s.comparator.Overview(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

type dataPointResponse struct {
	DataPoint datapoint.DataPoint      `json:"data_point"`
	Year      int                      `json:"year"`
	Counts    discrepancy.Counts       `json:"counts"`
	Rates     discrepancy.Rates        `json:"rates"`
	Rows      []discrepancy.CompanyRow `json:"rows"`
}

func (s *Server) handleDataPoint(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	dp, ok := s.catalog().Get(key)
	if !ok {
		writeError(w, notFound("unknown data point: "+key))
		return
	}
	q, err := comparisonQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	year, err := s.comparator.ResolveYear(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	q.Year = year

	rows, err := s.comparator.DataPoint(r.Context(), key, q)
	if err != nil {
		writeError(w, err)
		return
	}

	var counts discrepancy.Counts
	for _, row := range rows {
		counts.Add(row.Discrepancy)
	}
	if rows == nil {
		rows = []discrepancy.CompanyRow{}
	}
	writeJSON(w, http.StatusOK, dataPointResponse{
		DataPoint: dp,
		Year:      year,
		Counts:    counts,
		Rates:     counts.Rates(),
		Rows:      rows,
	})
}

func (s *Server) handleWorst(w http.ResponseWriter, r *http.Request) {
	q, err := comparisonQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	ranked, err := s.comparator.Worst(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if ranked == nil {
		ranked = []discrepancy.CompanyErrors{}
	}
	writeJSON(w, http.StatusOK, ranked)
}

// exportTable builds the table selected by ?kind for the resolved year.
func (s *Server) exportTable(r *http.Request, kind export.Kind, q dashboard.Query) (*export.Table, error) {
	switch kind {
	case export.KindRows:
		rows, err := s.comparator.Rows(r.Context(), q)
		if err != nil {
			return nil, err
		}
		return export.RowsTable(rows, s.catalog()), nil
	case export.KindWorst:
		ranked, err := s.comparator.Worst(r.Context(), q)
		if err != nil {
			return nil, err
		}
		return export.WorstTable(ranked), nil
	case export.KindOverview:
		ov, err := s.comparator.Overview(r.Context(), q)
		if err != nil {
			return nil, err
		}
		return export.OverviewTable(ov), nil
	}
	return nil, badRequest(fmt.Sprintf("invalid kind %q: want rows, worst or overview", kind))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, err := comparisonQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind := export.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = export.KindRows
	case export.KindRows, export.KindWorst, export.KindOverview:
	default:
		writeError(w, badRequest(fmt.Sprintf("invalid kind %q: want rows, worst or overview", kind)))
		return
	}
	if q.Year, err = s.comparator.ResolveYear(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	t, err := s.exportTable(r, kind, q)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, t); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("discrepancies-%s-%d.csv", kind, q.Year)))
	_, _ = w.Write(buf.Bytes())
}

// handleExportXLSX writes one workbook with the overview, worst and rows
// sheets.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	q, err := comparisonQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if q.Year, err = s.comparator.ResolveYear(r.Context(), q); err != nil {
		writeError(w, err)
		return
	}

	var tables []*export.Table
	for _, kind := range []export.Kind{export.KindOverview, export.KindWorst, export.KindRows} {
		t, err := s.exportTable(r, kind, q)
		if err != nil {
			writeError(w, err)
			return
		}
		tables = append(tables, t)
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, tables...); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("discrepancies-%d.xlsx", q.Year)))
	_, _ = w.Write(buf.Bytes())
}
