package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/extraction-ops/internal/discrepancy"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = eris.New("store: report not found")

// Report is a saved staging/production comparison.
type Report struct {
	ID                uuid.UUID                   `json:"id"`
	Year              int                         `json:"year"`
	RoundingThreshold float64                     `json:"rounding_threshold"`
	Note              string                      `json:"note,omitempty"`
	Overview          discrepancy.Overview        `json:"overview"`
	Worst             []discrepancy.CompanyErrors `json:"worst,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// NewReport builds a report from a comparison result.
func NewReport(ov discrepancy.Overview, worst []discrepancy.CompanyErrors, note string) *Report {
	return &Report{
		Year:              ov.Year,
		RoundingThreshold: ov.RoundingThreshold,
		Note:              note,
		Overview:          ov,
		Worst:             worst,
	}
}

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Year   int `json:"year,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DataPointHistory is the result of one data point in one saved report.
type DataPointHistory struct {
	ReportID  uuid.UUID          `json:"report_id"`
	Year      int                `json:"year"`
	CreatedAt time.Time          `json:"created_at"`
	Counts    discrepancy.Counts `json:"counts"`
	Rates     discrepancy.Rates  `json:"rates"`
}

// Store persists comparison reports.
type Store interface {
	// SaveReport stores r, assigning its ID and creation time when unset.
	SaveReport(ctx context.Context, r *Report) error
	// GetReport returns ErrNotFound for an unknown id.
	GetReport(ctx context.Context, id uuid.UUID) (*Report, error)
	// ListReports returns reports newest first, without their worst list.
	ListReports(ctx context.Context, filter ReportFilter) ([]Report, error)
	// DataPointHistory returns a data point's counts across saved reports,
	// newest first.
	DataPointHistory(ctx context.Context, dataPoint string, limit int) ([]DataPointHistory, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// datapointColumns are the columns of report_datapoints in insert order.
var datapointColumns = []string{
	"report_id", "data_point",
	"identical", "rounding", "small_error", "unit_error", "category_error",
	"hallucination", "missing", "both_null", "error",
	"total_companies", "with_any_data",
}

// prepare fills in the generated fields of r.
func prepare(r *Report, now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
}

// datapointRows flattens the per data point counts of r.
func datapointRows(r *Report) [][]any {
	rows := make([][]any, 0, len(r.Overview.DataPoints))
	for _, dp := range r.Overview.DataPoints {
		c := dp.Counts
		rows = append(rows, []any{
			r.ID.String(), dp.DataPoint.Key,
			c.Identical, c.Rounding, c.SmallError, c.UnitError, c.CategoryError,
			c.Hallucination, c.Missing, c.BothNull, c.Error,
			c.TotalCompanies, c.WithAnyData,
		})
	}
	return rows
}

// countTargets returns scan destinations for the count columns.
func countTargets(c *discrepancy.Counts) []any {
	return []any{
		&c.Identical, &c.Rounding, &c.SmallError, &c.UnitError, &c.CategoryError,
		&c.Hallucination, &c.Missing, &c.BothNull, &c.Error,
		&c.TotalCompanies, &c.WithAnyData,
	}
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
