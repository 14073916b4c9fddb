package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extraction-ops/internal/aggregate"
	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/discrepancy"
	"github.com/sells-group/extraction-ops/internal/model"
	"github.com/sells-group/extraction-ops/internal/resilience"
	"github.com/sells-group/extraction-ops/internal/store"
	"github.com/sells-group/extraction-ops/pkg/garbo"
	"github.com/sells-group/extraction-ops/pkg/garbo/mocks"
)

func ms(v int64) *int64 { return &v }

func testJobs() []model.Job {
	return []model.Job{
		{
			ID: "1", Queue: "parsePdf", Timestamp: 1700000000000, FinishedOn: ms(1700000005000),
			Data: model.JobData{CompanyName: "Volvo", WikidataID: "Q52", Year: "2023", RunID: "r1", AutoApprove: true},
		},
		{
			ID: "2", Queue: "parsePdf", Timestamp: 1700000000000,
			Data: model.JobData{CompanyName: "SSAB", WikidataID: "Q219", Year: "2023", RunID: "r2"},
		},
	}
}

func scope1Company(id, name string, year int, v float64) model.Company {
	return model.Company{
		WikidataID: id,
		Name:       name,
		ReportingPeriods: []model.ReportingPeriod{{
			StartDate: fmt.Sprintf("%d-01-01", year),
			EndDate:   fmt.Sprintf("%d-12-31", year),
			Emissions: &model.Emissions{Scope1: &model.Scope1{Total: model.NewNumber(v)}},
		}},
	}
}

type fixture struct {
	client *mocks.MockClient
	hub    *dashboard.Hub[dashboard.Snapshot]
	store  store.Store
	router http.Handler
}

// newFixture wires a server over a mocked client. publish controls whether
// a queue snapshot is available.
func newFixture(t *testing.T, publish bool) *fixture {
	t.Helper()

	client := mocks.NewMockClient(t)
	hub := dashboard.NewHub[dashboard.Snapshot]()
	if publish {
		companies := aggregate.Build(testJobs(), aggregate.Options{Stages: []string{"parsePdf"}})
		hub.Publish(dashboard.Snapshot{
			Companies: companies,
			Summary:   aggregate.Summarize(companies),
			Errors:    map[string]string{"checkDB": "status 503"},
			Jobs:      2,
			FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		})
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cmp := dashboard.NewComparator(client, discrepancy.DefaultOptions(), time.Minute)
	srv := New(config.ServerConfig{AllowedOrigins: []string{"https://ops.example.com"}}, client, hub, cmp, st)
	return &fixture{client: client, hub: hub, store: st, router: srv.Routes()}
}

// expectCompanies stubs one load of both datasets for 2023.
func (f *fixture) expectCompanies() {
	f.client.On("ListCompanies", mock.Anything, garbo.Staging).Return([]model.Company{
		scope1Company("Q1", "Alfa", 2023, 100.4),
		scope1Company("Q2", "Beta", 2023, 2000),
	}, nil).Once()
	f.client.On("ListCompanies", mock.Anything, garbo.Production).Return([]model.Company{
		scope1Company("Q1", "Alfa", 2023, 100),
		scope1Company("Q2", "Beta", 2023, 2),
	}, nil).Once()
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestCORS_AllowedOrigin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, "https://ops.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestQueues_NoSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/api/queues", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "no queue snapshot yet")
}

func TestQueues(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rr := f.do(http.MethodGet, "/api/queues", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[queuesResponse](t, rr)
	assert.Equal(t, 2, resp.Jobs)
	assert.Equal(t, 2, resp.Summary.Companies)
	assert.Equal(t, 1, resp.Summary.ByStatus[model.JobStatusCompleted])
	assert.Equal(t, 1, resp.Summary.ByStatus[model.JobStatusWaiting])
	assert.Equal(t, "status 503", resp.Errors["checkDB"])
}

func TestCompanies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rr := f.do(http.MethodGet, "/api/companies", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	all := decode[[]aggregate.CompanyStatus](t, rr)
	require.Len(t, all, 2)

	rr = f.do(http.MethodGet, "/api/companies?status=waiting", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	waiting := decode[[]aggregate.CompanyStatus](t, rr)
	require.Len(t, waiting, 1)
	assert.Equal(t, "SSAB", waiting[0].Name)

	rr = f.do(http.MethodGet, "/api/companies?status=failed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestCompany(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rr := f.do(http.MethodGet, "/api/companies/Q52", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	c := decode[aggregate.CompanyStatus](t, rr)
	assert.Equal(t, "Volvo", c.Name)

	rr = f.do(http.MethodGet, "/api/companies/Q0", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "company not found")
}

func TestRerun(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.client.On("RerunJob", mock.Anything, "parsePdf", "42").Return(nil).Once()

	rr := f.do(http.MethodPost, "/api/queues/parsePdf/jobs/42/rerun", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRerun_UpstreamErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &resilience.StatusError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"bad request", &resilience.StatusError{StatusCode: http.StatusBadRequest}, http.StatusBadRequest},
		{"server error", resilience.NewTransientError(errors.New("boom"), http.StatusBadGateway), http.StatusBadGateway},
		{"circuit open", resilience.ErrCircuitOpen, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.client.On("RerunJob", mock.Anything, "parsePdf", "42").Return(tt.err).Once()

			rr := f.do(http.MethodPost, "/api/queues/parsePdf/jobs/42/rerun", nil)
			assert.Equal(t, tt.want, rr.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rr)["error"])
		})
	}
}

func TestApprove(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.client.On("ApproveJob", mock.Anything, "extractEmissions", "7", false).Return(nil).Once()

	rr := f.do(http.MethodPost, "/api/queues/extractEmissions/jobs/7/approve", []byte(`{"approved":false}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, false, decode[map[string]any](t, rr)["approved"])
}

func TestApprove_BadBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodPost, "/api/queues/q/jobs/7/approve", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/api/queues/q/jobs/7/approve", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "approved is required")
}

func TestErrorYears(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/years", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"years":[2023]}`, rr.Body.String())
}

func TestErrorOverview(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/overview", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ov := decode[discrepancy.Overview](t, rr)
	assert.Equal(t, 2023, ov.Year)
	assert.Equal(t, 2, ov.Companies)
	assert.Equal(t, 1, ov.Total.Rounding)
	assert.Equal(t, 1, ov.Total.UnitError)

	// Cached within the TTL: a threshold override does not reload.
	rr = f.do(http.MethodGet, "/api/errors/overview?threshold=0", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ov = decode[discrepancy.Overview](t, rr)
	assert.Equal(t, 0.0, ov.RoundingThreshold)
	assert.Equal(t, 0, ov.Total.Rounding)
	assert.Equal(t, 1, ov.Total.SmallError)
}

func TestErrorOverview_BadParams(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	for _, target := range []string{
		"/api/errors/overview?year=abc",
		"/api/errors/overview?threshold=-1",
		"/api/errors/overview?threshold=x",
	} {
		rr := f.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestErrorOverview_UpstreamDown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.client.On("ListCompanies", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("status 503"), http.StatusServiceUnavailable)).Maybe()

	rr := f.do(http.MethodGet, "/api/errors/overview", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestErrorOverview_NoYears(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.client.On("ListCompanies", mock.Anything, mock.Anything).Return([]model.Company{}, nil).Twice()

	rr := f.do(http.MethodGet, "/api/errors/overview", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestErrorDataPoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/datapoints/scope1_total", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[dataPointResponse](t, rr)
	assert.Equal(t, 2023, resp.Year)
	assert.Equal(t, "scope1_total", resp.DataPoint.Key)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, 1, resp.Counts.UnitError)
	assert.Equal(t, 2, resp.Counts.TotalCompanies)
}

func TestErrorDataPoint_Unknown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/api/errors/datapoints/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestErrorWorst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/worst?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ranked := decode[[]discrepancy.CompanyErrors](t, rr)
	require.Len(t, ranked, 1)
	assert.Equal(t, "Beta", ranked[0].Name)
}

func TestExportCSV(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/export.csv?kind=worst", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "discrepancies-worst-2023.csv")
	assert.Contains(t, rr.Body.String(), `"Beta"`)
}

func TestExportCSV_BadKind(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/api/errors/export.csv?kind=everything", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodGet, "/api/errors/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "spreadsheetml")
	// An xlsx workbook is a zip archive.
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"))
}

func TestReports_SaveGetList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodPost, "/api/reports", []byte(`{"note":"nightly"}`))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	saved := decode[store.Report](t, rr)
	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.Equal(t, 2023, saved.Year)
	assert.Equal(t, "nightly", saved.Note)
	require.Len(t, saved.Worst, 2)
	assert.Equal(t, "Beta", saved.Worst[0].Name)

	rr = f.do(http.MethodGet, "/api/reports/"+saved.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[store.Report](t, rr)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.Overview.Total, got.Overview.Total)

	rr = f.do(http.MethodGet, "/api/reports?year=2023", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]store.Report](t, rr), 1)

	rr = f.do(http.MethodGet, "/api/reports?year=2020", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = f.do(http.MethodGet, "/api/reports/history/scope1_total", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	hist := decode[[]store.DataPointHistory](t, rr)
	require.Len(t, hist, 1)
	assert.Equal(t, saved.ID, hist[0].ReportID)
}

func TestReports_EmptyBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.expectCompanies()

	rr := f.do(http.MethodPost, "/api/reports", nil)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestReports_GetErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	rr := f.do(http.MethodGet, "/api/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodGet, "/api/reports/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(http.MethodGet, "/api/reports/history/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReports_NoStore(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	cmp := dashboard.NewComparator(client, discrepancy.DefaultOptions(), time.Minute)
	router := New(config.ServerConfig{}, client, dashboard.NewHub[dashboard.Snapshot](), cmp, nil).Routes()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
