package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := NewPostgresFromPool(mock)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS reports`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleReport(2023, "nightly")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reports \(id, year, rounding_threshold, note, overview, worst, created_at\)`).
		WithArgs(pgxmock.AnyArg(), 2023, r.RoundingThreshold, "nightly", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"report_datapoints"}, datapointColumns).
		WillReturnResult(int64(len(r.Overview.DataPoints)))
	mock.ExpectCommit()

	require.NoError(t, s.SaveReport(context.Background(), r))
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), r.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport_CopyFailsRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs(pgxmock.AnyArg(), 2023, pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"report_datapoints"}, datapointColumns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveReport(context.Background(), sampleReport(2023, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: copy datapoints")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	src := sampleReport(2023, "")
	id := uuid.New()
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	overviewJSON, err := json.Marshal(src.Overview)
	require.NoError(t, err)
	worstJSON, err := json.Marshal(src.Worst)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, year, rounding_threshold, note, overview, worst, created_at FROM reports WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "year", "rounding_threshold", "note", "overview", "worst", "created_at"}).
			AddRow(id.String(), 2023, 0.5, "", overviewJSON, worstJSON, created))

	got, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, src.Overview.Total, got.Overview.Total)
	require.Len(t, got.Worst, 1)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, year, rounding_threshold, note, overview, worst, created_at FROM reports WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetReport(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReports(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	overviewJSON, err := json.Marshal(sampleReport(2023, "").Overview)
	require.NoError(t, err)
	id := uuid.New()

	mock.ExpectQuery(`FROM reports WHERE true AND year = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs(2023, 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "year", "rounding_threshold", "note", "overview", "created_at"}).
			AddRow(id.String(), 2023, 0.5, "weekly", overviewJSON, time.Now()))

	reports, err := s.ListReports(context.Background(), ReportFilter{Year: 2023, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].ID)
	assert.Equal(t, "weekly", reports[0].Note)
	assert.Nil(t, reports[0].Worst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReports_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM reports WHERE true ORDER BY created_at DESC, id LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "year", "rounding_threshold", "note", "overview", "created_at"}))

	reports, err := s.ListReports(context.Background(), ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DataPointHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id := uuid.New()

	cols := append([]string{"id", "year", "created_at"}, datapointColumns[2:]...)
	mock.ExpectQuery(`FROM report_datapoints d JOIN reports r`).
		WithArgs("scope1_total", 3).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(id.String(), 2023, time.Now(), 8, 2, 0, 0, 0, 0, 0, 0, 0, 10, 10))

	hist, err := s.DataPointHistory(context.Background(), "scope1_total", 3)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, id, hist[0].ReportID)
	assert.Equal(t, 8, hist[0].Counts.Identical)
	assert.Equal(t, 100.0, hist[0].Rates.Tolerant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectClose()

	s := NewPostgresFromPool(mock)
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
