package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/extraction-ops/internal/discrepancy"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id                 TEXT PRIMARY KEY,
	year               INTEGER NOT NULL,
	rounding_threshold REAL NOT NULL,
	note               TEXT NOT NULL DEFAULT '',
	overview           TEXT NOT NULL,
	worst              TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS report_datapoints (
	report_id       TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	data_point      TEXT NOT NULL,
	identical       INTEGER NOT NULL DEFAULT 0,
	rounding        INTEGER NOT NULL DEFAULT 0,
	small_error     INTEGER NOT NULL DEFAULT 0,
	unit_error      INTEGER NOT NULL DEFAULT 0,
	category_error  INTEGER NOT NULL DEFAULT 0,
	hallucination   INTEGER NOT NULL DEFAULT 0,
	missing         INTEGER NOT NULL DEFAULT 0,
	both_null       INTEGER NOT NULL DEFAULT 0,
	error           INTEGER NOT NULL DEFAULT 0,
	total_companies INTEGER NOT NULL DEFAULT 0,
	with_any_data   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (report_id, data_point)
);

CREATE INDEX IF NOT EXISTS idx_reports_year ON reports(year);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_report_datapoints_data_point ON report_datapoints(data_point);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r *Report) error {
	prepare(r, time.Now())

	overviewJSON, err := json.Marshal(r.Overview)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal overview")
	}
	worstJSON, err := json.Marshal(r.Worst)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal worst")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, year, rounding_threshold, note, overview, worst, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Year, r.RoundingThreshold, r.Note, string(overviewJSON), string(worstJSON), r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert report %s", r.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(datapointColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO report_datapoints (`+strings.Join(datapointColumns, ", ")+`) VALUES (`+placeholders+`)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare datapoint insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range datapointRows(r) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert datapoint %v", row[1])
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, year, rounding_threshold, note, overview, worst, created_at FROM reports WHERE id = ?`,
		id.String(),
	)
	r, err := scanReport(row, true)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := `SELECT id, year, rounding_threshold, note, overview, NULL, created_at FROM reports WHERE 1=1`
	var args []any

	if filter.Year != 0 {
		query += ` AND year = ?`
		args = append(args, filter.Year)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows, false)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) DataPointHistory(ctx context.Context, dataPoint string, limit int) ([]DataPointHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.year, r.created_at, `+qualified("d", datapointColumns[2:])+`
		 FROM report_datapoints d JOIN reports r ON r.id = d.report_id
		 WHERE d.data_point = ?
		 ORDER BY r.created_at DESC, r.id LIMIT ?`,
		dataPoint, limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: datapoint history %s", dataPoint)
	}
	defer rows.Close() //nolint:errcheck

	var out []DataPointHistory
	for rows.Next() {
		var h DataPointHistory
		var id string
		dest := append([]any{&id, &h.Year, &h.CreatedAt}, countTargets(&h.Counts)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan datapoint history")
		}
		if h.ReportID, err = uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse report id %q", id)
		}
		h.Rates = h.Counts.Rates()
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: datapoint history iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable, withWorst bool) (*Report, error) {
	var r Report
	var id, overviewJSON string
	var worstJSON sql.NullString

	if err := row.Scan(&id, &r.Year, &r.RoundingThreshold, &r.Note, &overviewJSON, &worstJSON, &r.CreatedAt); err != nil {
		return nil, err
	}
	return decodeReport(&r, id, []byte(overviewJSON), worstJSON.Valid && withWorst, []byte(worstJSON.String))
}

// decodeReport fills the JSON columns of r.
func decodeReport(r *Report, id string, overview []byte, hasWorst bool, worst []byte) (*Report, error) {
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(err, "store: parse report id %q", id)
	}
	if err := json.Unmarshal(overview, &r.Overview); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal overview")
	}
	if hasWorst && len(worst) > 0 {
		var w []discrepancy.CompanyErrors
		if err := json.Unmarshal(worst, &w); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal worst")
		}
		r.Worst = w
	}
	return r, nil
}

// qualified prefixes every column with alias.
func qualified(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
