package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/extraction-ops/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresFromPool(pool), nil
}

// NewPostgresFromPool wraps an existing pool. Close closes the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	year               INTEGER NOT NULL,
	rounding_threshold DOUBLE PRECISION NOT NULL,
	note               TEXT NOT NULL DEFAULT '',
	overview           JSONB NOT NULL,
	worst              JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
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
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_report_datapoints_data_point ON report_datapoints(data_point);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *Report) error {
	prepare(r, s.now())

	overviewJSON, err := json.Marshal(r.Overview)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal overview")
	}
	worstJSON, err := json.Marshal(r.Worst)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal worst")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (id, year, rounding_threshold, note, overview, worst, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.String(), r.Year, r.RoundingThreshold, r.Note, overviewJSON, worstJSON, r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert report %s", r.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "report_datapoints", datapointColumns, datapointRows(r)); err != nil {
		return eris.Wrap(err, "postgres: copy datapoints")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit report")
}

func (s *PostgresStore) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	var r Report
	var rid string
	var overviewJSON, worstJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, year, rounding_threshold, note, overview, worst, created_at FROM reports WHERE id = $1`,
		id.String(),
	).Scan(&rid, &r.Year, &r.RoundingThreshold, &r.Note, &overviewJSON, &worstJSON, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get report %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return decodeReport(&r, rid, overviewJSON, worstJSON != nil, worstJSON)
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := `SELECT id, year, rounding_threshold, note, overview, created_at FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Year != 0 {
		query += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, filter.Year)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var rid string
		var overviewJSON []byte
		if err := rows.Scan(&rid, &r.Year, &r.RoundingThreshold, &r.Note, &overviewJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		if _, err := decodeReport(&r, rid, overviewJSON, false, nil); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) DataPointHistory(ctx context.Context, dataPoint string, limit int) ([]DataPointHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.year, r.created_at, `+qualified("d", datapointColumns[2:])+`
		 FROM report_datapoints d JOIN reports r ON r.id = d.report_id
		 WHERE d.data_point = $1
		 ORDER BY r.created_at DESC, r.id LIMIT $2`,
		dataPoint, limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: datapoint history %s", dataPoint)
	}
	defer rows.Close()

	var out []DataPointHistory
	for rows.Next() {
		var h DataPointHistory
		var id string
		dest := append([]any{&id, &h.Year, &h.CreatedAt}, countTargets(&h.Counts)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan datapoint history")
		}
		if h.ReportID, err = uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse report id %q", id)
		}
		h.Rates = h.Counts.Rates()
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: datapoint history iterate")
}
