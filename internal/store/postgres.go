package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/okishio-lab/profitrate-cli/internal/db"
	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Series points go through
// the bulk-upsert path; runs and reports are single-row writes.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests inject pgxmock here.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS recon;

CREATE TABLE IF NOT EXISTS recon.runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	output_dir  TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS recon.reports (
	run_id TEXT PRIMARY KEY REFERENCES recon.runs(id),
	report JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS recon.series_points (
	run_id            TEXT NOT NULL REFERENCES recon.runs(id),
	variable_id       TEXT NOT NULL,
	year              SMALLINT NOT NULL,
	value             DOUBLE PRECISION NOT NULL,
	unit              TEXT NOT NULL,
	source_id         TEXT,
	resolution_method TEXT NOT NULL,
	PRIMARY KEY (run_id, variable_id, year)
);

CREATE INDEX IF NOT EXISTS idx_recon_runs_started_at ON recon.runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recon.runs (id, status, output_dir, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.OutputDir, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: create run %s", run.ID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run model.Run) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recon.runs SET status = $1, finished_at = $2, error = NULLIF($3, '') WHERE id = $4`,
		string(run.Status), run.FinishedAt, run.Error, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var finished *time.Time
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, output_dir, started_at, finished_at, error FROM recon.runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Status, &run.OutputDir, &run.StartedAt, &finished, &errMsg)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, output_dir, started_at, finished_at, error FROM recon.runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var finished *time.Time
		var errMsg *string
		if err := rows.Scan(&run.ID, &run.Status, &run.OutputDir, &run.StartedAt, &finished, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if finished != nil {
			run.FinishedAt = *finished
		}
		if errMsg != nil {
			run.Error = *errMsg
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SaveReport(ctx context.Context, runID string, report *model.ReconciliationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recon.reports (run_id, report) VALUES ($1, $2)
		 ON CONFLICT (run_id) DO UPDATE SET report = EXCLUDED.report`,
		runID, data,
	)
	return eris.Wrapf(err, "postgres: save report for run %s", runID)
}

func (s *PostgresStore) GetReport(ctx context.Context, runID string) (*model.ReconciliationReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM recon.reports WHERE run_id = $1`, runID,
	).Scan(&data)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report for run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report for run %s", runID)
	}
	var report model.ReconciliationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal report for run %s", runID)
	}
	return &report, nil
}

func (s *PostgresStore) SaveSeries(ctx context.Context, runID string, series map[string]*model.VariableSeries) error {
	var rows [][]any
	for _, vs := range series {
		for _, year := range vs.Years() {
			p, _ := vs.Point(year)
			rows = append(rows, []any{
				runID, vs.VariableID, int16(p.Year), p.Value,
				string(vs.Unit), p.SourceID, string(p.Method),
			})
		}
	}

	_, err := db.CopyUpsert(ctx, s.pool, "recon.series_points",
		[]string{"run_id", "variable_id", "year", "value", "unit", "source_id", "resolution_method"},
		[]string{"run_id", "variable_id", "year"},
		rows)
	return eris.Wrapf(err, "postgres: save series for run %s", runID)
}

func (s *PostgresStore) GetSeries(ctx context.Context, runID, variableID string) (*model.VariableSeries, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, value, unit, source_id, resolution_method
		 FROM recon.series_points WHERE run_id = $1 AND variable_id = $2 ORDER BY year`,
		runID, variableID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get series %s/%s", runID, variableID)
	}
	defer rows.Close()

	vs := &model.VariableSeries{
		VariableID: variableID,
		Points:     make(map[int]model.SeriesPoint),
	}
	for rows.Next() {
		var p model.SeriesPoint
		var year int16
		var unit string
		var sourceID *string
		if err := rows.Scan(&year, &p.Value, &unit, &sourceID, &p.Method); err != nil {
			return nil, eris.Wrap(err, "postgres: scan point")
		}
		p.Year = int(year)
		vs.Unit = model.Unit(unit)
		if sourceID != nil {
			p.SourceID = *sourceID
		}
		vs.Points[p.Year] = p
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate points")
	}
	if len(vs.Points) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "series %s for run %s", variableID, runID)
	}
	return vs, nil
}
