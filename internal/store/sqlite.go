package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/okishio-lab/profitrate-cli/internal/model"
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	output_dir  TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS reports (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	report     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS series_points (
	run_id            TEXT NOT NULL REFERENCES runs(id),
	variable_id       TEXT NOT NULL,
	year              INTEGER NOT NULL,
	value             REAL NOT NULL,
	unit              TEXT NOT NULL,
	source_id         TEXT,
	resolution_method TEXT NOT NULL,
	PRIMARY KEY (run_id, variable_id, year)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_series_points_variable ON series_points(run_id, variable_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, output_dir, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.OutputDir, run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: create run %s", run.ID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run model.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(run.Status), run.FinishedAt, nullIfEmpty(run.Error), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var finished sql.NullTime
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, output_dir, started_at, finished_at, error FROM runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.Status, &run.OutputDir, &run.StartedAt, &finished, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, output_dir, started_at, finished_at, error FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		var finished sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Status, &run.OutputDir, &run.StartedAt, &finished, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, report *model.ReconciliationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, report) VALUES (?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET report = excluded.report`,
		runID, string(data),
	)
	return eris.Wrapf(err, "sqlite: save report for run %s", runID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*model.ReconciliationReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM reports WHERE run_id = ?`, runID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report for run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report for run %s", runID)
	}
	var report model.ReconciliationReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal report for run %s", runID)
	}
	return &report, nil
}

func (s *SQLiteStore) SaveSeries(ctx context.Context, runID string, series map[string]*model.VariableSeries) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO series_points (run_id, variable_id, year, value, unit, source_id, resolution_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, variable_id, year) DO UPDATE SET
		   value = excluded.value, unit = excluded.unit,
		   source_id = excluded.source_id, resolution_method = excluded.resolution_method`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare series insert")
	}
	defer stmt.Close()

	for _, vs := range series {
		for _, year := range vs.Years() {
			p, _ := vs.Point(year)
			if _, err := stmt.ExecContext(ctx,
				runID, vs.VariableID, p.Year, p.Value, string(vs.Unit), p.SourceID, string(p.Method),
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert point %s/%d", vs.VariableID, p.Year)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit series")
}

func (s *SQLiteStore) GetSeries(ctx context.Context, runID, variableID string) (*model.VariableSeries, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, value, unit, source_id, resolution_method
		 FROM series_points WHERE run_id = ? AND variable_id = ? ORDER BY year`,
		runID, variableID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get series %s/%s", runID, variableID)
	}
	defer rows.Close()

	vs := &model.VariableSeries{
		VariableID: variableID,
		Points:     make(map[int]model.SeriesPoint),
	}
	for rows.Next() {
		var p model.SeriesPoint
		var unit string
		var sourceID sql.NullString
		if err := rows.Scan(&p.Year, &p.Value, &unit, &sourceID, &p.Method); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		vs.Unit = model.Unit(unit)
		if sourceID.Valid {
			p.SourceID = sourceID.String
		}
		vs.Points[p.Year] = p
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate points")
	}
	if len(vs.Points) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "series %s for run %s", variableID, runID)
	}
	return vs, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
