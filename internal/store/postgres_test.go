package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_CreateRun(t *testing.T) {
	st, mock := newMockStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO recon.runs`).
		WithArgs("run-1", "running", "out", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.CreateRun(context.Background(), model.Run{
		ID: "run-1", Status: model.RunStatusRunning, OutputDir: "out", StartedAt: started,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRun(t *testing.T) {
	st, mock := newMockStore(t)
	finished := time.Date(2026, 3, 1, 12, 0, 3, 0, time.UTC)

	mock.ExpectExec(`UPDATE recon.runs SET`).
		WithArgs("complete", finished, "", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CompleteRun(context.Background(), model.Run{
		ID: "run-1", Status: model.RunStatusComplete, FinishedAt: finished,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRunNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE recon.runs SET`).
		WithArgs("complete", pgxmock.AnyArg(), "", "absent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.CompleteRun(context.Background(), model.Run{ID: "absent", Status: model.RunStatusComplete})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	st, mock := newMockStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)

	mock.ExpectQuery(`SELECT id, status, output_dir, started_at, finished_at, error FROM recon.runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "output_dir", "started_at", "finished_at", "error"}).
			AddRow("run-1", "complete", "out", started, &finished, (*string)(nil)))

	run, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.True(t, run.FinishedAt.Equal(finished))
	assert.Empty(t, run.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRunNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, status, output_dir, started_at, finished_at, error FROM recon.runs`).
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetRun(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns(t *testing.T) {
	st, mock := newMockStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, status, output_dir, started_at, finished_at, error FROM recon.runs ORDER BY started_at DESC`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "output_dir", "started_at", "finished_at", "error"}).
			AddRow("run-2", "running", "out", started.Add(time.Hour), (*time.Time)(nil), (*string)(nil)).
			AddRow("run-1", "complete", "out", started, (*time.Time)(nil), (*string)(nil)))

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveReport(t *testing.T) {
	st, mock := newMockStore(t)

	report := &model.ReconciliationReport{RunID: "run-1"}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO recon.reports`).
		WithArgs("run-1", data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveReport(context.Background(), "run-1", report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetReport(t *testing.T) {
	st, mock := newMockStore(t)

	report := &model.ReconciliationReport{RunID: "run-1"}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT report FROM recon.reports`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"report"}).AddRow(data))

	got, err := st.GetReport(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetReportNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT report FROM recon.reports`).
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetReport(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSeries(t *testing.T) {
	st, mock := newMockStore(t)
	src := "book-a"

	mock.ExpectQuery(`SELECT year, value, unit, source_id, resolution_method`).
		WithArgs("run-1", "sp").
		WillReturnRows(pgxmock.NewRows([]string{"year", "value", "unit", "source_id", "resolution_method"}).
			AddRow(int16(1958), 120.0, "currency-millions", &src, "native").
			AddRow(int16(1959), 122.5, "currency-millions", (*string)(nil), "gap-filled:linear"))

	vs, err := st.GetSeries(context.Background(), "run-1", "sp")
	require.NoError(t, err)
	assert.Equal(t, model.UnitCurrencyMillions, vs.Unit)
	require.Len(t, vs.Points, 2)
	assert.Equal(t, "book-a", vs.Points[1958].SourceID)
	assert.Equal(t, model.ResolutionGapLinear, vs.Points[1959].Method)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSeriesEmptyIsNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT year, value, unit, source_id, resolution_method`).
		WithArgs("run-1", "sp").
		WillReturnRows(pgxmock.NewRows([]string{"year", "value", "unit", "source_id", "resolution_method"}))

	_, err := st.GetSeries(context.Background(), "run-1", "sp")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
