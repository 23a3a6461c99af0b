// Package store archives finished reconciliation runs: run metadata,
// the report JSON, and every resolved series point. History is
// append-only; reconciliation itself never reads it.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Store is the archive interface.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	CompleteRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Artifacts
	SaveReport(ctx context.Context, runID string, report *model.ReconciliationReport) error
	GetReport(ctx context.Context, runID string) (*model.ReconciliationReport, error)
	SaveSeries(ctx context.Context, runID string, series map[string]*model.VariableSeries) error
	GetSeries(ctx context.Context, runID, variableID string) (*model.VariableSeries, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a run, report, or series is not archived.
var ErrNotFound = eris.New("store: not found")

// New opens a store for the configured driver.
func New(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: sqlite, postgres)", driver)
	}
}
