package model

import "time"

// RejectedValue is a source observation that lost a merge conflict.
type RejectedValue struct {
	SourceID string  `json:"source_id"`
	Value    float64 `json:"value"`
	// Delta is chosen minus rejected, in the series' canonical unit.
	Delta float64 `json:"delta"`
}

// MergeConflict records two or more sources disagreeing for one year,
// and which one the priority policy picked. Disagreement is never
// silently discarded.
type MergeConflict struct {
	VariableID   string          `json:"variable_id"`
	Year         int             `json:"year"`
	ChosenSource string          `json:"chosen_source"`
	ChosenValue  float64         `json:"chosen_value"`
	Rejected     []RejectedValue `json:"rejected"`
	Rationale    string          `json:"rationale"`
}

// GapAction records one fill applied by the gap resolver.
type GapAction struct {
	VariableID string           `json:"variable_id"`
	Year       int              `json:"year"`
	Policy     string           `json:"policy"`
	Value      float64          `json:"value"`
	Method     ResolutionMethod `json:"resolution_method"`
	Rationale  string           `json:"rationale"`
}

// SourceFailure records a per-variable stage failure that was downgraded
// to a report entry so the rest of the run could proceed.
type SourceFailure struct {
	VariableID string `json:"variable_id"`
	SourceID   string `json:"source_id,omitempty"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// SeriesSummary is the per-variable coverage digest included in the report.
type SeriesSummary struct {
	VariableID       string `json:"variable_id"`
	Unit             Unit   `json:"unit"`
	YearMin          int    `json:"year_min"`
	YearMax          int    `json:"year_max"`
	NativePoints     int    `json:"native_points"`
	MergedPoints     int    `json:"merged_points"`
	GapFilledPoints  int    `json:"gap_filled_points"`
	OverriddenPoints int    `json:"overridden_points"`
	MissingYears     []int  `json:"missing_years,omitempty"`
}

// IdentityStats summarizes evaluation error for one identity, with
// native and gap-filled years kept strictly apart.
type IdentityStats struct {
	IdentityName       string  `json:"identity_name"`
	NativeYears        int     `json:"native_years"`
	NativeMeanAbsError float64 `json:"native_mean_abs_error"`
	FilledYears        int     `json:"filled_years"`
	FilledMeanAbsError float64 `json:"filled_mean_abs_error"`
}

// ReconciliationReport is the full audit trail of one run: every merge
// conflict, gap action, validation result, bias finding, skip, and
// source failure, each appearing exactly once. RunID is a digest of the
// report's own content, so identical inputs and configuration serialize
// byte-identically; wall-clock timing lives on the archive Run record,
// never here.
type ReconciliationReport struct {
	RunID string `json:"run_id"`

	MergeConflicts         []MergeConflict    `json:"merge_conflicts"`
	GapActions             []GapAction        `json:"gap_actions"`
	ValidationResults      []ValidationResult `json:"validation_results"`
	SystematicBiasFindings []BiasFinding      `json:"systematic_bias_findings"`
	IdentitySkips          []IdentitySkip     `json:"identity_skips"`
	IdentityStats          []IdentityStats    `json:"identity_stats"`
	FailedSources          []SourceFailure    `json:"failed_sources"`
	Series                 []SeriesSummary    `json:"series"`
}

// RunStatus tracks an archived run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the archive record for one reconciliation run.
type Run struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	OutputDir  string    `json:"output_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}
