package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/okishio-lab/profitrate-cli/internal/identity"
	"github.com/okishio-lab/profitrate-cli/internal/model"
	"github.com/okishio-lab/profitrate-cli/internal/report"
	"github.com/okishio-lab/profitrate-cli/internal/series"
	"github.com/okishio-lab/profitrate-cli/internal/source"
	"github.com/okishio-lab/profitrate-cli/internal/store"
)

// Options tunes one reconciliation run.
type Options struct {
	OutputDir     string
	Concurrency   int           // parallel variable chains; default 4
	SourceTimeout time.Duration // per-source file read bound; default 30s
	DryRun        bool          // load, validate, report in memory; write nothing
}

// Engine runs the reconciliation pipeline.
type Engine struct {
	cfg     *StaticConfig
	opts    Options
	archive store.Store // nil = no archiving
}

// New creates an engine. archive may be nil.
func New(cfg *StaticConfig, opts Options, archive store.Store) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 30 * time.Second
	}
	return &Engine{cfg: cfg, opts: opts, archive: archive}
}

// variableResult is one worker's output. Workers write only their own
// slot; nothing is shared until the barrier.
type variableResult struct {
	series     *model.VariableSeries
	conflicts  []model.MergeConflict
	gapActions []model.GapAction
	failures   []model.SourceFailure
}

// Run executes the full pipeline and returns the report plus the
// resolved series. Per-variable failures become report entries; only
// output/archive errors fail the run itself.
func (e *Engine) Run(ctx context.Context) (*model.ReconciliationReport, map[string]*model.VariableSeries, error) {
	// The archive/log id is per-invocation; the report itself carries a
	// content digest so identical runs produce identical artifacts.
	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID))

	log.Info("starting reconciliation",
		zap.Int("variables", len(e.cfg.Catalog.Variables)),
		zap.Int("identities", len(e.cfg.Rules)),
		zap.Int("concurrency", e.opts.Concurrency),
	)

	if e.archive != nil && !e.opts.DryRun {
		run := model.Run{ID: runID, Status: model.RunStatusRunning, OutputDir: e.opts.OutputDir, StartedAt: startedAt}
		if err := e.archive.CreateRun(ctx, run); err != nil {
			return nil, nil, err
		}
	}

	// Per-variable chains are independent: each worker fills exactly one
	// slot. The errgroup Wait is the barrier before validation.
	results := make([]variableResult, len(e.cfg.Catalog.Variables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, spec := range e.cfg.Catalog.Variables {
		g.Go(func() error {
			results[i] = e.runChain(gctx, spec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: cancelled")
	}

	seriesByVar := make(map[string]*model.VariableSeries)
	in := report.Inputs{Series: seriesByVar}
	for i, spec := range e.cfg.Catalog.Variables {
		r := results[i]
		if r.series != nil {
			seriesByVar[spec.VariableID] = r.series
		}
		in.MergeConflicts = append(in.MergeConflicts, r.conflicts...)
		in.GapActions = append(in.GapActions, r.gapActions...)
		in.FailedSources = append(in.FailedSources, r.failures...)
	}

	// Validation starts only now, with every series it reads finished.
	for _, rule := range e.cfg.Rules {
		vr, skips := identity.Validate(rule, seriesByVar)
		in.ValidationResults = append(in.ValidationResults, vr...)
		in.IdentitySkips = append(in.IdentitySkips, skips...)
		if finding := identity.DetectBias(vr); finding != nil {
			in.BiasFindings = append(in.BiasFindings, *finding)
			log.Warn("systematic bias detected",
				zap.String("identity", rule.Name),
				zap.String("sign", string(finding.Sign)),
				zap.Float64("mean_error", finding.MeanError),
			)
		}
	}

	rep := report.Build(in)

	if e.opts.DryRun {
		log.Info("dry run complete", zap.Int("series", len(seriesByVar)))
		return rep, seriesByVar, nil
	}

	if err := report.Write(rep, seriesByVar, e.opts.OutputDir); err != nil {
		e.failArchive(ctx, runID, startedAt, err)
		return nil, nil, err
	}

	if e.archive != nil {
		if err := e.archiveRun(ctx, runID, startedAt, rep, seriesByVar); err != nil {
			return nil, nil, err
		}
	}

	log.Info("reconciliation complete",
		zap.Int("series", len(seriesByVar)),
		zap.Int("conflicts", len(rep.MergeConflicts)),
		zap.Int("gap_actions", len(rep.GapActions)),
		zap.Int("validation_results", len(rep.ValidationResults)),
		zap.Int("bias_findings", len(rep.SystematicBiasFindings)),
		zap.Int("failed_sources", len(rep.FailedSources)),
	)
	return rep, seriesByVar, nil
}

// runChain loads, normalizes, merges, and gap-resolves one variable.
// Failures never propagate: they are recorded and the chain produces
// whatever it still can.
func (e *Engine) runChain(ctx context.Context, spec source.VariableSpec) variableResult {
	var res variableResult
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("variable", spec.VariableID))

	var sets []*model.ObservationSet
	for _, desc := range e.cfg.Catalog.DescriptorsFor(spec.VariableID) {
		set, err := e.loadAndNormalize(ctx, desc, spec.TargetUnit)
		if err != nil {
			stage := "load"
			if eris.Is(err, errNormalize) {
				stage = "normalize"
			}
			log.Warn("source failed", zap.String("source", desc.SourceID), zap.String("stage", stage), zap.Error(err))
			res.failures = append(res.failures, model.SourceFailure{
				VariableID: spec.VariableID,
				SourceID:   desc.SourceID,
				Stage:      stage,
				Error:      err.Error(),
			})
			continue
		}
		sets = append(sets, set)
	}

	if len(sets) == 0 {
		res.failures = append(res.failures, model.SourceFailure{
			VariableID: spec.VariableID,
			Stage:      "merge",
			Error:      "no sources loaded",
		})
		return res
	}

	merged, conflicts, err := series.Merge(sets, spec.Priority)
	if err != nil {
		res.failures = append(res.failures, model.SourceFailure{
			VariableID: spec.VariableID,
			Stage:      "merge",
			Error:      err.Error(),
		})
		return res
	}
	res.conflicts = conflicts

	policy, ok := e.cfg.Policies[spec.VariableID]
	if !ok {
		policy = series.LeaveMissing()
	}
	bounds := model.YearRange{Min: model.MinYear, Max: model.MaxYear}
	resolved, actions, err := series.Resolve(merged, policy, bounds)
	if err != nil {
		// A bad fill action loses only the fill, not the series.
		log.Warn("gap resolution failed", zap.Error(err))
		res.failures = append(res.failures, model.SourceFailure{
			VariableID: spec.VariableID,
			Stage:      "gap-resolve",
			Error:      err.Error(),
		})
		res.series = merged
		return res
	}

	res.series = resolved
	res.gapActions = actions
	return res
}

// errNormalize distinguishes normalization failures from load failures
// for report staging.
var errNormalize = eris.New("normalization failed")

func (e *Engine) loadAndNormalize(ctx context.Context, desc source.Descriptor, target model.Unit) (*model.ObservationSet, error) {
	// NativeUnitFor was verified during LoadStatic.
	nativeUnit, err := e.cfg.Units.NativeUnitFor(desc.SourceID, desc.VariableID)
	if err != nil {
		return nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, e.opts.SourceTimeout)
	defer cancel()

	set, err := source.Load(loadCtx, desc, nativeUnit)
	if err != nil {
		return nil, err
	}

	normalized, err := e.cfg.Units.Normalize(set, target)
	if err != nil {
		return nil, eris.Wrap(errNormalize, err.Error())
	}
	return normalized, nil
}

func (e *Engine) archiveRun(ctx context.Context, runID string, startedAt time.Time, rep *model.ReconciliationReport, seriesByVar map[string]*model.VariableSeries) error {
	if err := e.archive.SaveReport(ctx, runID, rep); err != nil {
		return err
	}
	if err := e.archive.SaveSeries(ctx, runID, seriesByVar); err != nil {
		return err
	}
	return e.archive.CompleteRun(ctx, model.Run{
		ID:         runID,
		Status:     model.RunStatusComplete,
		OutputDir:  e.opts.OutputDir,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	})
}

func (e *Engine) failArchive(ctx context.Context, runID string, startedAt time.Time, cause error) {
	if e.archive == nil {
		return
	}
	err := e.archive.CompleteRun(ctx, model.Run{
		ID:         runID,
		Status:     model.RunStatusFailed,
		OutputDir:  e.opts.OutputDir,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Error:      cause.Error(),
	})
	if err != nil {
		zap.L().Error("failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}
