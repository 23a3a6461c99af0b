package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/okishio-lab/profitrate-cli/internal/model"
	"github.com/okishio-lab/profitrate-cli/internal/pipeline"
	"github.com/okishio-lab/profitrate-cli/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the full reconciliation pipeline",
	Long:  "Loads every configured source, normalizes units, merges by priority, resolves gaps, validates identities, and writes the report and per-variable CSVs to the output directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		paths := pipeline.ConfigPaths{}
		paths.Sources, _ = cmd.Flags().GetString("sources-config")
		paths.Units, _ = cmd.Flags().GetString("units-config")
		paths.GapPolicy, _ = cmd.Flags().GetString("gap-policy-config")
		paths.Identities, _ = cmd.Flags().GetString("identities-config")

		static, err := pipeline.LoadStatic(paths)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		opts := pipeline.Options{
			OutputDir:     cfg.Reconcile.OutputDir,
			Concurrency:   cfg.Reconcile.Concurrency,
			SourceTimeout: time.Duration(cfg.Reconcile.SourceTimeoutSecs) * time.Second,
		}
		if out, _ := cmd.Flags().GetString("output-dir"); out != "" {
			opts.OutputDir = out
		}
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			opts.Concurrency = c
		}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")

		var archive store.Store
		if ok, _ := cmd.Flags().GetBool("archive"); ok && !opts.DryRun {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			archive = st
		}

		eng := pipeline.New(static, opts, archive)
		started := time.Now()
		rep, _, err := eng.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		formatReportSummary(os.Stdout, rep, time.Since(started), opts.DryRun)
		return nil
	},
}

// formatReportSummary prints a short human summary of a finished run.
// Flagged identities are reported, not fatal.
func formatReportSummary(w *os.File, rep *model.ReconciliationReport, elapsed time.Duration, dryRun bool) {
	flagged := 0
	for _, res := range rep.ValidationResults {
		if res.Classification == model.ClassFlagged {
			flagged++
		}
	}

	fmt.Fprintf(w, "Run %s finished in %s\n", rep.RunID, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  series:            %d\n", len(rep.Series))
	fmt.Fprintf(w, "  merge conflicts:   %d\n", len(rep.MergeConflicts))
	fmt.Fprintf(w, "  gap actions:       %d\n", len(rep.GapActions))
	fmt.Fprintf(w, "  identity checks:   %d (%d flagged)\n", len(rep.ValidationResults), flagged)
	fmt.Fprintf(w, "  identity skips:    %d\n", len(rep.IdentitySkips))
	fmt.Fprintf(w, "  bias findings:     %d\n", len(rep.SystematicBiasFindings))
	fmt.Fprintf(w, "  failed sources:    %d\n", len(rep.FailedSources))
	if dryRun {
		fmt.Fprintln(w, "  (dry run: nothing written)")
	}
}

func init() {
	reconcileCmd.Flags().String("sources-config", "sources.yaml", "source catalog config file")
	reconcileCmd.Flags().String("units-config", "units.yaml", "unit declarations and conversions config file")
	reconcileCmd.Flags().String("gap-policy-config", "gap-policy.yaml", "per-variable gap policy config file")
	reconcileCmd.Flags().String("identities-config", "identities.yaml", "identity rules config file")
	reconcileCmd.Flags().String("output-dir", "", "output directory (default from config)")
	reconcileCmd.Flags().Int("concurrency", 0, "parallel variable chains (default from config)")
	reconcileCmd.Flags().Bool("archive", false, "archive the run to the configured store")
	reconcileCmd.Flags().Bool("dry-run", false, "run the full pipeline but write nothing")

	rootCmd.AddCommand(reconcileCmd)
}
