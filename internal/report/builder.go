// Package report aggregates one run's merge decisions, gap actions, and
// validation outcomes into the serializable audit trail. Pure
// aggregation: nothing is recomputed, nothing is dropped.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Inputs collects everything a run produced.
type Inputs struct {
	Series            map[string]*model.VariableSeries
	MergeConflicts    []model.MergeConflict
	GapActions        []model.GapAction
	ValidationResults []model.ValidationResult
	BiasFindings      []model.BiasFinding
	IdentitySkips     []model.IdentitySkip
	FailedSources     []model.SourceFailure
}

// Build assembles the report. Every list is sorted by
// (variable_id | identity_name, year) and the run id is a digest of the
// sorted content, so two runs over identical inputs serialize
// byte-identically.
func Build(in Inputs) *model.ReconciliationReport {
	r := &model.ReconciliationReport{
		MergeConflicts:         append([]model.MergeConflict{}, in.MergeConflicts...),
		GapActions:             append([]model.GapAction{}, in.GapActions...),
		ValidationResults:      append([]model.ValidationResult{}, in.ValidationResults...),
		SystematicBiasFindings: append([]model.BiasFinding{}, in.BiasFindings...),
		IdentitySkips:          append([]model.IdentitySkip{}, in.IdentitySkips...),
		FailedSources:          append([]model.SourceFailure{}, in.FailedSources...),
		IdentityStats:          identityStats(in.ValidationResults),
		Series:                 summaries(in.Series),
	}

	sort.Slice(r.MergeConflicts, func(i, j int) bool {
		a, b := r.MergeConflicts[i], r.MergeConflicts[j]
		if a.VariableID != b.VariableID {
			return a.VariableID < b.VariableID
		}
		return a.Year < b.Year
	})
	sort.Slice(r.GapActions, func(i, j int) bool {
		a, b := r.GapActions[i], r.GapActions[j]
		if a.VariableID != b.VariableID {
			return a.VariableID < b.VariableID
		}
		return a.Year < b.Year
	})
	sort.Slice(r.ValidationResults, func(i, j int) bool {
		a, b := r.ValidationResults[i], r.ValidationResults[j]
		if a.IdentityName != b.IdentityName {
			return a.IdentityName < b.IdentityName
		}
		return a.Year < b.Year
	})
	sort.Slice(r.SystematicBiasFindings, func(i, j int) bool {
		return r.SystematicBiasFindings[i].IdentityName < r.SystematicBiasFindings[j].IdentityName
	})
	sort.Slice(r.IdentitySkips, func(i, j int) bool {
		a, b := r.IdentitySkips[i], r.IdentitySkips[j]
		if a.IdentityName != b.IdentityName {
			return a.IdentityName < b.IdentityName
		}
		return a.Year < b.Year
	})
	sort.Slice(r.FailedSources, func(i, j int) bool {
		a, b := r.FailedSources[i], r.FailedSources[j]
		if a.VariableID != b.VariableID {
			return a.VariableID < b.VariableID
		}
		return a.SourceID < b.SourceID
	})

	r.RunID = contentID(r)
	return r
}

// contentID hashes the sorted report payload. The id is stable across
// reruns of the same inputs and changes whenever any recorded decision
// does.
func contentID(r *model.ReconciliationReport) string {
	data, err := json.Marshal(r)
	if err != nil {
		// Report types marshal by construction.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func summaries(series map[string]*model.VariableSeries) []model.SeriesSummary {
	out := make([]model.SeriesSummary, 0, len(series))
	for _, s := range series {
		sum := model.SeriesSummary{
			VariableID:   s.VariableID,
			Unit:         s.Unit,
			MissingYears: append([]int{}, s.MissingYears...),
		}
		sort.Ints(sum.MissingYears)

		years := s.Years()
		if len(years) > 0 {
			sum.YearMin = years[0]
			sum.YearMax = years[len(years)-1]
		}
		for _, y := range years {
			p, _ := s.Point(y)
			switch p.Method {
			case model.ResolutionNative:
				sum.NativePoints++
			case model.ResolutionMerged:
				sum.MergedPoints++
			case model.ResolutionGapLinear:
				sum.GapFilledPoints++
			case model.ResolutionManualOverride:
				sum.OverriddenPoints++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariableID < out[j].VariableID })
	return out
}

// identityStats computes mean absolute error per identity, native and
// gap-filled years separately. A year counts as filled when any of its
// inputs was synthesized.
func identityStats(results []model.ValidationResult) []model.IdentityStats {
	type acc struct {
		nativeSum   float64
		nativeCount int
		filledSum   float64
		filledCount int
	}
	byName := make(map[string]*acc)
	for _, r := range results {
		a := byName[r.IdentityName]
		if a == nil {
			a = &acc{}
			byName[r.IdentityName] = a
		}
		if len(r.GapFilledInputs) > 0 {
			a.filledSum += r.AbsoluteError
			a.filledCount++
		} else {
			a.nativeSum += r.AbsoluteError
			a.nativeCount++
		}
	}

	out := make([]model.IdentityStats, 0, len(byName))
	for name, a := range byName {
		st := model.IdentityStats{
			IdentityName: name,
			NativeYears:  a.nativeCount,
			FilledYears:  a.filledCount,
		}
		if a.nativeCount > 0 {
			st.NativeMeanAbsError = a.nativeSum / float64(a.nativeCount)
		}
		if a.filledCount > 0 {
			st.FilledMeanAbsError = a.filledSum / float64(a.filledCount)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityName < out[j].IdentityName })
	return out
}
