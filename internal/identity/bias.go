package identity

import "github.com/okishio-lab/profitrate-cli/internal/model"

// biasShareThreshold is the fraction of years whose signed error must
// agree with the mean's sign before per-year noise is re-read as a
// systematic finding.
const biasShareThreshold = 0.8

// DetectBias looks for a consistently signed error across one
// identity's results: the mean signed error is nonzero and its sign
// holds for more than 80% of years. That pattern points at a wrong
// formula or an undocumented scaling, not measurement noise, and is
// surfaced separately from per-year flags.
//
// Only results whose inputs are all native enter the statistic;
// gap-filled points carry interpolation error of their own and would
// contaminate it. Fewer than two native years is no sample at all: a
// single year cannot show a trend, so no finding is raised.
func DetectBias(results []model.ValidationResult) *model.BiasFinding {
	native := results[:0:0]
	for _, r := range results {
		if len(r.GapFilledInputs) == 0 {
			native = append(native, r)
		}
	}
	if len(native) < 2 {
		return nil
	}

	var sum float64
	for _, r := range native {
		sum += r.Expected - r.Observed
	}
	mean := sum / float64(len(native))
	if mean == 0 {
		return nil
	}

	matching := 0
	for _, r := range native {
		signed := r.Expected - r.Observed
		if (signed > 0) == (mean > 0) && signed != 0 {
			matching++
		}
	}
	share := float64(matching) / float64(len(native))
	if share <= biasShareThreshold {
		return nil
	}

	sign := model.BiasPositive
	if mean < 0 {
		sign = model.BiasNegative
	}
	return &model.BiasFinding{
		IdentityName:  native[0].IdentityName,
		Sign:          sign,
		MeanError:     mean,
		SameSignShare: share,
		YearsChecked:  len(native),
	}
}
