package model

// Tolerance is the acceptance band for an identity check. A result
// passes when either bound holds.
type Tolerance struct {
	Absolute float64 `json:"absolute" yaml:"absolute"`
	Relative float64 `json:"relative" yaml:"relative"`
}

// IdentityRule declares an algebraic relationship between variables,
// e.g. "SP / (K * u)" compared against a published reference series.
// Rules are configured statically, never inferred from data.
type IdentityRule struct {
	Name      string    `json:"name" yaml:"name"`
	Formula   string    `json:"formula" yaml:"formula"`
	Inputs    []string  `json:"inputs" yaml:"inputs"`
	Observed  string    `json:"observed" yaml:"observed"`
	Tolerance Tolerance `json:"tolerance" yaml:"tolerance"`
}

// Classification buckets a per-year validation outcome.
type Classification string

const (
	ClassMatch           Classification = "match"
	ClassWithinTolerance Classification = "within-tolerance"
	ClassFlagged         Classification = "flagged"
)

// ValidationResult is one year's identity check. RelativeError is nil
// when the observed value is zero (division undefined, reported as such).
type ValidationResult struct {
	IdentityName   string         `json:"identity_name"`
	Year           int            `json:"year"`
	Expected       float64        `json:"expected"`
	Observed       float64        `json:"observed"`
	AbsoluteError  float64        `json:"absolute_error"`
	RelativeError  *float64       `json:"relative_error"`
	Classification Classification `json:"classification"`
	// GapFilledInputs names input variables whose value for this year
	// was synthesized rather than native. Kept so filled and native
	// points are never conflated in error statistics.
	GapFilledInputs []string `json:"gap_filled_inputs,omitempty"`
}

// IdentitySkip records a year where a rule could not be evaluated.
// A skip is data, not an error.
type IdentitySkip struct {
	IdentityName  string   `json:"identity_name"`
	Year          int      `json:"year"`
	Reason        string   `json:"reason"`
	MissingInputs []string `json:"missing_inputs,omitempty"`
}

// BiasSign labels the direction of a systematic bias.
type BiasSign string

const (
	BiasPositive BiasSign = "positive"
	BiasNegative BiasSign = "negative"
)

// BiasFinding reports a consistently signed error across most years of
// one identity: the signature of a wrong formula or an undocumented
// scaling, as opposed to per-year measurement noise.
type BiasFinding struct {
	IdentityName  string   `json:"identity_name"`
	Sign          BiasSign `json:"sign"`
	MeanError     float64  `json:"mean_error"`
	SameSignShare float64  `json:"same_sign_share"`
	YearsChecked  int      `json:"years_checked"`
}
