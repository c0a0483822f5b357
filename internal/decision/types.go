package decision

import "errors"

// #region errors

// ErrNoViableConfiguration is returned by Select when every cell failed.
var ErrNoViableConfiguration = errors.New("no viable configuration")

// #endregion errors

// #region config

// Config holds the acceptance thresholds.
type Config struct {
	PhiThreshold  float64 `json:"PHI_THRESHOLD" yaml:"phi_threshold" validate:"gte=0,lte=1"`
	GammaCritical float64 `json:"GAMMA_CRITICAL" yaml:"gamma_critical" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the v2.1 protocol thresholds.
func DefaultConfig() Config {
	return Config{
		PhiThreshold:  0.7734,
		GammaCritical: 0.3,
	}
}

// #endregion config

// #region outcome

// Outcome summarizes a finished sweep for the operator.
type Outcome string

const (
	OutcomeIgnition     Outcome = "ignition"      // best configuration met acceptance
	OutcomeNoAcceptance Outcome = "no_acceptance" // sweep completed, nothing met acceptance
	OutcomeNotExecuted  Outcome = "not_executed"  // no cell produced observables
)

// Describe returns the operator-facing sentence for the outcome.
func (o Outcome) Describe() string {
	switch o {
	case OutcomeIgnition:
		return "ignition achieved"
	case OutcomeNoAcceptance:
		return "sweep completed, no configuration met acceptance criteria"
	case OutcomeNotExecuted:
		return "sweep could not execute"
	default:
		return string(o)
	}
}

// #endregion outcome

// #region candidate

// Candidate is the engine's view of one sweep record.
type Candidate struct {
	Index     int // enumeration order
	Alpha     float64
	K         int
	Xi        float64
	Phi       float64
	Gamma     float64
	Conscious bool
	Viable    bool // false for failed or invalid cells
}

// #endregion candidate

// #region verdict

// Verdict is the output of Select.
type Verdict struct {
	Outcome   Outcome
	Ignited   bool
	BestIndex int // -1 when no candidate was viable
	Best      Candidate
	Viable    int // number of viable candidates considered
	Reason    string
}

// #endregion verdict
