package eval

import "github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"

// #region eval-config
// EvalConfig holds the minimum contrasts between the best configuration and
// its controls.
type EvalConfig struct {
	MinPhiContrast float64 `yaml:"min_phi_contrast" validate:"gte=0"`  // best.phi - C0.phi
	MinXiDrop      float64 `yaml:"min_xi_drop" validate:"gte=0,lte=1"` // relative xi drop under C1/C2
}

// DefaultEvalConfig returns the contrasts used for reporting.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinPhiContrast: 0.05,
		MinXiDrop:      0.1,
	}
}

// #endregion eval-config

// #region observation
// Observation is the part of an observable set that controls report.
type Observation struct {
	Phi    float64
	Lambda float64
	Gamma  float64
}

// FromSet drops the acceptance flags.
func FromSet(s observables.Set) Observation {
	return Observation{Phi: s.Phi, Lambda: s.Lambda, Gamma: s.Gamma}
}

// Xi recomputes the composite index.
func (o Observation) Xi() float64 {
	return observables.CompositeIndex(o.Phi, o.Lambda, o.Gamma)
}

// #endregion observation

// #region eval-metric
// EvalMetric captures a single attribution check.
type EvalMetric struct {
	Name    string
	Value   float64
	Pass    bool
	Missing bool // control did not run or produced no observables
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the attribution report. It never changes the verdict.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
