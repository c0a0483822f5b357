package decision

import (
	"fmt"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region engine

// Engine applies the acceptance rule and selects the best configuration.
type Engine struct {
	config Config
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Config returns the thresholds in effect.
func (e *Engine) Config() Config {
	return e.config
}

// #endregion engine

// #region classify

// Classify fills the acceptance flags of set:
// stable = gamma < GammaCritical, conscious = phi >= PhiThreshold and stable.
func (e *Engine) Classify(set observables.Set) observables.Set {
	set.Stable = set.Gamma < e.config.GammaCritical
	set.Conscious = set.Phi >= e.config.PhiThreshold && set.Stable
	return set
}

// #endregion classify

// #region select

// Select picks the viable candidate with the largest composite index. Ties go
// to the lowest Index. The verdict's Ignited flag is the best candidate's
// Conscious flag.
func (e *Engine) Select(candidates []Candidate) (Verdict, error) {
	best := -1
	viable := 0
	for i, c := range candidates {
		if !c.Viable {
			continue
		}
		viable++
		if best < 0 || c.Xi > candidates[best].Xi ||
			(c.Xi == candidates[best].Xi && c.Index < candidates[best].Index) {
			best = i
		}
	}

	if best < 0 {
		return Verdict{
			Outcome:   OutcomeNotExecuted,
			BestIndex: -1,
			Reason:    fmt.Sprintf("0 of %d cells produced observables", len(candidates)),
		}, fmt.Errorf("select: %w", ErrNoViableConfiguration)
	}

	b := candidates[best]
	v := Verdict{
		Outcome:   OutcomeNoAcceptance,
		Ignited:   b.Conscious,
		BestIndex: b.Index,
		Best:      b,
		Viable:    viable,
	}
	if b.Conscious {
		v.Outcome = OutcomeIgnition
		v.Reason = fmt.Sprintf("best xi=%.4f at alpha=%.4f K=%d: phi=%.4f >= %.4f, gamma=%.4f < %.4f",
			b.Xi, b.Alpha, b.K, b.Phi, e.config.PhiThreshold, b.Gamma, e.config.GammaCritical)
	} else {
		v.Reason = fmt.Sprintf("best xi=%.4f at alpha=%.4f K=%d: %s",
			b.Xi, b.Alpha, b.K, e.rejection(b))
	}
	return v, nil
}

// #endregion select

// #region helpers

// rejection names the criterion the candidate missed.
func (e *Engine) rejection(c Candidate) string {
	switch {
	case c.Gamma >= e.config.GammaCritical:
		return fmt.Sprintf("gamma=%.4f >= %.4f", c.Gamma, e.config.GammaCritical)
	case c.Phi < e.config.PhiThreshold:
		return fmt.Sprintf("phi=%.4f < %.4f", c.Phi, e.config.PhiThreshold)
	default:
		return "not conscious"
	}
}

// #endregion helpers
