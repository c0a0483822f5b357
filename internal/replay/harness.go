// Package replay re-applies the decision rule to a stored artifact, e.g. to
// see how a sweep would have been judged under different thresholds.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/eval"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region types
// ReplayConfig bundles the thresholds and attribution contrasts for a replay.
type ReplayConfig struct {
	Decision decision.Config
	Eval     eval.EvalConfig
}

// DefaultReplayConfig returns the defaults of both stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Decision: decision.DefaultConfig(),
		Eval:     eval.DefaultEvalConfig(),
	}
}

// CellReplay captures how one recorded cell is classified before and after.
type CellReplay struct {
	Position int // index into the artifact's results
	Alpha    float64
	K        int
	Before   observables.Set
	After    observables.Set
	Changed  bool // conscious or stable flag differs
}

// ReplaySummary provides aggregate stats from a replay.
type ReplaySummary struct {
	Cells          int // results with observables
	Failed         int // cells recorded without a distribution
	Changed        int
	Before         evidence.Verdict
	After          decision.Verdict
	VerdictFlipped bool // ignition status differs
	Attribution    *eval.EvalResult
}

// #endregion types

// #region replay
// Replay reclassifies every result of a under config. The error wraps
// decision.ErrNoViableConfiguration when no result has observables; the
// summary is still filled in.
func Replay(a evidence.Artifact, config ReplayConfig) ([]CellReplay, ReplaySummary, error) {
	engine := decision.NewEngine(config.Decision)
	cells := make([]CellReplay, 0, len(a.Results))
	candidates := make([]decision.Candidate, 0, len(a.Results))

	summary := ReplaySummary{
		Failed: len(a.FailedCells),
		Before: a.Verdict,
	}

	for i, r := range a.Results {
		cand := decision.Candidate{Index: i, Alpha: r.Alpha, K: r.K}
		if r.CCCE != nil {
			after := engine.Classify(*r.CCCE)
			cell := CellReplay{
				Position: i,
				Alpha:    r.Alpha,
				K:        r.K,
				Before:   *r.CCCE,
				After:    after,
				Changed:  after.Conscious != r.CCCE.Conscious || after.Stable != r.CCCE.Stable,
			}
			if cell.Changed {
				summary.Changed++
			}
			cells = append(cells, cell)
			summary.Cells++

			cand.Viable = true
			cand.Xi = after.Xi
			cand.Phi = after.Phi
			cand.Gamma = after.Gamma
			cand.Conscious = after.Conscious
		}
		candidates = append(candidates, cand)
	}

	verdict, err := engine.Select(candidates)
	summary.After = verdict
	summary.VerdictFlipped = verdict.Ignited != a.Verdict.Ignited
	if err != nil {
		return cells, summary, fmt.Errorf("replay %s: %w", a.RunID, err)
	}

	best := eval.FromSet(*a.Results[verdict.BestIndex].CCCE)
	attr := eval.NewEvalHarness(config.Eval).Run(best, controlObservations(a.Controls))
	summary.Attribution = &attr
	return cells, summary, nil
}

// #endregion replay

// #region helpers
func controlObservations(rs []evidence.ControlResult) map[controls.ID]eval.Observation {
	out := make(map[controls.ID]eval.Observation, len(rs))
	for _, c := range rs {
		if c.CCCE == nil {
			continue
		}
		out[controls.ID(c.Control)] = eval.Observation{Phi: c.CCCE.Phi, Lambda: c.CCCE.Lambda, Gamma: c.CCCE.Gamma}
	}
	return out
}

// #endregion helpers
