package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
)

// #region eval-harness
// EvalHarness compares the best configuration against the control runs.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run reports three contrasts:
//   - drive_effect_phi: best.phi - C0.phi
//   - bridge_dependence_xi: relative xi drop from best to C1
//   - mapping_dependence_xi: relative xi drop from best to C2
//
// A missing control fails its metric.
func (h *EvalHarness) Run(best Observation, ctrl map[controls.ID]Observation) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	add := func(m EvalMetric, reason string) {
		metrics = append(metrics, m)
		if !m.Pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Drive effect: integration must rise over the undriven baseline
	if c0, ok := ctrl[controls.C0]; ok {
		d := best.Phi - c0.Phi
		add(EvalMetric{Name: "drive_effect_phi", Value: d, Pass: d >= h.config.MinPhiContrast},
			fmt.Sprintf("phi contrast over C0 %.4f below %.4f", d, h.config.MinPhiContrast))
	} else {
		add(EvalMetric{Name: "drive_effect_phi", Missing: true}, "C0 missing")
	}

	// 2-3. Bridge and mapping dependence: xi must drop without them
	for _, dep := range []struct {
		name string
		id   controls.ID
	}{
		{"bridge_dependence_xi", controls.C1},
		{"mapping_dependence_xi", controls.C2},
	} {
		c, ok := ctrl[dep.id]
		if !ok {
			add(EvalMetric{Name: dep.name, Missing: true}, fmt.Sprintf("%s missing", dep.id))
			continue
		}
		drop := relativeDrop(best.Xi(), c.Xi())
		add(EvalMetric{Name: dep.name, Value: drop, Pass: drop >= h.config.MinXiDrop},
			fmt.Sprintf("xi drop under %s %.4f below %.4f", dep.id, drop, h.config.MinXiDrop))
	}

	reason := "all contrasts hold"
	if len(failReasons) > 0 {
		reason = fmt.Sprintf("attribution weak: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("attribution weak: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// relativeDrop is (best-ctrl)/|best|, or 0 when best is zero.
func relativeDrop(best, ctrl float64) float64 {
	if best == 0 {
		return 0
	}
	return (best - ctrl) / math.Abs(best)
}

// #endregion helpers
