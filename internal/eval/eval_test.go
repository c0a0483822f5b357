package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

var best = Observation{Phi: 0.8, Lambda: 0.9, Gamma: 0.1}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	require.Failf(t, "metric not found", "%s", name)
	return EvalMetric{}
}

func TestEvalPassesWithStrongContrasts(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	r := h.Run(best, map[controls.ID]Observation{
		controls.C0: {Phi: 0.2, Lambda: 0.9, Gamma: 0.1},
		controls.C1: {Phi: 0.4, Lambda: 0.9, Gamma: 0.2},
		controls.C2: {Phi: 0.5, Lambda: 0.8, Gamma: 0.2},
	})

	assert.True(t, r.Passed, r.Reason)
	assert.Len(t, r.Metrics, 3)
	assert.InDelta(t, 0.6, metric(t, r, "drive_effect_phi").Value, 1e-12)
	// best xi = 7.2, C1 xi = 1.8
	assert.InDelta(t, 0.75, metric(t, r, "bridge_dependence_xi").Value, 1e-6)
}

func TestEvalFailsWhenControlMatchesTreatment(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	r := h.Run(best, map[controls.ID]Observation{
		controls.C0: {Phi: 0.2, Lambda: 0.9, Gamma: 0.1},
		controls.C1: best,
		controls.C2: {Phi: 0.1, Lambda: 0.9, Gamma: 0.5},
	})

	assert.False(t, r.Passed)
	assert.False(t, metric(t, r, "bridge_dependence_xi").Pass)
	assert.True(t, metric(t, r, "mapping_dependence_xi").Pass)
	assert.Contains(t, r.Reason, "C1")
}

func TestEvalMissingControls(t *testing.T) {
	r := NewEvalHarness(DefaultEvalConfig()).Run(best, nil)

	assert.False(t, r.Passed)
	for _, m := range r.Metrics {
		assert.True(t, m.Missing, m.Name)
		assert.False(t, m.Pass, m.Name)
	}
	assert.Contains(t, r.Reason, "3 checks")
}

func TestObservation_FromSetAndXi(t *testing.T) {
	o := FromSet(observables.Set{Phi: 0.5, Lambda: 0.8, Gamma: 0.2, Xi: 99, Conscious: true})
	assert.Equal(t, Observation{Phi: 0.5, Lambda: 0.8, Gamma: 0.2}, o)
	assert.InDelta(t, 2.0, o.Xi(), 1e-8)
}

func TestRelativeDrop_ZeroBest(t *testing.T) {
	assert.Equal(t, 0.0, relativeDrop(0, 3))
}
