package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

func TestClassify(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name      string
		set       observables.Set
		conscious bool
		stable    bool
	}{
		{"accepted", observables.Set{Phi: 0.8, Gamma: 0.1}, true, true},
		{"phi at threshold", observables.Set{Phi: 0.7734, Gamma: 0.29}, true, true},
		{"gamma at critical", observables.Set{Phi: 0.9, Gamma: 0.3}, false, false},
		{"low phi stable", observables.Set{Phi: 0.1, Gamma: 0.01}, false, true},
		{"noisy", observables.Set{Phi: 0.2, Gamma: 0.9}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Classify(tt.set)
			assert.Equal(t, tt.conscious, got.Conscious)
			assert.Equal(t, tt.stable, got.Stable)
			assert.Equal(t, tt.set.Phi, got.Phi)
		})
	}
}

func TestSelect_ArgmaxXi(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cands := []Candidate{
		{Index: 0, Xi: 1.0, Viable: true},
		{Index: 1, Xi: 5.0, Phi: 0.9, Gamma: 0.1, Conscious: true, Viable: true},
		{Index: 2, Xi: 9.0, Viable: false},
		{Index: 3, Xi: 2.0, Viable: true},
	}

	v, err := e.Select(cands)
	require.NoError(t, err)
	assert.Equal(t, 1, v.BestIndex)
	assert.True(t, v.Ignited)
	assert.Equal(t, OutcomeIgnition, v.Outcome)
	assert.Equal(t, 3, v.Viable)
}

func TestSelect_TiesGoToEarliest(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cands := []Candidate{
		{Index: 4, Xi: 3.0, Viable: true},
		{Index: 2, Xi: 3.0, Viable: true},
		{Index: 7, Xi: 3.0, Viable: true},
	}

	v, err := e.Select(cands)
	require.NoError(t, err)
	assert.Equal(t, 2, v.BestIndex)
}

func TestSelect_NoAcceptance(t *testing.T) {
	e := NewEngine(DefaultConfig())
	v, err := e.Select([]Candidate{{Index: 0, Xi: 0.5, Phi: 0.2, Gamma: 0.1, Viable: true}})

	require.NoError(t, err)
	assert.False(t, v.Ignited)
	assert.Equal(t, OutcomeNoAcceptance, v.Outcome)
	assert.Contains(t, v.Reason, "phi=0.2000 < 0.7734")
}

func TestSelect_AllFailed(t *testing.T) {
	e := NewEngine(DefaultConfig())

	v, err := e.Select([]Candidate{{Index: 0}, {Index: 1}})
	require.ErrorIs(t, err, ErrNoViableConfiguration)
	assert.Equal(t, OutcomeNotExecuted, v.Outcome)
	assert.Equal(t, -1, v.BestIndex)

	_, err = e.Select(nil)
	require.ErrorIs(t, err, ErrNoViableConfiguration)
}

func TestOutcome_Describe(t *testing.T) {
	assert.NotEqual(t, OutcomeNoAcceptance.Describe(), OutcomeNotExecuted.Describe())
	assert.Equal(t, "sweep could not execute", OutcomeNotExecuted.Describe())
}
