package sweep

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/executor"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/metrics"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region helpers

// testPartition gives a 9-qubit register.
var testPartition = circuit.Partition{L: 4, R: 4, Anc: 1}

type execFunc func(ctx context.Context, c executor.Compiled, shots int) (executor.Result, error)

func (f execFunc) Execute(ctx context.Context, c executor.Compiled, shots int) (executor.Result, error) {
	return f(ctx, c, shots)
}

type compileFunc func(ctx context.Context, spec circuit.Spec) (executor.Compiled, error)

func (f compileFunc) Compile(ctx context.Context, spec circuit.Spec) (executor.Compiled, error) {
	return f(ctx, spec)
}

func testConfig(alphas []float64, ks []int) Config {
	cfg := DefaultConfig()
	cfg.Grid = Grid{Alphas: alphas, Ks: ks}
	cfg.Workers = 3
	cfg.CellTimeout = 5 * time.Second
	return cfg
}

func newOrchestrator(t *testing.T, cfg Config, exec executor.Executor, m *metrics.Sweep) *Orchestrator {
	t.Helper()
	b, err := circuit.NewBuilder(testPartition, circuit.DefaultConstants())
	require.NoError(t, err)
	o, err := NewOrchestrator(cfg, Deps{
		Builder:  b,
		Controls: controls.NewBuilder(b, 42),
		Compiler: executor.LocalCompiler{Backend: "sim"},
		Executor: exec,
		Engine:   decision.NewEngine(decision.DefaultConfig()),
		Metrics:  m,
		Logger:   zerolog.Nop(),
		Backend:  "sim",
	})
	require.NoError(t, err)
	return o
}

// driveAlpha returns the late-bound drive angle of a treatment circuit.
func driveAlpha(spec circuit.Spec) (float64, bool) {
	for _, st := range spec.StagesOf(circuit.StageDrive) {
		if len(st.Gates) > 0 && st.Gates[0].Angle != nil {
			return st.Gates[0].Angle.Value, true
		}
	}
	return 0, false
}

func cycles(spec circuit.Spec) int {
	return len(spec.StagesOf(circuit.StageMonitor))
}

// #endregion helpers

// #region grid-tests

func TestGrid_PointsLexicographic(t *testing.T) {
	pts := Grid{Alphas: []float64{0, 1, 2}, Ks: []int{0, 1}}.Points()
	assert.Equal(t, []Point{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1},
	}, pts)
}

func TestGrid_MaxAndValidate(t *testing.T) {
	g := Grid{Alphas: []float64{0.3, 1.5, 0.2}, Ks: []int{4, 16, 2}}
	assert.Equal(t, Point{Alpha: 1.5, K: 16}, g.Max())
	assert.NoError(t, g.Validate())

	assert.ErrorIs(t, Grid{Ks: []int{1}}.Validate(), ErrInvalidGrid)
	assert.ErrorIs(t, Grid{Alphas: []float64{0}, Ks: []int{-1}}.Validate(), ErrInvalidGrid)
}

func TestDefaultConfig_ProtocolGrid(t *testing.T) {
	cfg := DefaultConfig()
	assert.Len(t, cfg.Grid.Points(), 30)
	assert.Equal(t, 8192, cfg.Shots)
	assert.Equal(t, 16384, cfg.ControlShots)
	assert.InDelta(t, 0.5*3.141592653589793, cfg.Grid.Max().Alpha, 1e-12)
}

// #endregion grid-tests

// #region run-tests

func TestRun_DominantOutcomeIsStable(t *testing.T) {
	cfg := testConfig([]float64{0, 1, 2}, []int{0, 1})
	m := metrics.New()
	o := newOrchestrator(t, cfg, &executor.Synthetic{Distribution: executor.DominantOutcome(192)}, m)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 6)
	assert.NotEmpty(t, res.RunID)

	for i, rec := range res.Records {
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, cfg.Grid.Points()[i], rec.Point)
		require.Equal(t, StatusCompleted, rec.Status)
		require.NotNil(t, rec.Observables)
		assert.Less(t, rec.Observables.Phi, 0.2)
		assert.InDelta(t, 1.0, rec.Observables.Lambda, 1e-12)
		assert.Less(t, rec.Observables.Gamma, 0.3)
		assert.True(t, rec.Observables.Stable)
		assert.False(t, rec.Observables.Conscious)
		assert.InDelta(t, 8000.0/8192, rec.SuccessProb, 1e-12)
		assert.Len(t, rec.Sample, 2)
		assert.Equal(t, 8192, rec.Shots)
		assert.Positive(t, rec.Depth)
	}

	assert.Equal(t, decision.OutcomeNoAcceptance, res.Verdict.Outcome)
	assert.False(t, res.Verdict.Ignited)
	assert.Equal(t, 0, res.Verdict.BestIndex, "identical xi ties go to the first cell")

	require.Len(t, res.Controls, 3)
	for _, c := range res.Controls {
		require.NoError(t, c.Err)
		assert.Equal(t, 16384, c.Shots)
		assert.NotNil(t, c.Observables)
	}
	c0, ok := res.Control(controls.C0)
	require.True(t, ok)
	assert.Nil(t, c0.Point)
	c2, ok := res.Control(controls.C2)
	require.True(t, ok)
	assert.Equal(t, &Point{Alpha: 2, K: 1}, c2.Point)

	assert.Equal(t, float64(6), testutil.ToFloat64(m.CellsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ControlsTotal.WithLabelValues("C1", "completed")))
}

func TestRun_Ignition(t *testing.T) {
	// Four even-parity outcomes at equal weight: phi = 1, gamma tiny.
	even := func(c executor.Compiled, shots int) (observables.Counts, error) {
		w := c.Spec.Width
		z := strings.Repeat("0", w-3)
		return observables.Counts{
			z + "000": shots / 4,
			z + "011": shots / 4,
			z + "101": shots / 4,
			z + "110": shots - 3*(shots/4),
		}, nil
	}
	o := newOrchestrator(t, testConfig([]float64{0.5}, []int{0, 2}), &executor.Synthetic{Distribution: even}, nil)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, decision.OutcomeIgnition, res.Verdict.Outcome)
	assert.True(t, res.Verdict.Ignited)

	best, ok := res.Best()
	require.True(t, ok)
	assert.True(t, best.Observables.Conscious)
}

func TestRun_AllCellsFail(t *testing.T) {
	down := execFunc(func(context.Context, executor.Compiled, int) (executor.Result, error) {
		return executor.Result{}, errors.New("backend offline")
	})
	o := newOrchestrator(t, testConfig([]float64{0, 1}, []int{0, 1}), down, nil)

	res, err := o.Run(context.Background())
	require.ErrorIs(t, err, decision.ErrNoViableConfiguration)

	assert.Equal(t, decision.OutcomeNotExecuted, res.Verdict.Outcome)
	assert.Equal(t, -1, res.Verdict.BestIndex)
	assert.Equal(t, 4, res.Count(StatusFailed))
	for _, rec := range res.Records {
		var ef *ExecutionFailure
		require.ErrorAs(t, rec.Err, &ef)
		assert.Equal(t, rec.Point, ef.Point)
		assert.Equal(t, StageAwait, ef.Stage)
		assert.Nil(t, rec.Observables)
	}
	for _, c := range res.Controls {
		assert.Error(t, c.Err)
	}
	_, ok := res.Best()
	assert.False(t, ok)
}

func TestRun_TimeoutFailsOnlyThatCell(t *testing.T) {
	var calls atomic.Int32
	exec := execFunc(func(ctx context.Context, c executor.Compiled, shots int) (executor.Result, error) {
		calls.Add(1)
		if cycles(c.Spec) == 1 {
			<-ctx.Done()
			return executor.Result{}, ctx.Err()
		}
		counts, err := executor.DominantOutcome(10)(c, shots)
		return executor.Result{JobID: "ok", Counts: counts}, err
	})
	cfg := testConfig([]float64{0, 1}, []int{0, 1})
	cfg.CellTimeout = 30 * time.Millisecond
	cfg.Retry = RetryPolicy{MaxAttempts: 3}
	o := newOrchestrator(t, cfg, exec, nil)

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	for _, rec := range res.Records {
		if rec.Point.K == 1 {
			assert.Equal(t, StatusFailed, rec.Status)
			assert.ErrorIs(t, rec.Err, context.DeadlineExceeded)
			assert.Equal(t, 1, rec.Attempts, "timed-out cells are not retried")
		} else {
			assert.Equal(t, StatusCompleted, rec.Status)
		}
	}
	assert.Equal(t, 2, res.Count(StatusCompleted))
}

func TestRun_TimeoutEnforcedWhenExecutorIgnoresContext(t *testing.T) {
	exec := execFunc(func(_ context.Context, c executor.Compiled, shots int) (executor.Result, error) {
		time.Sleep(500 * time.Millisecond)
		counts, err := executor.DominantOutcome(10)(c, shots)
		return executor.Result{JobID: "late", Counts: counts}, err
	})
	cfg := testConfig([]float64{0}, []int{1})
	cfg.CellTimeout = 20 * time.Millisecond
	o := newOrchestrator(t, cfg, exec, nil)

	began := time.Now()
	res, err := o.Run(context.Background())
	elapsed := time.Since(began)
	require.ErrorIs(t, err, decision.ErrNoViableConfiguration)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, StatusFailed, rec.Status)
	assert.ErrorIs(t, rec.Err, context.DeadlineExceeded)
	var failure *ExecutionFailure
	require.ErrorAs(t, rec.Err, &failure)
	assert.Equal(t, StageAwait, failure.Stage)
	assert.Empty(t, rec.JobID)
	assert.Less(t, rec.Duration, 400*time.Millisecond)

	for _, c := range res.Controls {
		assert.ErrorIs(t, c.Err, context.DeadlineExceeded, string(c.ID))
	}
	assert.Less(t, elapsed, 400*time.Millisecond, "cell and controls each stop at the deadline")
}

func TestRun_TimeoutEnforcedWhenCompilerIgnoresContext(t *testing.T) {
	b, err := circuit.NewBuilder(testPartition, circuit.DefaultConstants())
	require.NoError(t, err)
	local := executor.LocalCompiler{Backend: "sim"}
	slow := compileFunc(func(_ context.Context, spec circuit.Spec) (executor.Compiled, error) {
		time.Sleep(500 * time.Millisecond)
		return local.Compile(context.Background(), spec)
	})
	cfg := testConfig([]float64{0}, []int{0})
	cfg.CellTimeout = 20 * time.Millisecond
	o, err := NewOrchestrator(cfg, Deps{
		Builder:  b,
		Compiler: slow,
		Executor: &executor.Synthetic{Distribution: executor.DominantOutcome(10)},
		Engine:   decision.NewEngine(decision.DefaultConfig()),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.ErrorIs(t, err, decision.ErrNoViableConfiguration)

	var failure *ExecutionFailure
	require.ErrorAs(t, res.Records[0].Err, &failure)
	assert.Equal(t, StageCompile, failure.Stage)
	assert.ErrorIs(t, failure, context.DeadlineExceeded)
	assert.Zero(t, res.Records[0].Depth)
}

func TestRun_InvalidDistributionExcluded(t *testing.T) {
	exec := execFunc(func(_ context.Context, c executor.Compiled, shots int) (executor.Result, error) {
		counts, _ := executor.DominantOutcome(100)(c, shots)
		if a, ok := driveAlpha(c.Spec); ok && a == 1 {
			counts = observables.Counts{"01": shots} // wrong width
		}
		return executor.Result{Counts: counts}, nil
	})
	o := newOrchestrator(t, testConfig([]float64{0, 1}, []int{0}), exec, nil)

	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Records[0].Status)
	invalid := res.Records[1]
	assert.Equal(t, StatusInvalid, invalid.Status)
	assert.ErrorIs(t, invalid.Err, observables.ErrInvalidDistribution)
	assert.Nil(t, invalid.Observables)
	assert.Equal(t, 0, res.Verdict.BestIndex)
	assert.Equal(t, 1, res.Verdict.Viable)
}

func TestRun_ConcurrentCompletionKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(1))
	exec := execFunc(func(ctx context.Context, c executor.Compiled, shots int) (executor.Result, error) {
		mu.Lock()
		d := time.Duration(rng.Intn(15)) * time.Millisecond
		mu.Unlock()
		time.Sleep(d)
		// Minority weight grows with alpha, so xi is distinct per cell.
		a, _ := driveAlpha(c.Spec)
		counts, err := executor.DominantOutcome(int(a*100)+1)(c, shots)
		return executor.Result{Counts: counts}, err
	})
	cfg := testConfig([]float64{0, 0.1, 0.2, 0.3, 0.4}, []int{0, 2, 4})
	cfg.Workers = 4
	o := newOrchestrator(t, cfg, exec, nil)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	for i, p := range cfg.Grid.Points() {
		assert.Equal(t, p, res.Records[i].Point)
	}
}

func TestRun_RetryRecoversTransientFailure(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	exec := execFunc(func(_ context.Context, c executor.Compiled, shots int) (executor.Result, error) {
		mu.Lock()
		first := !seen[c.Fingerprint]
		seen[c.Fingerprint] = true
		mu.Unlock()
		if first {
			return executor.Result{}, errors.New("queue busy")
		}
		counts, err := executor.DominantOutcome(5)(c, shots)
		return executor.Result{Counts: counts}, err
	})
	cfg := testConfig([]float64{0, 1}, []int{0})
	cfg.Retry = RetryPolicy{MaxAttempts: 2}
	m := metrics.New()
	o := newOrchestrator(t, cfg, exec, m)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	for _, rec := range res.Records {
		assert.Equal(t, StatusCompleted, rec.Status)
		assert.Equal(t, 2, rec.Attempts)
	}
	// every distinct circuit fails once; controls add their own retries
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.RetriesTotal), float64(2))
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(testConfig(nil, []int{0}), Deps{})
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewOrchestrator(testConfig([]float64{0}, []int{0}), Deps{})
	assert.Error(t, err)
}

// #endregion run-tests
