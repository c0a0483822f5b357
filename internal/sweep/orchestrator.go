// Package sweep runs the (alpha, K) grid and the control experiments.
//
// Every grid cell walks BUILD, BIND, COMPILE, SUBMIT, AWAIT, REDUCE and
// RECORD on its own. Cells share no circuit state and run on a bounded pool;
// each writes only its own slot of the result slice, so the record order is
// the enumeration order whatever the completion order.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/executor"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/metrics"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region config

// Config drives one sweep.
type Config struct {
	Grid           Grid          `yaml:"grid"`
	Shots          int           `yaml:"shots" validate:"gt=0"`
	ControlShots   int           `yaml:"control_shots" validate:"gt=0"`
	Workers        int           `yaml:"workers" validate:"gte=1,lte=64"`
	CellTimeout    time.Duration `yaml:"cell_timeout" validate:"gt=0"`
	FeedForward    bool          `yaml:"feed_forward"`
	BaselineDepth  float64       `yaml:"baseline_depth" validate:"gt=0"`
	SampleSize     int           `yaml:"sample_size" validate:"gte=0"`
	ExpectedParity int           `yaml:"expected_parity" validate:"oneof=0 1"`
	Param          string        `yaml:"param" validate:"required"`
	Retry          RetryPolicy   `yaml:"retry"`
}

// DefaultConfig returns the v2.1 ignition sweep: six alpha values from 0 to
// pi/2, K in {0,2,4,8,16}, 8192 shots per cell and 16384 per control.
func DefaultConfig() Config {
	alphas := make([]float64, 6)
	for i := range alphas {
		alphas[i] = float64(i) * 0.1 * math.Pi
	}
	return Config{
		Grid:          Grid{Alphas: alphas, Ks: []int{0, 2, 4, 8, 16}},
		Shots:         8192,
		ControlShots:  16384,
		Workers:       4,
		CellTimeout:   30 * time.Minute,
		BaselineDepth: 49,
		SampleSize:    10,
		Param:         "alpha",
		Retry:         DefaultRetryPolicy(),
	}
}

// #endregion config

// #region deps

// Deps are the collaborators a sweep needs. Metrics may be nil.
type Deps struct {
	Builder  *circuit.Builder
	Controls *controls.Builder
	Compiler executor.Compiler
	Executor executor.Executor
	Engine   *decision.Engine
	Metrics  *metrics.Sweep
	Logger   zerolog.Logger
	Backend  string
}

// #endregion deps

// #region orchestrator-struct

// Orchestrator runs sweeps. It is safe to call Run more than once; runs do
// not share state beyond the injected collaborators.
type Orchestrator struct {
	config   Config
	builder  *circuit.Builder
	controls *controls.Builder
	compiler executor.Compiler
	executor executor.Executor
	engine   *decision.Engine
	metrics  *metrics.Sweep
	log      zerolog.Logger
	backend  string
}

// NewOrchestrator checks the config and collaborators.
func NewOrchestrator(config Config, deps Deps) (*Orchestrator, error) {
	if err := config.Grid.Validate(); err != nil {
		return nil, err
	}
	if config.Shots <= 0 || config.ControlShots <= 0 {
		return nil, fmt.Errorf("shots must be positive: shots=%d control_shots=%d", config.Shots, config.ControlShots)
	}
	if deps.Builder == nil || deps.Compiler == nil || deps.Executor == nil || deps.Engine == nil {
		return nil, errors.New("sweep: builder, compiler, executor and engine are required")
	}
	if config.Param == "" {
		config.Param = "alpha"
	}
	config.Workers = max(config.Workers, 1)

	ctrl := deps.Controls
	if ctrl == nil {
		ctrl = controls.NewBuilder(deps.Builder, controls.DefaultSeed)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{
		config:   config,
		builder:  deps.Builder,
		controls: ctrl,
		compiler: deps.Compiler,
		executor: deps.Executor,
		engine:   deps.Engine,
		metrics:  m,
		log:      deps.Logger.With().Str("component", "sweep").Logger(),
		backend:  deps.Backend,
	}, nil
}

// #endregion orchestrator-struct

// #region run

// Run executes every grid cell, then the controls, then the decision rule.
// The Result is always populated. The error is non-nil only when no cell
// produced observables (wrapping decision.ErrNoViableConfiguration).
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	points := o.config.Grid.Points()
	res := Result{
		RunID:   uuid.NewString(),
		Backend: o.backend,
		Started: time.Now().UTC(),
		Config:  o.config,
		Records: make([]Record, len(points)),
	}
	log := o.log.With().Str("run_id", res.RunID).Logger()
	log.Info().
		Int("cells", len(points)).
		Int("workers", o.config.Workers).
		Int("shots", o.config.Shots).
		Msg("sweep started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, p := range points {
		g.Go(func() error {
			res.Records[i] = o.runCell(gctx, log, i, p)
			return nil
		})
	}
	_ = g.Wait() // cells record their own failures

	res.Controls = o.runControls(ctx, log)

	verdict, err := o.engine.Select(res.Candidates())
	res.Verdict = verdict
	res.Finished = time.Now().UTC()

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	} else {
		o.metrics.BestXi.Set(verdict.Best.Xi)
	}
	ev.Str("outcome", string(verdict.Outcome)).
		Int("completed", res.Count(StatusCompleted)).
		Int("invalid", res.Count(StatusInvalid)).
		Int("failed", res.Count(StatusFailed)).
		Str("reason", verdict.Reason).
		Msg("sweep finished")

	if err != nil {
		return res, fmt.Errorf("sweep %s: %w", res.RunID, err)
	}
	return res, nil
}

// #endregion run

// #region cell

// runCell walks one grid cell through the state machine. It never panics the
// pool and never returns an error: failures land in the record.
func (o *Orchestrator) runCell(ctx context.Context, log zerolog.Logger, index int, p Point) Record {
	start := time.Now()
	rec := Record{Index: index, Point: p, Shots: o.config.Shots, Backend: o.backend}
	log = log.With().Int("cell", index).Float64("alpha", p.Alpha).Int("K", p.K).Logger()

	fail := func(stage Stage, err error) Record {
		rec.Status = StatusFailed
		rec.Err = &ExecutionFailure{Point: p, Stage: stage, Cause: err}
		rec.Duration = time.Since(start)
		o.metrics.StageErrorsTotal.WithLabelValues(string(stage)).Inc()
		o.metrics.CellsTotal.WithLabelValues(string(rec.Status)).Inc()
		log.Warn().Err(err).Str("stage", string(stage)).Msg("cell failed")
		return rec
	}

	log.Debug().Str("stage", string(StageBuild)).Msg("stage")
	template := o.builder.Treatment(o.config.Param, p.K, o.config.FeedForward)

	log.Debug().Str("stage", string(StageBind)).Msg("stage")
	bound, err := circuit.Bind(template, map[string]float64{o.config.Param: p.Alpha})
	if err != nil {
		return fail(StageBind, err)
	}

	cellCtx, cancel := context.WithTimeout(ctx, o.config.CellTimeout)
	defer cancel()

	log.Debug().Str("stage", string(StageCompile)).Msg("stage")
	compiled, err := await(cellCtx, func() (executor.Compiled, error) {
		return o.compiler.Compile(cellCtx, bound)
	})
	if err != nil {
		return fail(StageCompile, err)
	}
	rec.Depth = compiled.Depth
	rec.Fingerprint = compiled.Fingerprint
	if compiled.Backend != "" {
		rec.Backend = compiled.Backend
	}

	log.Debug().Str("stage", string(StageSubmit)).Int("depth", compiled.Depth).Msg("stage")
	result, attempts, err := o.submit(cellCtx, log, compiled, o.config.Shots)
	rec.Attempts = attempts
	if err != nil {
		return fail(StageAwait, err)
	}
	rec.JobID = result.JobID

	log.Debug().Str("stage", string(StageReduce)).Str("job_id", result.JobID).Msg("stage")
	set, pSucc, err := o.reduce(result.Counts, compiled.Spec.Width, o.config.Shots)
	rec.Sample = result.Counts.Sample(o.config.SampleSize)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Status = StatusInvalid
		rec.Err = err
		o.metrics.StageErrorsTotal.WithLabelValues(string(StageReduce)).Inc()
		o.metrics.CellsTotal.WithLabelValues(string(rec.Status)).Inc()
		log.Warn().Err(err).Msg("cell produced an invalid distribution")
		return rec
	}

	rec.Status = StatusCompleted
	rec.Observables = &set
	rec.SuccessProb = pSucc
	rec.DeltaTauEff = observables.EffectiveTimeShortcut(compiled.Depth, pSucc, o.config.BaselineDepth)
	o.metrics.CellsTotal.WithLabelValues(string(rec.Status)).Inc()

	log.Info().
		Str("stage", string(StageRecord)).
		Str("job_id", rec.JobID).
		Float64("phi", set.Phi).
		Float64("lambda", set.Lambda).
		Float64("gamma", set.Gamma).
		Float64("xi", set.Xi).
		Bool("conscious", set.Conscious).
		Float64("p_succ", pSucc).
		Float64("delta_tau_eff", rec.DeltaTauEff).
		Msg("cell recorded")
	return rec
}

// submit covers SUBMIT and AWAIT: the executor call blocks until counts
// arrive, the context expires or the retry budget runs out.
func (o *Orchestrator) submit(ctx context.Context, log zerolog.Logger, c executor.Compiled, shots int) (executor.Result, int, error) {
	var result executor.Result
	began := time.Now()
	attempts, err := o.config.Retry.Do(ctx, func(ctx context.Context) error {
		r, err := await(ctx, func() (executor.Result, error) {
			return o.executor.Execute(ctx, c, shots)
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	}, func(attempt int, err error) {
		o.metrics.RetriesTotal.Inc()
		log.Warn().Err(err).Int("attempt", attempt).Msg("retrying submission")
	})
	o.metrics.ExecuteSeconds.Observe(time.Since(began).Seconds())
	return result, attempts, err
}

// await runs fn on its own goroutine and returns when it finishes or ctx is
// done, whichever comes first. A collaborator that ignores ctx keeps running
// in the background; its late result is dropped.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// reduce validates counts and computes the classified observable set.
func (o *Orchestrator) reduce(counts observables.Counts, width, shots int) (observables.Set, float64, error) {
	if err := counts.Validate(width, shots); err != nil {
		return observables.Set{}, 0, err
	}
	set, err := observables.Reduce(counts, observables.ReduceInput{
		Width:          width,
		ExpectedParity: o.config.ExpectedParity,
	})
	if err != nil {
		return observables.Set{}, 0, err
	}
	pSucc, err := observables.SuccessProbability(counts)
	if err != nil {
		return observables.Set{}, 0, err
	}
	return o.engine.Classify(set), pSucc, nil
}

// #endregion cell

// #region controls

// runControls executes C0 once and C1/C2 at the grid maxima. Controls run
// sequentially after the grid; a failed control is recorded, not fatal.
func (o *Orchestrator) runControls(ctx context.Context, log zerolog.Logger) []ControlRecord {
	peak := o.config.Grid.Max()
	out := make([]ControlRecord, 0, len(controls.All))
	for _, id := range controls.All {
		rec := ControlRecord{ID: id, Shots: o.config.ControlShots, Backend: o.backend}
		if id != controls.C0 {
			p := peak
			rec.Point = &p
		}
		clog := log.With().Str("control", string(id)).Logger()

		spec := o.controls.Build(id, peak.Alpha, peak.K, o.config.FeedForward)
		rec = o.runControl(ctx, clog, rec, spec)

		status := string(StatusCompleted)
		if rec.Err != nil {
			status = string(StatusFailed)
			clog.Warn().Err(rec.Err).Msg("control failed")
		} else {
			clog.Info().
				Str("job_id", rec.JobID).
				Float64("phi", rec.Observables.Phi).
				Float64("lambda", rec.Observables.Lambda).
				Float64("gamma", rec.Observables.Gamma).
				Msg(id.Describe())
		}
		o.metrics.ControlsTotal.WithLabelValues(string(id), status).Inc()
		out = append(out, rec)
	}
	return out
}

func (o *Orchestrator) runControl(ctx context.Context, log zerolog.Logger, rec ControlRecord, spec circuit.Spec) ControlRecord {
	ctx, cancel := context.WithTimeout(ctx, o.config.CellTimeout)
	defer cancel()

	compiled, err := await(ctx, func() (executor.Compiled, error) {
		return o.compiler.Compile(ctx, spec)
	})
	if err != nil {
		rec.Err = fmt.Errorf("compile control %s: %w", rec.ID, err)
		return rec
	}
	rec.Depth = compiled.Depth
	if compiled.Backend != "" {
		rec.Backend = compiled.Backend
	}
	result, _, err := o.submit(ctx, log, compiled, rec.Shots)
	if err != nil {
		rec.Err = fmt.Errorf("execute control %s: %w", rec.ID, err)
		return rec
	}
	rec.JobID = result.JobID
	set, pSucc, err := o.reduce(result.Counts, compiled.Spec.Width, rec.Shots)
	if err != nil {
		rec.Err = fmt.Errorf("reduce control %s: %w", rec.ID, err)
		return rec
	}
	rec.Observables = &set
	rec.SuccessProb = pSucc
	return rec
}

// #endregion controls
