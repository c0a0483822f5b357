package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/config"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/eval"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/executor"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/logging"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/metrics"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/sweep"
)

// #region backend
type backend struct {
	name     string
	compiler executor.Compiler
	executor executor.Executor
	close    func() error
}

// openBackend resolves the first available candidate, either on the
// execution service or on the synthetic executor for dry runs.
func openBackend(ctx context.Context, cfg config.BackendConfig) (backend, error) {
	if cfg.DryRun {
		syn := &executor.Synthetic{Backends: cfg.Candidates}
		name, err := executor.SelectBackend(ctx, syn, cfg.Candidates)
		if err != nil {
			return backend{}, err
		}
		return backend{
			name:     name,
			compiler: executor.LocalCompiler{Backend: name},
			executor: syn,
			close:    func() error { return nil },
		}, nil
	}

	client, err := executor.NewClient(cfg.Address)
	if err != nil {
		return backend{}, fmt.Errorf("connect to execution service at %s: %w", cfg.Address, err)
	}
	name, err := executor.SelectBackend(ctx, client, cfg.Candidates)
	if err != nil {
		_ = client.Close()
		return backend{}, err
	}
	bound := client.WithBackend(name).WithOptions(cfg.Compile, cfg.Execute)
	return backend{name: name, compiler: bound, executor: bound, close: client.Close}, nil
}

// #endregion backend

// #region run-sweep

// runSweep executes one sweep end to end and prints the report to out.
// Evidence is written even when no cell produced observables.
func runSweep(ctx context.Context, cfg config.Config, metricsFile string, out io.Writer) (decision.Outcome, error) {
	log := logging.New(cfg.Log)
	logging.SetGlobalLogger(log)

	builder, err := circuit.NewBuilder(cfg.Partition, cfg.Physics)
	if err != nil {
		return decision.OutcomeNotExecuted, err
	}

	be, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return decision.OutcomeNotExecuted, err
	}
	defer be.close()
	log.Info().Str("backend", be.name).Bool("dry_run", cfg.Backend.DryRun).Msg("backend selected")

	m := metrics.New()
	orch, err := sweep.NewOrchestrator(cfg.Sweep, sweep.Deps{
		Builder:  builder,
		Controls: controls.NewBuilder(builder, cfg.Controls.Seed),
		Compiler: be.compiler,
		Executor: be.executor,
		Engine:   decision.NewEngine(cfg.Thresholds),
		Metrics:  m,
		Logger:   log,
		Backend:  be.name,
	})
	if err != nil {
		return decision.OutcomeNotExecuted, err
	}

	res, runErr := orch.Run(ctx)

	artifact := evidence.FromResult(res, evidence.Meta{
		Constants:  cfg.Physics,
		Thresholds: cfg.Thresholds,
		Partition:  cfg.Partition,
	})
	path, err := evidence.NewRecorder(cfg.Evidence.Dir, log).Write(artifact)
	if err != nil {
		return res.Verdict.Outcome, fmt.Errorf("write evidence: %w", err)
	}
	indexRun(log, cfg.Evidence.IndexPath, artifact, path)

	if metricsFile != "" {
		if err := m.WriteTextfile(metricsFile); err != nil {
			log.Warn().Err(err).Str("path", metricsFile).Msg("metrics textfile not written")
		}
	}

	var attribution *eval.EvalResult
	if best, ok := res.Best(); ok && best.Observables != nil {
		r := eval.NewEvalHarness(cfg.Attribution).Run(eval.FromSet(*best.Observables), controlObservations(res.Controls))
		attribution = &r
	}

	printReport(out, res, attribution, path)
	return res.Verdict.Outcome, runErr
}

// indexRun records the artifact in the SQLite index. The JSON file is the
// record of truth, so index failures are logged and ignored.
func indexRun(log zerolog.Logger, indexPath string, a evidence.Artifact, path string) {
	if indexPath == "" {
		return
	}
	idx, err := evidence.OpenIndex(indexPath)
	if err != nil {
		log.Warn().Err(err).Str("index", indexPath).Msg("evidence index unavailable")
		return
	}
	defer idx.Close()
	if _, err := idx.RecordRun(a, path); err != nil {
		log.Warn().Err(err).Str("index", indexPath).Msg("run not indexed")
	}
}

func controlObservations(rs []sweep.ControlRecord) map[controls.ID]eval.Observation {
	out := make(map[controls.ID]eval.Observation, len(rs))
	for _, c := range rs {
		if c.Observables != nil {
			out[c.ID] = eval.FromSet(*c.Observables)
		}
	}
	return out
}

// #endregion run-sweep
