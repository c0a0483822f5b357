package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/config"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/sweep"
)

func dryRunConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Partition = circuit.Partition{L: 4, R: 4, Anc: 1}
	cfg.Sweep.Grid = sweep.Grid{Alphas: []float64{0, 0.5}, Ks: []int{0, 1}}
	cfg.Sweep.Shots = 512
	cfg.Sweep.ControlShots = 512
	cfg.Sweep.Workers = 2
	cfg.Sweep.CellTimeout = 10 * time.Second
	cfg.Backend.DryRun = true
	cfg.Evidence.Dir = filepath.Join(dir, "evidence")
	cfg.Evidence.IndexPath = filepath.Join(dir, "index.db")
	cfg.Log.Out = io.Discard
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitIgnition, exitCode(decision.OutcomeIgnition, nil))
	assert.Equal(t, exitNoAcceptance, exitCode(decision.OutcomeNoAcceptance, nil))
	assert.Equal(t, exitFailure, exitCode(decision.OutcomeNotExecuted, decision.ErrNoViableConfiguration))
	assert.Equal(t, exitFailure, exitCode(decision.OutcomeNotExecuted, nil))
	assert.Equal(t, exitFailure, exitCode("", errors.New("dial failed")))
}

func TestExitError_Unwrap(t *testing.T) {
	err := &ExitError{Code: exitFailure, Wrapped: decision.ErrNoViableConfiguration}
	assert.ErrorIs(t, err, decision.ErrNoViableConfiguration)
	assert.Equal(t, "exit 3", (&ExitError{Code: exitNoAcceptance}).Error())
}

func TestRunSweep_DryRunWritesEvidenceAndIndex(t *testing.T) {
	cfg := dryRunConfig(t)
	metricsPath := filepath.Join(t.TempDir(), "sweep.prom")
	var out bytes.Buffer

	outcome, err := runSweep(context.Background(), cfg, metricsPath, &out)
	require.NoError(t, err)
	assert.Contains(t, []decision.Outcome{decision.OutcomeIgnition, decision.OutcomeNoAcceptance}, outcome)

	files, err := filepath.Glob(filepath.Join(cfg.Evidence.Dir, "aeterna_porta_sweep_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	a, err := evidence.Load(files[0])
	require.NoError(t, err)
	assert.Equal(t, "ibm_fez", a.Backend)
	assert.Len(t, a.Results, 4)
	assert.Empty(t, a.FailedCells)
	assert.Len(t, a.Controls, 3)
	assert.Equal(t, string(outcome), a.Verdict.Outcome)

	idx, err := evidence.OpenIndex(cfg.Evidence.IndexPath)
	require.NoError(t, err)
	defer idx.Close()
	runs, err := idx.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.RunID, runs[0].RunID)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "ignition_sweep_cells_total")

	report := out.String()
	assert.Contains(t, report, "4 completed | 0 invalid | 0 failed")
	assert.Contains(t, report, "C1 bridge cut")
	assert.Contains(t, report, "attribution:")
	assert.Contains(t, report, "Evidence: "+files[0])
}

func TestRunSweep_NoBackendResolves(t *testing.T) {
	cfg := dryRunConfig(t)
	cfg.Backend.Candidates = nil

	outcome, err := runSweep(context.Background(), cfg, "", io.Discard)
	require.Error(t, err)
	assert.Equal(t, decision.OutcomeNotExecuted, outcome)
	assert.Equal(t, exitFailure, exitCode(outcome, err))
	assert.NoDirExists(t, cfg.Evidence.Dir)
}

func TestRootCmd_RunRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  phi_threshold: 2\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--config", path})
	cmd.SetOut(io.Discard)
	err := cmd.ExecuteContext(context.Background())

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitFailure, exitErr.Code)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
