package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

func seedIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := evidence.OpenIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.RecordRun(evidence.Artifact{
		ManifestVersion: evidence.ManifestVersion,
		RunID:           "3f2a9c1e-7b44-4d1a-9f0e-2c6d8a1b5e70",
		Backend:         "ibm_fez",
		Timestamp:       1735689600,
		Constants:       map[string]float64{"PHI_THRESHOLD": 0.7734, "GAMMA_CRITICAL": 0.3},
		Results: []evidence.CellResult{
			{Alpha: 0, K: 0, Status: "completed", CCCE: &observables.Set{Phi: 0.8, Lambda: 0.9, Gamma: 0.1, Xi: 7.2, Conscious: true, Stable: true}},
			{Alpha: 0, K: 2, Status: "invalid", Error: "counts sum to 10, want 8192"},
		},
		FailedCells: []evidence.FailedCell{{Alpha: 0.5, K: 0, Stage: "AWAIT", Error: "deadline exceeded"}},
		Verdict:     evidence.Verdict{Outcome: "ignition", Ignited: true, BestIndex: 0},
	}, "/tmp/aeterna_porta_sweep_1735689600.json")
	require.NoError(t, err)
	return path
}

func TestRun_Usage(t *testing.T) {
	t.Setenv("SWEEP_INDEX_PATH", "")
	var stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "usage: inspect")
}

func TestRun_ListTable(t *testing.T) {
	path := seedIndex(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--index", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "3f2a9c1e-7b4")
	assert.Contains(t, stdout.String(), "ibm_fez")
	assert.Contains(t, stdout.String(), "ignition")
}

func TestRun_ListJSON(t *testing.T) {
	path := seedIndex(t)
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, run([]string{"--index", path, "--json"}, &stdout, &stderr))

	var rows []listRow
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Results)
	assert.Equal(t, 1, rows[0].Failed)
	assert.True(t, rows[0].Ignited)
}

func TestRun_Detail(t *testing.T) {
	path := seedIndex(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--index", path, "--run", "3f2a9c1e-7b44-4d1a-9f0e-2c6d8a1b5e70"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Thresholds: phi >= 0.7734, gamma < 0.3000")
	assert.Contains(t, out, "0.8000")
	assert.Contains(t, out, "CS")
	assert.Contains(t, out, "deadline exceeded")
}

func TestRun_UnknownRun(t *testing.T) {
	path := seedIndex(t)
	var stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"--index", path, "--run", "missing"}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "run missing")
}
