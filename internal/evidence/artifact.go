package evidence

import (
	"errors"
	"math"
	"time"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/sweep"
)

// #region constants

const (
	// ManifestVersion tags the artifact layout.
	ManifestVersion = "aeterna-porta-sweep/v2.1.0"

	// Experiment is the human-readable protocol name.
	Experiment = "IGNITION SWEEP PROTOCOL"

	// LambdaPhi is recorded with every run; no computation depends on it.
	LambdaPhi = 2.176435e-08
)

// #endregion constants

// #region artifact

// Artifact is the write-once evidence document of one sweep. Field names
// match the JSON consumed by existing tooling and must not change.
type Artifact struct {
	ManifestVersion string             `json:"manifest_version"`
	Experiment      string             `json:"experiment"`
	RunID           string             `json:"run_id"`
	Backend         string             `json:"backend"`
	Timestamp       float64            `json:"timestamp"` // unix seconds
	Constants       map[string]float64 `json:"constants"`
	SweepParameters SweepParameters    `json:"sweep_parameters"`
	Results         []CellResult       `json:"results"`
	FailedCells     []FailedCell       `json:"failed_cells"`
	Controls        []ControlResult    `json:"controls"`
	Verdict         Verdict            `json:"verdict"`
}

// SweepParameters records the grid and shot counts.
type SweepParameters struct {
	AlphaSweep   []float64         `json:"alpha_sweep"`
	KSweep       []int             `json:"K_sweep"`
	Shots        int               `json:"shots"`
	ControlShots int               `json:"control_shots"`
	Partition    circuit.Partition `json:"partition"`
	FeedForward  bool              `json:"feed_forward"`
}

// CellResult is one grid cell that produced a distribution. CCCE and
// Observables are null when the distribution was invalid.
type CellResult struct {
	Alpha        float64            `json:"alpha"`
	K            int                `json:"K"`
	JobID        string             `json:"job_id"`
	Backend      string             `json:"backend"`
	CircuitDepth int                `json:"circuit_depth"`
	Shots        int                `json:"shots"`
	Status       string             `json:"status"`
	Fingerprint  string             `json:"fingerprint,omitempty"`
	CCCE         *observables.Set   `json:"ccce"`
	Observables  *Derived           `json:"observables"`
	CountsSample observables.Counts `json:"counts_sample"`
	Error        string             `json:"error,omitempty"`
}

// Derived holds the per-cell quantities beyond the observable set.
type Derived struct {
	PSucc       float64 `json:"p_succ"`
	DeltaTauEff float64 `json:"delta_tau_eff"`
}

// FailedCell is a grid cell that never produced a distribution.
type FailedCell struct {
	Alpha float64 `json:"alpha"`
	K     int     `json:"K"`
	Stage string  `json:"stage"`
	Error string  `json:"error"`
}

// ControlResult is one control run.
type ControlResult struct {
	Control      string       `json:"control"`
	JobID        string       `json:"job_id"`
	Alpha        *float64     `json:"alpha,omitempty"`
	K            *int         `json:"K,omitempty"`
	CircuitDepth int          `json:"circuit_depth"`
	Shots        int          `json:"shots"`
	CCCE         *ControlCCCE `json:"ccce"`
	Error        string       `json:"error,omitempty"`
}

// ControlCCCE is the reduced observable set reported for controls.
type ControlCCCE struct {
	Phi    float64 `json:"phi"`
	Lambda float64 `json:"lambda"`
	Gamma  float64 `json:"gamma"`
}

// Verdict is the decision over the completed cells.
type Verdict struct {
	Outcome     string `json:"outcome"`
	Description string `json:"description"`
	Ignited     bool   `json:"ignited"`
	BestIndex   int    `json:"best_index"` // index into results; -1 when none
	Reason      string `json:"reason"`
}

// #endregion artifact

// #region from-result

// Meta carries the run context that is not part of sweep.Result.
type Meta struct {
	Constants  circuit.Constants
	Thresholds decision.Config
	Partition  circuit.Partition
}

// FromResult converts a finished sweep into its artifact. Cells with a
// distribution go to Results in enumeration order; execution failures go to
// FailedCells. Verdict.BestIndex is re-based onto Results.
func FromResult(res sweep.Result, meta Meta) Artifact {
	a := Artifact{
		ManifestVersion: ManifestVersion,
		Experiment:      Experiment,
		RunID:           res.RunID,
		Backend:         res.Backend,
		Timestamp:       unixSeconds(res.Started),
		Constants: map[string]float64{
			"LAMBDA_PHI":     LambdaPhi,
			"THETA_LOCK":     meta.Constants.ThetaLockDeg,
			"PHI_THRESHOLD":  meta.Thresholds.PhiThreshold,
			"GAMMA_CRITICAL": meta.Thresholds.GammaCritical,
		},
		SweepParameters: SweepParameters{
			AlphaSweep:   res.Config.Grid.Alphas,
			KSweep:       res.Config.Grid.Ks,
			Shots:        res.Config.Shots,
			ControlShots: res.Config.ControlShots,
			Partition:    meta.Partition,
			FeedForward:  res.Config.FeedForward,
		},
		Results:     []CellResult{},
		FailedCells: []FailedCell{},
		Controls:    []ControlResult{},
		Verdict: Verdict{
			Outcome:     string(res.Verdict.Outcome),
			Description: res.Verdict.Outcome.Describe(),
			Ignited:     res.Verdict.Ignited,
			BestIndex:   -1,
			Reason:      res.Verdict.Reason,
		},
	}

	for _, rec := range res.Records {
		if rec.Status == sweep.StatusFailed {
			a.FailedCells = append(a.FailedCells, failedCell(rec))
			continue
		}
		if rec.Index == res.Verdict.BestIndex {
			a.Verdict.BestIndex = len(a.Results)
		}
		a.Results = append(a.Results, cellResult(rec))
	}
	for _, c := range res.Controls {
		a.Controls = append(a.Controls, controlResult(c))
	}
	return a
}

func cellResult(rec sweep.Record) CellResult {
	cr := CellResult{
		Alpha:        rec.Point.Alpha,
		K:            rec.Point.K,
		JobID:        rec.JobID,
		Backend:      rec.Backend,
		CircuitDepth: rec.Depth,
		Shots:        rec.Shots,
		Status:       string(rec.Status),
		Fingerprint:  rec.Fingerprint,
		CountsSample: rec.Sample,
	}
	if rec.Observables != nil {
		set := *rec.Observables
		cr.CCCE = &set
		cr.Observables = &Derived{PSucc: rec.SuccessProb, DeltaTauEff: rec.DeltaTauEff}
	}
	if rec.Err != nil {
		cr.Error = rec.Err.Error()
	}
	return cr
}

func failedCell(rec sweep.Record) FailedCell {
	fc := FailedCell{Alpha: rec.Point.Alpha, K: rec.Point.K}
	var ef *sweep.ExecutionFailure
	if errors.As(rec.Err, &ef) {
		fc.Stage = string(ef.Stage)
	}
	if rec.Err != nil {
		fc.Error = rec.Err.Error()
	}
	return fc
}

func controlResult(c sweep.ControlRecord) ControlResult {
	cr := ControlResult{
		Control:      string(c.ID),
		JobID:        c.JobID,
		CircuitDepth: c.Depth,
		Shots:        c.Shots,
	}
	if c.Point != nil {
		alpha, k := c.Point.Alpha, c.Point.K
		cr.Alpha = &alpha
		cr.K = &k
	}
	if c.Observables != nil {
		cr.CCCE = &ControlCCCE{Phi: c.Observables.Phi, Lambda: c.Observables.Lambda, Gamma: c.Observables.Gamma}
	}
	if c.Err != nil {
		cr.Error = c.Err.Error()
	}
	return cr
}

// #endregion from-result

// #region time

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Time returns the artifact timestamp as a time.Time.
func (a Artifact) Time() time.Time {
	sec, frac := math.Modf(a.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// #endregion time
