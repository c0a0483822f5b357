package sweep

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region point

// Point is one grid cell: a drive angle and a monitoring cycle count.
type Point struct {
	Alpha float64 `json:"alpha"`
	K     int     `json:"K"`
}

func (p Point) String() string {
	return fmt.Sprintf("alpha=%.4f K=%d", p.Alpha, p.K)
}

// #endregion point

// #region grid

// ErrInvalidGrid is returned when a grid has no cells or a negative K.
var ErrInvalidGrid = errors.New("invalid grid")

// Grid is the ordered alpha and K sets of a sweep.
type Grid struct {
	Alphas []float64 `yaml:"alpha" validate:"required,min=1"`
	Ks     []int     `yaml:"k" validate:"required,min=1,dive,gte=0"`
}

// Points enumerates the product in lexicographic order: alpha outer, K inner.
func (g Grid) Points() []Point {
	pts := make([]Point, 0, len(g.Alphas)*len(g.Ks))
	for _, a := range g.Alphas {
		for _, k := range g.Ks {
			pts = append(pts, Point{Alpha: a, K: k})
		}
	}
	return pts
}

// Max returns the largest alpha and the largest K, used for the C1/C2 controls.
func (g Grid) Max() Point {
	p := Point{Alpha: math.Inf(-1)}
	for _, a := range g.Alphas {
		p.Alpha = max(p.Alpha, a)
	}
	for _, k := range g.Ks {
		p.K = max(p.K, k)
	}
	if len(g.Alphas) == 0 {
		p.Alpha = 0
	}
	return p
}

// Validate rejects empty sets and negative cycle counts.
func (g Grid) Validate() error {
	if len(g.Alphas) == 0 || len(g.Ks) == 0 {
		return fmt.Errorf("%w: %d alpha values, %d K values", ErrInvalidGrid, len(g.Alphas), len(g.Ks))
	}
	for _, k := range g.Ks {
		if k < 0 {
			return fmt.Errorf("%w: K=%d", ErrInvalidGrid, k)
		}
	}
	return nil
}

// #endregion grid

// #region stage

// Stage is a step of the per-cell state machine.
type Stage string

const (
	StageBuild   Stage = "BUILD"
	StageBind    Stage = "BIND"
	StageCompile Stage = "COMPILE"
	StageSubmit  Stage = "SUBMIT"
	StageAwait   Stage = "AWAIT"
	StageReduce  Stage = "REDUCE"
	StageRecord  Stage = "RECORD"
)

// #endregion stage

// #region status

// Status is the final state of a cell.
type Status string

const (
	StatusCompleted Status = "completed" // observables computed
	StatusInvalid   Status = "invalid"   // counts came back but were malformed
	StatusFailed    Status = "failed"    // no counts: bind, compile or execution failed
)

// #endregion status

// #region execution-failure

// ExecutionFailure records why a cell produced no distribution.
type ExecutionFailure struct {
	Point Point
	Stage Stage
	Cause error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failure at %s (%s): %v", e.Point, e.Stage, e.Cause)
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Cause
}

// #endregion execution-failure

// #region record

// Record is the outcome of one grid cell. It is written once by the worker
// that ran the cell and never modified afterwards.
type Record struct {
	Index       int
	Point       Point
	Status      Status
	Backend     string
	JobID       string
	Depth       int
	Shots       int
	Fingerprint string
	Observables *observables.Set // nil unless Status == StatusCompleted
	SuccessProb float64
	DeltaTauEff float64
	Sample      observables.Counts
	Attempts    int
	Duration    time.Duration
	Err         error
}

// Candidate converts the record for the decision engine.
func (r Record) Candidate() decision.Candidate {
	c := decision.Candidate{Index: r.Index, Alpha: r.Point.Alpha, K: r.Point.K}
	if r.Status != StatusCompleted || r.Observables == nil {
		return c
	}
	c.Viable = true
	c.Xi = r.Observables.Xi
	c.Phi = r.Observables.Phi
	c.Gamma = r.Observables.Gamma
	c.Conscious = r.Observables.Conscious
	return c
}

// ControlRecord is the outcome of one control run.
type ControlRecord struct {
	ID          controls.ID
	Point       *Point // nil for C0, which takes no drive parameters
	Backend     string
	JobID       string
	Depth       int
	Shots       int
	Observables *observables.Set
	SuccessProb float64
	Err         error
}

// #endregion record

// #region result

// Result is everything a sweep produced.
type Result struct {
	RunID    string
	Backend  string
	Started  time.Time
	Finished time.Time
	Config   Config
	Records  []Record // enumeration order
	Controls []ControlRecord
	Verdict  decision.Verdict
}

// Candidates returns one decision candidate per record, in order.
func (r Result) Candidates() []decision.Candidate {
	out := make([]decision.Candidate, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Candidate()
	}
	return out
}

// Count returns how many records ended in status s.
func (r Result) Count(s Status) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Status == s {
			n++
		}
	}
	return n
}

// Best returns the record selected by the verdict, if any.
func (r Result) Best() (Record, bool) {
	i := r.Verdict.BestIndex
	if i < 0 || i >= len(r.Records) {
		return Record{}, false
	}
	return r.Records[i], true
}

// Control returns the record for a control id, if it ran.
func (r Result) Control(id controls.ID) (ControlRecord, bool) {
	for _, c := range r.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return ControlRecord{}, false
}

// #endregion result
