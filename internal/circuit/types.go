package circuit

import (
	"errors"
	"fmt"
)

// #region errors

// ErrUnboundParameter is returned by Bind when a symbolic angle has no value.
var ErrUnboundParameter = errors.New("unbound circuit parameter")

// ErrInvalidPartition is returned when a partition has a negative cluster size.
var ErrInvalidPartition = errors.New("invalid qubit partition")

// #endregion errors

// #region partition

// Partition splits the register into a left cluster, a right cluster and ancillas.
// Qubits are laid out as [0,L) left, [L,L+R) right, [L+R,L+R+Anc) ancilla.
type Partition struct {
	L   int `json:"L" yaml:"L" validate:"gte=0"`
	R   int `json:"R" yaml:"R" validate:"gte=0"`
	Anc int `json:"Anc" yaml:"Anc" validate:"gte=0"`
}

// Total returns the register width.
func (p Partition) Total() int {
	return p.L + p.R + p.Anc
}

// Validate rejects negative cluster sizes.
func (p Partition) Validate() error {
	if p.L < 0 || p.R < 0 || p.Anc < 0 {
		return fmt.Errorf("%w: L=%d R=%d Anc=%d", ErrInvalidPartition, p.L, p.R, p.Anc)
	}
	return nil
}

// AncillaStart is the first ancilla index.
func (p Partition) AncillaStart() int {
	return p.L + p.R
}

// #endregion partition

// #region constants

// Constants holds the fixed angles and window sizes shared by every builder.
type Constants struct {
	ThetaLockDeg     float64 `yaml:"theta_lock_deg"`                      // entangling rotation, degrees
	DriveModulation  float64 `yaml:"drive_modulation" validate:"gte=0"`   // fraction of theta applied as fixed drive rotation
	CouplingStrength float64 `yaml:"coupling_strength" validate:"gte=0"`  // weak CRY angle used by monitoring cycles
	GuardCount       int     `yaml:"guard_count" validate:"gte=0"`        // left qubits coupled to ancillas per cycle
	ThroatHalfWidth  int     `yaml:"throat_half_width" validate:"gte=0"`  // drive window extends this far either side of L
	FeedForwardWidth int     `yaml:"feed_forward_width" validate:"gte=0"` // left qubits measured by the feed-forward stage
}

// DefaultConstants returns the values used by the v2.1 sweep protocol.
func DefaultConstants() Constants {
	return Constants{
		ThetaLockDeg:     51.843,
		DriveModulation:  0.1,
		CouplingStrength: 0.1,
		GuardCount:       8,
		ThroatHalfWidth:  5,
		FeedForwardWidth: 10,
	}
}

// #endregion constants

// #region ops

// Op names a gate primitive. The primitives themselves live in the execution service.
type Op string

const (
	OpH       Op = "h"
	OpX       Op = "x"
	OpRY      Op = "ry"
	OpRZ      Op = "rz"
	OpCX      Op = "cx"
	OpCRY     Op = "cry"
	OpMeasure Op = "measure"
	OpReset   Op = "reset"
)

// IsTwoQubit reports whether the op acts on a (control, target) pair.
func (o Op) IsTwoQubit() bool {
	return o == OpCX || o == OpCRY
}

// #endregion ops

// #region stage-kind

// StageKind tags what a stage is for.
type StageKind string

const (
	StageEntangle    StageKind = "entangle"
	StageDrive       StageKind = "drive"
	StageMonitor     StageKind = "monitor"
	StageFeedForward StageKind = "feed_forward"
	StageMeasure     StageKind = "measure"
)

// #endregion stage-kind

// #region angle

// Angle is either a literal value in radians or a named symbolic parameter.
type Angle struct {
	Value float64 `json:"value"`
	Param string  `json:"param,omitempty"` // non-empty = late-bound
}

// Literal returns a bound angle.
func Literal(v float64) *Angle {
	return &Angle{Value: v}
}

// Symbol returns an unbound angle named p.
func Symbol(p string) *Angle {
	return &Angle{Param: p}
}

// Bound reports whether the angle carries a numeric value.
func (a *Angle) Bound() bool {
	return a == nil || a.Param == ""
}

// #endregion angle

// #region gate

// Condition gates an op on a classical bit value.
type Condition struct {
	Clbit int `json:"clbit"`
	Value int `json:"value"`
}

// Gate is one primitive application. Qubits[0] is the control for two-qubit ops.
// For measurements the classical bit index equals the qubit index.
type Gate struct {
	Op        Op         `json:"op"`
	Qubits    []int      `json:"qubits"`
	Angle     *Angle     `json:"angle,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
}

// #endregion gate

// #region stage

// Stage is an ordered group of gates with the qubits it touches.
type Stage struct {
	Kind   StageKind `json:"kind"`
	Qubits []int     `json:"qubits"`
	Cycle  int       `json:"cycle,omitempty"` // monitoring cycle, 0-based
	Gates  []Gate    `json:"gates"`
}

// #endregion stage

// #region spec

// Spec is an ordered list of stages over a register of Width qubits.
// A Spec with symbolic angles is a template; Bind produces a concrete Spec.
type Spec struct {
	Width  int     `json:"width"`
	Stages []Stage `json:"stages"`
}

// Params returns the distinct symbolic parameter names in first-use order.
func (s Spec) Params() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, st := range s.Stages {
		for _, g := range st.Gates {
			if g.Angle == nil || g.Angle.Param == "" {
				continue
			}
			if _, ok := seen[g.Angle.Param]; ok {
				continue
			}
			seen[g.Angle.Param] = struct{}{}
			out = append(out, g.Angle.Param)
		}
	}
	return out
}

// Bound reports whether every angle in the spec is numeric.
func (s Spec) Bound() bool {
	return len(s.Params()) == 0
}

// CountOp counts gates of the given op across all stages.
func (s Spec) CountOp(op Op) int {
	n := 0
	for _, st := range s.Stages {
		for _, g := range st.Gates {
			if g.Op == op {
				n++
			}
		}
	}
	return n
}

// StagesOf returns the stages of the given kind, in order.
func (s Spec) StagesOf(kind StageKind) []Stage {
	var out []Stage
	for _, st := range s.Stages {
		if st.Kind == kind {
			out = append(out, st)
		}
	}
	return out
}

// withStages returns a copy of s with extra stages appended.
// The original stage slice is never shared with the result.
func (s Spec) withStages(extra ...Stage) Spec {
	stages := make([]Stage, 0, len(s.Stages)+len(extra))
	stages = append(stages, s.Stages...)
	stages = append(stages, extra...)
	return Spec{Width: s.Width, Stages: stages}
}

// #endregion spec
