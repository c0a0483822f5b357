// Package controls builds the causal-attribution variants paired with the
// treatment circuit: a no-drive baseline, a bridge-cut variant and a
// permuted-mapping variant.
package controls

import (
	"math/rand"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
)

// #region ids

// ID identifies a control variant.
type ID string

const (
	C0 ID = "C0" // base entanglement + measurement, no drive, no monitoring
	C1 ID = "C1" // treatment without the left/right coupling
	C2 ID = "C2" // treatment on permuted left/right index sequences
)

// All lists the controls in execution order.
var All = []ID{C0, C1, C2}

// Describe returns a short label for logs and reports.
func (id ID) Describe() string {
	switch id {
	case C0:
		return "baseline (no drive, no monitoring)"
	case C1:
		return "bridge cut (no left/right coupling)"
	case C2:
		return "permuted qubit mapping"
	default:
		return string(id)
	}
}

// DefaultSeed is the permutation seed used when none is configured.
const DefaultSeed int64 = 42

// #endregion ids

// #region builder

// Builder derives control circuits from a treatment builder.
type Builder struct {
	base *circuit.Builder
	seed int64
}

// NewBuilder wraps base. seed fixes the C2 permutation.
func NewBuilder(base *circuit.Builder, seed int64) *Builder {
	return &Builder{base: base, seed: seed}
}

// Seed returns the C2 permutation seed.
func (b *Builder) Seed() int64 {
	return b.seed
}

// Build dispatches on id. alpha and k are ignored for C0.
func (b *Builder) Build(id ID, alpha float64, k int, feedForward bool) circuit.Spec {
	switch id {
	case C1:
		return b.BridgeCut(alpha, k, feedForward)
	case C2:
		return b.Permuted(alpha, k, feedForward)
	default:
		return b.Baseline()
	}
}

// #endregion builder

// #region c0

// Baseline is the base entangling stage followed by full measurement.
func (b *Builder) Baseline() circuit.Spec {
	return b.base.MeasureAll(b.base.BuildBase())
}

// #endregion c0

// #region c1

// BridgeCut is the treatment circuit at a fixed alpha with every left/right
// coupling gate omitted.
func (b *Builder) BridgeCut(alpha float64, k int, feedForward bool) circuit.Spec {
	spec := b.base.Entangle(b.base.LeftIndices(), b.base.RightIndices(), false)
	spec = b.base.AddDriveOn(spec, b.base.ThroatWindow(), circuit.Literal(alpha))
	return b.finish(spec, k, feedForward)
}

// #endregion c1

// #region c2

// Permuted shuffles the left and right index sequences independently,
// entangles left[i] with right[i], and drives the permuted throat: the last
// h left indices followed by the first h right indices.
func (b *Builder) Permuted(alpha float64, k int, feedForward bool) circuit.Spec {
	left, right := b.Permutation()
	spec := b.base.Entangle(left, right, true)
	spec = b.base.AddDriveOn(spec, b.throat(left, right), circuit.Literal(alpha))
	return b.finish(spec, k, feedForward)
}

// Permutation returns the left and right permutations for the builder's seed.
// Every call starts from a fresh source, so repeated calls agree.
func (b *Builder) Permutation() (left, right []int) {
	rng := rand.New(rand.NewSource(b.seed))
	left = b.base.LeftIndices()
	right = b.base.RightIndices()
	rng.Shuffle(len(left), func(i, j int) { left[i], left[j] = left[j], left[i] })
	rng.Shuffle(len(right), func(i, j int) { right[i], right[j] = right[j], right[i] })
	return left, right
}

func (b *Builder) throat(left, right []int) []int {
	h := b.base.Constants().ThroatHalfWidth
	tail := left[max(0, len(left)-h):]
	head := right[:min(h, len(right))]
	qs := make([]int, 0, len(tail)+len(head))
	qs = append(qs, tail...)
	return append(qs, head...)
}

// #endregion c2

// #region helpers

func (b *Builder) finish(spec circuit.Spec, k int, feedForward bool) circuit.Spec {
	spec = b.base.AddMonitoring(spec, k)
	if feedForward {
		spec = b.base.AddFeedForward(spec)
	}
	return b.base.MeasureAll(spec)
}

// #endregion helpers
