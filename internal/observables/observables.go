package observables

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// #region constants

const (
	// offReferenceWeight scales the off-reference term of the coherence proxy.
	offReferenceWeight = 0.1

	// parityWeight and leakageWeight blend the decoherence proxy.
	parityWeight  = 0.7
	leakageWeight = 0.3

	// leakageQubitCap bounds the leakage normalizer to 2^20 regardless of width.
	leakageQubitCap = 20

	// compositeEpsilon keeps the composite index finite when gamma is zero.
	compositeEpsilon = 1e-10

	// minSuccessProb below which the time shortcut is reported as zero.
	minSuccessProb = 0.01

	// baselineSuccess is the assumed success probability of the baseline circuit.
	baselineSuccess = 0.5
)

// #endregion constants

// #region integration

// Integration returns Shannon entropy normalized by log2 of the support size.
// Zero when the support has at most one outcome.
func Integration(c Counts) (float64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	p := c.probabilities()
	if len(p) <= 1 {
		return 0, nil
	}
	// stat.Entropy is in nats; the ratio is base-independent.
	return stat.Entropy(p) / math.Log(float64(len(p))), nil
}

// #endregion integration

// #region coherence

// Coherence returns sqrt(p_ref) + 0.1 * sum of sqrt(p_s) over s != ref, clamped to [0, 1].
func Coherence(c Counts, reference string) (float64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	total := float64(c.Total())
	var off float64
	for s, n := range c {
		if s == reference || n == 0 {
			continue
		}
		off += math.Sqrt(float64(n) / total)
	}
	ref := math.Sqrt(float64(c[reference]) / total)
	return clamp(ref + offReferenceWeight*off), nil
}

// ZeroReference returns the all-zero bitstring of the given width.
func ZeroReference(width int) string {
	return strings.Repeat("0", max(width, 0))
}

// #endregion coherence

// #region decoherence

// Decoherence blends the parity violation rate with a leakage term
// |supp| / 2^min(n,20), clamped to [0, 1].
func Decoherence(c Counts, totalQubits, expectedParity int) (float64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	total := float64(c.Total())
	var matching float64
	for s, n := range c {
		if strings.Count(s, "1")%2 == expectedParity%2 {
			matching += float64(n)
		}
	}
	leakage := float64(c.Support()) / math.Exp2(float64(min(max(totalQubits, 0), leakageQubitCap)))
	gamma := parityWeight*(1-matching/total) + leakageWeight*leakage
	return clamp(gamma), nil
}

// #endregion decoherence

// #region composite

// CompositeIndex returns (lambda*phi)/(gamma+1e-10).
func CompositeIndex(phi, lambda, gamma float64) float64 {
	return (lambda * phi) / (gamma + compositeEpsilon)
}

// #endregion composite

// #region time-shortcut

// EffectiveTimeShortcut returns baselineDepth/0.5 - depth/successProb, or zero
// when successProb < 0.01.
func EffectiveTimeShortcut(depth int, successProb, baselineDepth float64) float64 {
	if successProb < minSuccessProb {
		return 0
	}
	return baselineDepth/baselineSuccess - float64(depth)/successProb
}

// SuccessProbability returns the probability of the dominant outcome.
func SuccessProbability(c Counts) (float64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	best := 0
	for _, n := range c {
		best = max(best, n)
	}
	return float64(best) / float64(c.Total()), nil
}

// #endregion time-shortcut

// #region reduce

// Reduce computes phi, lambda, gamma and xi from one distribution.
func Reduce(c Counts, in ReduceInput) (Set, error) {
	ref := in.Reference
	if ref == "" {
		ref = ZeroReference(in.Width)
	}
	phi, err := Integration(c)
	if err != nil {
		return Set{}, err
	}
	lambda, err := Coherence(c, ref)
	if err != nil {
		return Set{}, err
	}
	gamma, err := Decoherence(c, in.Width, in.ExpectedParity)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Phi:    phi,
		Lambda: lambda,
		Gamma:  gamma,
		Xi:     CompositeIndex(phi, lambda, gamma),
	}, nil
}

// #endregion reduce

// #region helpers

// probabilities returns the non-zero outcome probabilities in key order.
func (c Counts) probabilities() []float64 {
	keys := c.sortedKeys()
	p := make([]float64, 0, len(keys))
	for _, k := range keys {
		if c[k] > 0 {
			p = append(p, float64(c[k]))
		}
	}
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// clamp restricts v to [0, 1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
