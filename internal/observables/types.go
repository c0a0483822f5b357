package observables

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// #region errors

// ErrInvalidDistribution marks empty, negative or malformed outcome counts.
var ErrInvalidDistribution = errors.New("invalid outcome distribution")

// #endregion errors

// #region counts

// Counts maps a measured bitstring to the number of shots that produced it.
type Counts map[string]int

// Total returns the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Support returns the number of bitstrings with a non-zero count.
func (c Counts) Support() int {
	n := 0
	for _, v := range c {
		if v > 0 {
			n++
		}
	}
	return n
}

// Validate checks the distribution invariants: non-negative counts, every key
// of the given width over {0,1}, and a total equal to shots. width or shots
// of zero skip the respective check.
func (c Counts) Validate(width, shots int) error {
	if err := c.check(); err != nil {
		return err
	}
	for s := range c {
		if width > 0 && len(s) != width {
			return fmt.Errorf("%w: bitstring %q has width %d, want %d", ErrInvalidDistribution, s, len(s), width)
		}
		if strings.Trim(s, "01") != "" {
			return fmt.Errorf("%w: bitstring %q is not binary", ErrInvalidDistribution, s)
		}
	}
	if shots > 0 && c.Total() != shots {
		return fmt.Errorf("%w: counts sum to %d, requested %d shots", ErrInvalidDistribution, c.Total(), shots)
	}
	return nil
}

// check is the minimum every statistic requires: no negatives, positive total.
func (c Counts) check() error {
	for s, n := range c {
		if n < 0 {
			return fmt.Errorf("%w: negative count %d for %q", ErrInvalidDistribution, n, s)
		}
	}
	if c.Total() <= 0 {
		return fmt.Errorf("%w: counts sum to zero", ErrInvalidDistribution)
	}
	return nil
}

// Sample returns at most n entries, highest counts first, ties broken by key.
func (c Counts) Sample(n int) Counts {
	keys := c.sortedKeys()
	if n < len(keys) {
		keys = keys[:max(n, 0)]
	}
	out := make(Counts, len(keys))
	for _, k := range keys {
		out[k] = c[k]
	}
	return out
}

func (c Counts) sortedKeys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c[keys[i]] != c[keys[j]] {
			return c[keys[i]] > c[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// #endregion counts

// #region set

// Set holds the observables derived from one distribution. Conscious and
// Stable are filled in by the decision engine.
type Set struct {
	Phi       float64 `json:"phi"`
	Lambda    float64 `json:"lambda"`
	Gamma     float64 `json:"gamma"`
	Xi        float64 `json:"xi"`
	Conscious bool    `json:"conscious"`
	Stable    bool    `json:"stable"`
}

// #endregion set

// #region reduce-input

// ReduceInput carries everything Reduce needs besides the counts.
type ReduceInput struct {
	Width          int    // register width
	Reference      string // coherence reference; empty = all-zero bitstring
	ExpectedParity int    // 0 even, 1 odd
}

// #endregion reduce-input
