package executor

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region local-compiler

// LocalCompiler compiles in-process: depth is the ASAP layer count of the
// spec and no remote handle is produced.
type LocalCompiler struct {
	Backend string
}

// Compile implements Compiler.
func (l LocalCompiler) Compile(ctx context.Context, spec circuit.Spec) (Compiled, error) {
	if err := ctx.Err(); err != nil {
		return Compiled{}, err
	}
	if !spec.Bound() {
		return Compiled{}, fmt.Errorf("compile: %w: %v", circuit.ErrUnboundParameter, spec.Params())
	}
	fp, err := circuit.Fingerprint(spec)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{
		Spec:        spec,
		Backend:     l.Backend,
		Depth:       circuit.Depth(spec),
		Fingerprint: fp,
	}, nil
}

// #endregion local-compiler

// #region synthetic

// DistributionFunc produces counts for a compiled circuit.
type DistributionFunc func(c Compiled, shots int) (observables.Counts, error)

// Synthetic is an in-process executor for dry runs and tests.
type Synthetic struct {
	Distribution DistributionFunc // nil uses Seeded
	Delay        time.Duration    // simulated queue time, interrupted by ctx
	Backends     []string         // names Resolve accepts; empty accepts any

	jobs atomic.Int64
}

// Execute implements Executor.
func (s *Synthetic) Execute(ctx context.Context, c Compiled, shots int) (Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	dist := s.Distribution
	if dist == nil {
		dist = Seeded
	}
	counts, err := dist(c, shots)
	if err != nil {
		return Result{}, err
	}
	return Result{
		JobID:  "synthetic-" + strconv.FormatInt(s.jobs.Add(1), 10),
		Counts: counts,
	}, nil
}

// Resolve implements BackendResolver.
func (s *Synthetic) Resolve(_ context.Context, name string) error {
	if len(s.Backends) == 0 {
		return nil
	}
	for _, b := range s.Backends {
		if b == name {
			return nil
		}
	}
	return fmt.Errorf("backend %s not simulated", name)
}

// #endregion synthetic

// #region distributions

// DominantOutcome returns a distribution with shots-minority counts on the
// all-zero bitstring and minority counts on the all-one bitstring.
func DominantOutcome(minority int) DistributionFunc {
	return func(c Compiled, shots int) (observables.Counts, error) {
		if minority < 0 || minority > shots {
			return nil, fmt.Errorf("minority %d outside [0,%d]", minority, shots)
		}
		w := c.Spec.Width
		counts := observables.Counts{strings.Repeat("0", w): shots - minority}
		if minority > 0 {
			counts[strings.Repeat("1", w)] = minority
		}
		return counts, nil
	}
}

// Seeded returns a reproducible distribution derived from the circuit
// fingerprint: most shots land on the all-zero outcome and the remainder
// spread over a handful of random bitstrings.
func Seeded(c Compiled, shots int) (observables.Counts, error) {
	seed, err := fingerprintSeed(c.Fingerprint)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	w := c.Spec.Width

	counts := observables.Counts{}
	if shots == 0 {
		return counts, nil
	}
	head := int(float64(shots) * (0.6 + 0.35*rng.Float64()))
	counts[strings.Repeat("0", w)] = head

	rest := shots - head
	outcomes := 1 + rng.Intn(8)
	for i := 0; i < outcomes && rest > 0; i++ {
		n := rest
		if i < outcomes-1 {
			n = rng.Intn(rest + 1)
		}
		counts[randomBits(rng, w)] += n
		rest -= n
	}
	if rest > 0 {
		counts[strings.Repeat("0", w)] += rest
	}
	return counts, nil
}

func fingerprintSeed(fp string) (int64, error) {
	if len(fp) < 16 {
		return 0, fmt.Errorf("fingerprint %q too short to seed", fp)
	}
	u, err := strconv.ParseUint(fp[:16], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("fingerprint seed: %w", err)
	}
	return int64(u), nil
}

func randomBits(rng *rand.Rand, w int) string {
	var sb strings.Builder
	sb.Grow(w)
	for i := 0; i < w; i++ {
		sb.WriteByte('0' + byte(rng.Intn(2)))
	}
	return sb.String()
}

// #endregion distributions
