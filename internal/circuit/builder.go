package circuit

import "math"

// #region builder

// Builder emits circuit stages for a fixed partition.
type Builder struct {
	part   Partition
	consts Constants
}

// NewBuilder validates the partition and returns a builder bound to it.
func NewBuilder(part Partition, consts Constants) (*Builder, error) {
	if err := part.Validate(); err != nil {
		return nil, err
	}
	return &Builder{part: part, consts: consts}, nil
}

// Partition returns the partition the builder was created with.
func (b *Builder) Partition() Partition {
	return b.part
}

// Constants returns the builder's constants.
func (b *Builder) Constants() Constants {
	return b.consts
}

// Theta returns THETA_LOCK in radians.
func (b *Builder) Theta() float64 {
	return b.consts.ThetaLockDeg * math.Pi / 180
}

// #endregion builder

// #region base

// BuildBase entangles left qubit i with right qubit L+i for i < min(L,R).
func (b *Builder) BuildBase() Spec {
	return b.Entangle(b.LeftIndices(), b.RightIndices(), true)
}

// Entangle pairs left[i] with right[i] for i < min(len(left), len(right)).
// bridge=false omits the two-qubit coupling and keeps the local rotations.
func (b *Builder) Entangle(left, right []int, bridge bool) Spec {
	spec := Spec{Width: b.part.Total()}
	theta := b.Theta()
	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		l, r := left[i], right[i]
		if !b.inRange(l) || !b.inRange(r) {
			continue
		}
		gates := []Gate{
			{Op: OpH, Qubits: []int{l}},
			{Op: OpRY, Qubits: []int{l}, Angle: Literal(theta)},
		}
		if bridge {
			gates = append(gates, Gate{Op: OpCX, Qubits: []int{l, r}})
		}
		gates = append(gates, Gate{Op: OpRY, Qubits: []int{r}, Angle: Literal(theta / 2)})
		spec.Stages = append(spec.Stages, Stage{
			Kind:   StageEntangle,
			Qubits: []int{l, r},
			Gates:  gates,
		})
	}
	return spec
}

// #endregion base

// #region drive

// AddDrive appends a drive stage over the throat window L-h..L+h with a
// late-bound RZ(param) and a fixed RZ(theta*modulation) on each qubit.
func (b *Builder) AddDrive(spec Spec, param string) Spec {
	return b.AddDriveOn(spec, b.ThroatWindow(), Symbol(param))
}

// AddDriveOn appends a drive stage over explicit qubits.
func (b *Builder) AddDriveOn(spec Spec, qubits []int, angle *Angle) Spec {
	qs := b.clip(qubits)
	fixed := b.Theta() * b.consts.DriveModulation
	gates := make([]Gate, 0, 2*len(qs))
	for _, q := range qs {
		a := *angle
		gates = append(gates,
			Gate{Op: OpRZ, Qubits: []int{q}, Angle: &a},
			Gate{Op: OpRZ, Qubits: []int{q}, Angle: Literal(fixed)},
		)
	}
	return spec.withStages(Stage{Kind: StageDrive, Qubits: qs, Gates: gates})
}

// ThroatWindow returns [L-h, L+h) clipped to the register.
func (b *Builder) ThroatWindow() []int {
	h := b.consts.ThroatHalfWidth
	lo := max(0, b.part.L-h)
	hi := min(b.part.Total(), b.part.L+h)
	var qs []int
	for q := lo; q < hi; q++ {
		qs = append(qs, q)
	}
	return qs
}

// #endregion drive

// #region monitoring

// AddMonitoring appends k cycles of weak guard-to-ancilla coupling, each
// followed by a measurement and reset of the ancilla. Ancillas are reused
// cyclically once k*guards exceeds the ancilla count.
func (b *Builder) AddMonitoring(spec Spec, k int) Spec {
	guards := b.Guards()
	if k <= 0 || len(guards) == 0 || b.part.Anc == 0 {
		return spec
	}
	start := b.part.AncillaStart()
	stages := make([]Stage, 0, k)
	slot := 0
	for cycle := 0; cycle < k; cycle++ {
		var gates []Gate
		touched := make([]int, 0, 2*len(guards))
		for _, g := range guards {
			anc := start + slot%b.part.Anc
			slot++
			gates = append(gates,
				Gate{Op: OpCRY, Qubits: []int{g, anc}, Angle: Literal(b.consts.CouplingStrength)},
				Gate{Op: OpMeasure, Qubits: []int{anc}},
				Gate{Op: OpReset, Qubits: []int{anc}},
			)
			touched = append(touched, g, anc)
		}
		stages = append(stages, Stage{
			Kind:   StageMonitor,
			Qubits: dedupe(touched),
			Cycle:  cycle,
			Gates:  gates,
		})
	}
	return spec.withStages(stages...)
}

// Guards returns the first min(GuardCount, L) left qubits.
func (b *Builder) Guards() []int {
	n := min(b.consts.GuardCount, b.part.L)
	qs := make([]int, 0, max(n, 0))
	for q := 0; q < n; q++ {
		qs = append(qs, q)
	}
	return qs
}

// #endregion monitoring

// #region feed-forward

// AddFeedForward measures the first left qubits and applies a conditional
// X and RZ(theta) on the paired right qubit when the measured bit is 1.
func (b *Builder) AddFeedForward(spec Spec) Spec {
	n := min(b.consts.FeedForwardWidth, b.part.L)
	if n <= 0 {
		return spec
	}
	theta := b.Theta()
	var gates []Gate
	var touched []int
	for q := 0; q < n; q++ {
		gates = append(gates, Gate{Op: OpMeasure, Qubits: []int{q}})
		touched = append(touched, q)
	}
	for i := 0; i < min(n, b.part.R); i++ {
		target := b.part.L + i
		if !b.inRange(target) {
			continue
		}
		cond := &Condition{Clbit: i, Value: 1}
		gates = append(gates,
			Gate{Op: OpX, Qubits: []int{target}, Condition: cond},
			Gate{Op: OpRZ, Qubits: []int{target}, Angle: Literal(theta), Condition: cond},
		)
		touched = append(touched, target)
	}
	return spec.withStages(Stage{Kind: StageFeedForward, Qubits: touched, Gates: gates})
}

// #endregion feed-forward

// #region measure

// MeasureAll appends a full-register measurement.
func (b *Builder) MeasureAll(spec Spec) Spec {
	width := b.part.Total()
	qs := make([]int, width)
	gates := make([]Gate, width)
	for q := 0; q < width; q++ {
		qs[q] = q
		gates[q] = Gate{Op: OpMeasure, Qubits: []int{q}}
	}
	return spec.withStages(Stage{Kind: StageMeasure, Qubits: qs, Gates: gates})
}

// #endregion measure

// #region treatment

// Treatment builds the full parametric template: base, drive(param),
// k monitoring cycles, optional feed-forward, measurement.
func (b *Builder) Treatment(param string, k int, feedForward bool) Spec {
	spec := b.BuildBase()
	spec = b.AddDrive(spec, param)
	spec = b.AddMonitoring(spec, k)
	if feedForward {
		spec = b.AddFeedForward(spec)
	}
	return b.MeasureAll(spec)
}

// #endregion treatment

// #region indices

// LeftIndices returns [0, L).
func (b *Builder) LeftIndices() []int {
	return span(0, b.part.L)
}

// RightIndices returns [L, L+R).
func (b *Builder) RightIndices() []int {
	return span(b.part.L, b.part.L+b.part.R)
}

func (b *Builder) inRange(q int) bool {
	return q >= 0 && q < b.part.Total()
}

// clip drops indices outside [0, total).
func (b *Builder) clip(qs []int) []int {
	out := make([]int, 0, len(qs))
	for _, q := range qs {
		if b.inRange(q) {
			out = append(out, q)
		}
	}
	return out
}

func span(lo, hi int) []int {
	if hi <= lo {
		return nil
	}
	qs := make([]int, 0, hi-lo)
	for q := lo; q < hi; q++ {
		qs = append(qs, q)
	}
	return qs
}

func dedupe(qs []int) []int {
	seen := make(map[int]struct{}, len(qs))
	out := make([]int, 0, len(qs))
	for _, q := range qs {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

// #endregion indices
