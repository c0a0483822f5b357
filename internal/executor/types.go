package executor

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region errors

// ErrNoBackendAvailable is returned when none of the candidate backends resolve.
var ErrNoBackendAvailable = errors.New("no backend available")

// #endregion errors

// #region compiled

// Compiled is a hardware-compiled circuit ready for submission.
type Compiled struct {
	Spec        circuit.Spec
	Backend     string
	Depth       int
	Fingerprint string
	Handle      string // remote compiled-circuit handle; empty when compiled locally
}

// #endregion compiled

// #region result

// Result is the outcome of one execution.
type Result struct {
	JobID  string
	Counts observables.Counts
}

// #endregion result

// #region interfaces

// Compiler turns a bound spec into a compiled circuit.
type Compiler interface {
	Compile(ctx context.Context, spec circuit.Spec) (Compiled, error)
}

// Executor submits a compiled circuit and blocks until counts are available.
type Executor interface {
	Execute(ctx context.Context, c Compiled, shots int) (Result, error)
}

// BackendResolver reports whether a named backend can take jobs.
type BackendResolver interface {
	Resolve(ctx context.Context, name string) error
}

// #endregion interfaces

// #region options

// CompileOptions are forwarded to the remote compiler.
type CompileOptions struct {
	OptimizationLevel int    `yaml:"optimization_level" validate:"gte=0,lte=3"`
	RoutingMethod     string `yaml:"routing_method"`
	LayoutMethod      string `yaml:"layout_method"`
}

// DefaultCompileOptions mirrors the sweep protocol's transpiler settings.
func DefaultCompileOptions() CompileOptions {
	return CompileOptions{
		OptimizationLevel: 3,
		RoutingMethod:     "sabre",
		LayoutMethod:      "sabre",
	}
}

// ExecuteOptions are forwarded with every submission.
type ExecuteOptions struct {
	DynamicalDecoupling bool   `yaml:"dynamical_decoupling"`
	DDSequence          string `yaml:"dd_sequence"`
}

// DefaultExecuteOptions enables XY4 dynamical decoupling.
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		DynamicalDecoupling: true,
		DDSequence:          "XY4",
	}
}

// #endregion options
