package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/circuit"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/observables"
)

// #region methods

// Execution service methods. Requests and replies are google.protobuf.Struct
// so the service contract is schema-light on both sides.
const (
	methodResolve = "/ignition.v1.Execution/Resolve"
	methodCompile = "/ignition.v1.Execution/Compile"
	methodExecute = "/ignition.v1.Execution/Execute"
)

// #endregion methods

// #region client-struct

// Client talks to the remote compilation and execution service over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	backend string
	compile CompileOptions
	execute ExecuteOptions
}

// #endregion client-struct

// #region constructor

// NewClient connects to the execution service at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClientWithConn(conn)
	c.conn = conn
	return c, nil
}

// NewClientWithConn creates a Client over an injected connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{
		cc:      cc,
		compile: DefaultCompileOptions(),
		execute: DefaultExecuteOptions(),
	}
}

// WithBackend returns a copy of the client bound to a backend name.
func (c *Client) WithBackend(name string) *Client {
	cp := *c
	cp.backend = name
	return &cp
}

// WithOptions returns a copy of the client with new compile and execute options.
func (c *Client) WithOptions(compile CompileOptions, execute ExecuteOptions) *Client {
	cp := *c
	cp.compile = compile
	cp.execute = execute
	return &cp
}

// Backend returns the bound backend name.
func (c *Client) Backend() string {
	return c.backend
}

// #endregion constructor

// #region close

// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region resolve

// Resolve asks the service whether a backend exists and accepts jobs.
func (c *Client) Resolve(ctx context.Context, name string) error {
	req, err := structpb.NewStruct(map[string]any{"backend": name})
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodResolve, req, resp); err != nil {
		return fmt.Errorf("resolve rpc: %w", err)
	}
	if !resp.GetFields()["available"].GetBoolValue() {
		return fmt.Errorf("backend %s unavailable", name)
	}
	return nil
}

// #endregion resolve

// #region compile

// Compile sends a bound spec to the remote compiler and returns its depth and handle.
func (c *Client) Compile(ctx context.Context, spec circuit.Spec) (Compiled, error) {
	if !spec.Bound() {
		return Compiled{}, fmt.Errorf("compile: %w: %v", circuit.ErrUnboundParameter, spec.Params())
	}
	encoded, err := encodeSpec(spec)
	if err != nil {
		return Compiled{}, err
	}
	fp, err := circuit.Fingerprint(spec)
	if err != nil {
		return Compiled{}, err
	}
	req, err := structpb.NewStruct(map[string]any{
		"backend":            c.backend,
		"circuit":            encoded,
		"fingerprint":        fp,
		"optimization_level": c.compile.OptimizationLevel,
		"routing_method":     c.compile.RoutingMethod,
		"layout_method":      c.compile.LayoutMethod,
	})
	if err != nil {
		return Compiled{}, fmt.Errorf("compile request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodCompile, req, resp); err != nil {
		return Compiled{}, fmt.Errorf("compile rpc: %w", err)
	}

	fields := resp.GetFields()
	depth := fields["depth"].GetNumberValue()
	if depth < 0 || depth != math.Trunc(depth) {
		return Compiled{}, fmt.Errorf("compile rpc: invalid depth %v", depth)
	}
	return Compiled{
		Spec:        spec,
		Backend:     c.backend,
		Depth:       int(depth),
		Fingerprint: fp,
		Handle:      fields["handle"].GetStringValue(),
	}, nil
}

// #endregion compile

// #region execute

// Execute submits a compiled circuit and waits for its counts.
func (c *Client) Execute(ctx context.Context, compiled Compiled, shots int) (Result, error) {
	payload := map[string]any{
		"backend": c.backend,
		"shots":   shots,
		"dynamical_decoupling": map[string]any{
			"enable":        c.execute.DynamicalDecoupling,
			"sequence_type": c.execute.DDSequence,
		},
	}
	if compiled.Handle != "" {
		payload["handle"] = compiled.Handle
	} else {
		encoded, err := encodeSpec(compiled.Spec)
		if err != nil {
			return Result{}, err
		}
		payload["circuit"] = encoded
	}
	req, err := structpb.NewStruct(payload)
	if err != nil {
		return Result{}, fmt.Errorf("execute request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, methodExecute, req, resp); err != nil {
		return Result{}, fmt.Errorf("execute rpc: %w", err)
	}

	counts, err := decodeCounts(resp.GetFields()["counts"].GetStructValue())
	if err != nil {
		return Result{}, err
	}
	return Result{
		JobID:  resp.GetFields()["job_id"].GetStringValue(),
		Counts: counts,
	}, nil
}

// #endregion execute

// #region codec

// encodeSpec converts a spec into a Struct-compatible map via its JSON form.
func encodeSpec(spec circuit.Spec) (map[string]any, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	return m, nil
}

// decodeCounts reads a bitstring -> count Struct. Counts must be non-negative integers.
func decodeCounts(s *structpb.Struct) (observables.Counts, error) {
	if s == nil {
		return nil, fmt.Errorf("execute rpc: response has no counts")
	}
	counts := make(observables.Counts, len(s.GetFields()))
	for k, v := range s.GetFields() {
		n := v.GetNumberValue()
		if n < 0 || n != math.Trunc(n) {
			return nil, fmt.Errorf("execute rpc: invalid count %v for %q", n, k)
		}
		counts[k] = int(n)
	}
	return counts, nil
}

// #endregion codec
