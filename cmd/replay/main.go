package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/pflag"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/decision"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/replay"
)

// #region main

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := replay.DefaultReplayConfig()

	flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	phi := flagSet.Float64("phi-threshold", defaults.Decision.PhiThreshold, "integration threshold for conscious")
	gamma := flagSet.Float64("gamma-critical", defaults.Decision.GammaCritical, "decoherence bound for stable")
	minPhi := flagSet.Float64("min-phi-contrast", defaults.Eval.MinPhiContrast, "attribution: best phi minus C0 phi")
	minXi := flagSet.Float64("min-xi-drop", defaults.Eval.MinXiDrop, "attribution: relative xi drop under C1 and C2")
	jsonOut := flagSet.Bool("json", false, "output as JSON instead of text")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: replay [--phi-threshold X] [--gamma-critical Y] [--json] path/to/artifact.json")
		return 2
	}

	a, err := evidence.Load(flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "load artifact: %v\n", err)
		return 1
	}

	cfg := replay.ReplayConfig{
		Decision: decision.Config{PhiThreshold: *phi, GammaCritical: *gamma},
	}
	cfg.Eval.MinPhiContrast = *minPhi
	cfg.Eval.MinXiDrop = *minXi

	cells, summary, err := replay.Replay(a, cfg)
	if err != nil && !errors.Is(err, decision.ErrNoViableConfiguration) {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}

	if *jsonOut {
		if err := printJSON(stdout, replayOutput{RunID: a.RunID, Cells: cells, Summary: summary}); err != nil {
			fmt.Fprintf(stderr, "encode: %v\n", err)
			return 1
		}
		return 0
	}
	printSummary(stdout, a, cfg, cells, summary)
	return 0
}

// #endregion main

// #region output

type replayOutput struct {
	RunID   string               `json:"run_id"`
	Cells   []replay.CellReplay  `json:"cells"`
	Summary replay.ReplaySummary `json:"summary"`
}

func printSummary(w io.Writer, a evidence.Artifact, cfg replay.ReplayConfig, cells []replay.CellReplay, s replay.ReplaySummary) {
	fmt.Fprintf(w, "Replay of %s (%s)\n", a.RunID, a.Backend)
	fmt.Fprintf(w, "  thresholds: phi >= %.4f, gamma < %.4f\n", cfg.Decision.PhiThreshold, cfg.Decision.GammaCritical)
	fmt.Fprintf(w, "  cells: %d with observables, %d failed, %d reclassified\n", s.Cells, s.Failed, s.Changed)

	for _, c := range cells {
		if !c.Changed {
			continue
		}
		fmt.Fprintf(w, "  [%d] alpha=%.2fpi K=%d: conscious %t->%t stable %t->%t\n",
			c.Position, c.Alpha/math.Pi, c.K,
			c.Before.Conscious, c.After.Conscious, c.Before.Stable, c.After.Stable)
	}

	fmt.Fprintf(w, "  recorded: %s\n", a.Verdict.Outcome)
	fmt.Fprintf(w, "  replayed: %s (%s)\n", s.After.Outcome, s.After.Reason)
	if s.VerdictFlipped {
		fmt.Fprintln(w, "  verdict flipped")
	}
	if s.Attribution != nil {
		for _, m := range s.Attribution.Metrics {
			state := "fail"
			switch {
			case m.Missing:
				state = "missing"
			case m.Pass:
				state = "pass"
			}
			fmt.Fprintf(w, "  %-22s %8.4f  %s\n", m.Name, m.Value, state)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion output
