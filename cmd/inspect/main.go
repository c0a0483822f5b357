package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/pflag"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/evidence"
)

// #region main

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	indexPath := flagSet.String("index", os.Getenv("SWEEP_INDEX_PATH"), "path to the evidence index (default $SWEEP_INDEX_PATH)")
	last := flagSet.Int("last", 20, "show N most recent runs")
	runID := flagSet.String("run", "", "show the cells of one run")
	jsonOut := flagSet.Bool("json", false, "output as JSON instead of table")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *indexPath == "" {
		fmt.Fprintln(stderr, "usage: inspect --index path/to/index.db [--last N] [--run id] [--json]")
		return 2
	}

	idx, err := evidence.OpenIndex(*indexPath)
	if err != nil {
		fmt.Fprintf(stderr, "open index: %v\n", err)
		return 1
	}
	defer idx.Close()

	if *runID != "" {
		err = runDetailMode(stdout, idx, *runID, *jsonOut)
	} else {
		err = runListMode(stdout, stderr, idx, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string `json:"run_id"`
	Backend   string `json:"backend"`
	StartedAt string `json:"started_at"`
	Outcome   string `json:"outcome"`
	Ignited   bool   `json:"ignited"`
	Results   int    `json:"results"`
	Failed    int    `json:"failed"`
	Artifact  string `json:"artifact"`
}

func runListMode(w, stderr io.Writer, idx *evidence.Index, last int, jsonOut bool) error {
	runs, err := idx.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:     r.RunID,
			Backend:   r.Backend,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
			Outcome:   r.Outcome,
			Ignited:   r.Ignited,
			Results:   r.Results,
			Failed:    r.Failed,
			Artifact:  r.ArtifactPath,
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-12s  %-14s  %-20s  %-13s  %7s  %6s\n",
		"Run", "Backend", "Started", "Outcome", "Results", "Failed")
	fmt.Fprintf(w, "%-12s+-%-14s+-%-20s+-%-13s+-%7s+-%6s\n",
		"------------", "--------------", "--------------------", "-------------", "-------", "------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s  %-14s  %-20s  %-13s  %7d  %6d\n",
			shortID(r.RunID), r.Backend, r.StartedAt, r.Outcome, r.Results, r.Failed)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Run   evidence.RunSummary `json:"run"`
	Cells []evidence.CellRow  `json:"cells"`
}

func runDetailMode(w io.Writer, idx *evidence.Index, runID string, jsonOut bool) error {
	summary, err := idx.Run(runID)
	if err != nil {
		return err
	}
	cells, err := idx.Cells(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(w, detailOutput{Run: summary, Cells: cells})
	}

	fmt.Fprintf(w, "Run:        %s\n", summary.RunID)
	fmt.Fprintf(w, "Backend:    %s\n", summary.Backend)
	fmt.Fprintf(w, "Started:    %s\n", summary.StartedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "Outcome:    %s\n", summary.Outcome)
	if summary.Reason != "" {
		fmt.Fprintf(w, "Reason:     %s\n", summary.Reason)
	}
	fmt.Fprintf(w, "Thresholds: phi >= %.4f, gamma < %.4f\n", summary.PhiThreshold, summary.GammaCritical)
	fmt.Fprintf(w, "Artifact:   %s\n\n", summary.ArtifactPath)

	fmt.Fprintf(w, "%3s  %8s  %3s  %-9s  %8s  %8s  %8s  %8s  %s\n",
		"#", "Alpha/pi", "K", "Status", "Phi", "Lambda", "Gamma", "Xi", "Flags")
	for _, c := range cells {
		flags := ""
		if c.Conscious != nil && *c.Conscious {
			flags += "C"
		}
		if c.Stable != nil && *c.Stable {
			flags += "S"
		}
		if c.Error != "" {
			flags = c.Error
		}
		fmt.Fprintf(w, "%3d  %8.2f  %3d  %-9s  %8s  %8s  %8s  %8s  %s\n",
			c.Position, c.Alpha/math.Pi, c.K, c.Status,
			fmtPtr(c.Phi), fmtPtr(c.Lambda), fmtPtr(c.Gamma), fmtPtr(c.Xi), flags)
	}
	return nil
}

// #endregion detail-mode

// #region helpers

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

// #endregion helpers
