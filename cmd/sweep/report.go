package main

import (
	"fmt"
	"io"
	"math"

	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/controls"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/eval"
	"github.com/danielpatrickdp/ignition-sweep/go-controller/internal/sweep"
)

// #region report
func printReport(w io.Writer, res sweep.Result, attr *eval.EvalResult, evidencePath string) {
	fmt.Fprintf(w, "Run %s on %s\n", res.RunID, res.Backend)
	fmt.Fprintf(w, "  cells: %d completed | %d invalid | %d failed\n",
		res.Count(sweep.StatusCompleted), res.Count(sweep.StatusInvalid), res.Count(sweep.StatusFailed))

	if best, ok := res.Best(); ok && best.Observables != nil {
		o := best.Observables
		fmt.Fprintf(w, "  best: alpha=%.4f (%.2fpi) K=%d depth=%d\n",
			best.Point.Alpha, best.Point.Alpha/math.Pi, best.Point.K, best.Depth)
		fmt.Fprintf(w, "    phi=%.4f lambda=%.4f gamma=%.4f xi=%.4f conscious=%t stable=%t\n",
			o.Phi, o.Lambda, o.Gamma, o.Xi, o.Conscious, o.Stable)
		fmt.Fprintf(w, "    p_succ=%.4f delta_tau_eff=%.4f\n", best.SuccessProb, best.DeltaTauEff)
	}

	for _, id := range controls.All {
		c, ok := res.Control(id)
		switch {
		case !ok:
			fmt.Fprintf(w, "  %s %s: not run\n", id, id.Describe())
		case c.Err != nil:
			fmt.Fprintf(w, "  %s %s: failed (%v)\n", id, id.Describe(), c.Err)
		case c.Observables != nil:
			fmt.Fprintf(w, "  %s %s: phi=%.4f lambda=%.4f gamma=%.4f\n",
				id, id.Describe(), c.Observables.Phi, c.Observables.Lambda, c.Observables.Gamma)
		default:
			fmt.Fprintf(w, "  %s %s: no observables\n", id, id.Describe())
		}
	}

	if attr != nil {
		status := "supported"
		if !attr.Passed {
			status = "not supported"
		}
		fmt.Fprintf(w, "  attribution: %s (%s)\n", status, attr.Reason)
	}

	fmt.Fprintf(w, "Outcome: %s (%s)\n", res.Verdict.Outcome.Describe(), res.Verdict.Reason)
	fmt.Fprintf(w, "Evidence: %s\n", evidencePath)
}

// #endregion report
