package circuit

import (
	"fmt"
	"sort"
	"strings"
)

// #region bind

// Bind substitutes numeric values for symbolic angles and returns a new Spec.
// The template is left untouched. Values for names the template does not use
// are ignored.
func Bind(template Spec, values map[string]float64) (Spec, error) {
	var missing []string
	out := Spec{Width: template.Width, Stages: make([]Stage, len(template.Stages))}
	for i, st := range template.Stages {
		gates := make([]Gate, len(st.Gates))
		for j, g := range st.Gates {
			ng := g
			ng.Qubits = append([]int(nil), g.Qubits...)
			if g.Angle != nil {
				a := *g.Angle
				if a.Param != "" {
					v, ok := values[a.Param]
					if !ok {
						missing = append(missing, a.Param)
					} else {
						a = Angle{Value: v}
					}
				}
				ng.Angle = &a
			}
			if g.Condition != nil {
				c := *g.Condition
				ng.Condition = &c
			}
			gates[j] = ng
		}
		out.Stages[i] = Stage{
			Kind:   st.Kind,
			Qubits: append([]int(nil), st.Qubits...),
			Cycle:  st.Cycle,
			Gates:  gates,
		}
	}
	if len(missing) > 0 {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnboundParameter, strings.Join(uniqueSorted(missing), ", "))
	}
	return out, nil
}

// #endregion bind

// #region helpers

func uniqueSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// #endregion helpers
