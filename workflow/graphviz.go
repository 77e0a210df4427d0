package workflow

import (
	"fmt"
	"strings"
)

// DumpDOT renders the workflow as a Graphviz digraph. Places in marking are
// filled. Workflows draw transitions as boxes between places; state
// machines draw them as labelled edges.
func DumpDOT(w *Workflow, marking Marking) string {
	var b strings.Builder
	def := w.Definition()

	fmt.Fprintf(&b, "digraph workflow {\n")
	fmt.Fprintf(&b, "  ratio=\"compress\" rankdir=\"LR\" label=%q\n", w.Name())
	fmt.Fprintf(&b, "  node [fontsize=\"9\" fontname=\"Arial\" color=\"#333333\" fillcolor=\"lightblue\" fixedsize=\"false\" width=\"1\"];\n")
	fmt.Fprintf(&b, "  edge [fontsize=\"9\" fontname=\"Arial\" color=\"#333333\" arrowhead=\"normal\" arrowsize=\"0.5\"];\n\n")

	initial := def.InitialPlaces()
	for _, p := range def.Places() {
		attrs := []string{"shape=circle"}
		for _, ip := range initial {
			if ip == p {
				attrs = append(attrs, "style=\"filled\"")
				break
			}
		}
		if marking.Has(p) {
			attrs = append(attrs, "color=\"#FF0000\"", "shape=doublecircle")
		}
		fmt.Fprintf(&b, "  place_%s [label=%q %s];\n", nodeID(p), p, strings.Join(attrs, " "))
	}

	if w.IsStateMachine() {
		for _, t := range def.Transitions() {
			for _, from := range t.Froms {
				for _, to := range t.Tos {
					fmt.Fprintf(&b, "  place_%s -> place_%s [label=%q style=\"solid\"];\n", nodeID(from), nodeID(to), t.Name)
				}
			}
		}
		b.WriteString("}\n")
		return b.String()
	}

	for i, t := range def.Transitions() {
		fmt.Fprintf(&b, "  transition_%d [label=%q shape=box regular=\"1\"];\n", i, t.Name)
	}
	for i, t := range def.Transitions() {
		for _, from := range t.Froms {
			fmt.Fprintf(&b, "  place_%s -> transition_%d [style=\"solid\"];\n", nodeID(from), i)
		}
		for _, to := range t.Tos {
			fmt.Fprintf(&b, "  transition_%d -> place_%s [style=\"solid\"];\n", i, nodeID(to))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func nodeID(place string) string {
	var b strings.Builder
	for _, r := range place {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%x_", r)
		}
	}
	return b.String()
}
