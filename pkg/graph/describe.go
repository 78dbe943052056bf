package graph

import (
	"fmt"
	"strings"
)

// Describe renders the plan's edges as deterministic one-line descriptions in
// edge declaration order. Compiling the same document always yields the same
// lines, which makes the output usable for plan diffing and golden tests.
func (p *Plan) Describe() []string {
	lines := make([]string, 0, len(p.edgeOrder))
	for _, from := range p.edgeOrder {
		lines = append(lines, describeEdge(p.edges[from]))
	}
	return lines
}

func describeEdge(e *Edge) string {
	switch e.Kind {
	case KindLinear:
		return fmt.Sprintf("%s -> %s", e.From, e.To)

	case KindConditional:
		parts := make([]string, 0, len(e.Routes))
		for i := range e.Routes {
			route := &e.Routes[i]
			parts = append(parts, fmt.Sprintf("%s -> %s", route.Logic, route.To))
		}
		return fmt.Sprintf("%s -> routes[%s]", e.From, strings.Join(parts, "; "))

	case KindLoop:
		return fmt.Sprintf("%s -> loop(max_iterations=%d, condition_field=%s, exit_to=%s)",
			e.From, e.Loop.MaxIterations, e.Loop.ConditionField, e.Loop.ExitTo)

	case KindForkJoin:
		branches := make([]string, 0, len(e.Fork.Branches))
		for _, branch := range e.Fork.Branches {
			branches = append(branches, strings.Join(branch, ","))
		}
		return fmt.Sprintf("%s -> fork[%s] join=%s",
			e.From, strings.Join(branches, " | "), e.Fork.Join)

	default:
		return fmt.Sprintf("%s -> ?", e.From)
	}
}
