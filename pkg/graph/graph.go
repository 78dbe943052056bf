// Package graph compiles a validated config document into an executable plan:
// node descriptors with pre-built output validators, and edge descriptors for
// the four control-flow variants (linear, conditional, loop, fork-join).
//
// Compilation performs no I/O and never touches a model client; its sole
// artifact is the Plan the orchestrator drives.
package graph

import (
	"fmt"

	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/flow/expression"
	"github.com/tombee/cascade/pkg/flow/schema"
	"github.com/tombee/cascade/pkg/state"
)

// EdgeKind discriminates the control-flow variants.
type EdgeKind string

const (
	// KindLinear is a single unconditional successor.
	KindLinear EdgeKind = "linear"
	// KindConditional selects the first matching route.
	KindConditional EdgeKind = "conditional"
	// KindLoop re-enters the source node until its condition or cap.
	KindLoop EdgeKind = "loop"
	// KindForkJoin fans out to concurrent branches rejoined at a barrier.
	KindForkJoin EdgeKind = "fork_join"
)

// Node is one executable unit: the node config plus its compiled output
// validator.
type Node struct {
	// ID is the node identifier.
	ID string

	// Config is the node's declaration in the source document.
	Config *flow.NodeConfig

	// Validator checks the node's structured output.
	Validator *schema.Validator
}

// Edge is one compiled control-flow transition. Exactly one of To, Routes,
// Loop, or Fork is populated, per Kind.
type Edge struct {
	// From is the source node id, or START.
	From string

	// Kind is the control-flow variant.
	Kind EdgeKind

	// To is the single successor of a linear edge.
	To string

	// Routes is the ordered route list of a conditional edge.
	Routes []Route

	// Loop describes a loop edge.
	Loop *LoopEdge

	// Fork describes a fork-join edge.
	Fork *ForkEdge
}

// Route is one (predicate, target) pair. The default route matches
// unconditionally wherever it appears in the order.
type Route struct {
	// Logic is the predicate expression, or "default".
	Logic string

	// To is the target node id or END.
	To string

	// Default marks the unconditional fallback.
	Default bool
}

// LoopEdge describes a bounded loop. The per-run iteration counter is hidden
// state owned by the orchestrator, not part of the declared schema.
type LoopEdge struct {
	// Body is the node the loop re-enters (the edge's source).
	Body string

	// MaxIterations caps iterations; reaching it routes to ExitTo.
	MaxIterations int

	// ConditionField is the boolean state field checked after each
	// iteration.
	ConditionField string

	// ExitTo is the target once the condition holds or the cap is reached.
	ExitTo string
}

// ForkEdge describes a fork-join fan-out.
type ForkEdge struct {
	// Targets are the branch entry nodes in declaration order.
	Targets []string

	// Branches are the per-branch node sequences up to the join, indexed
	// like Targets.
	Branches [][]string

	// Join is the node (or END) where all branches converge.
	Join string
}

// Plan is the compiled, executable form of one workflow. Immutable after
// Compile; safe for concurrent runs.
type Plan struct {
	cfg    *flow.Config
	schema *state.Schema

	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string

	eval *expression.Evaluator
}

// Config returns the source document.
func (p *Plan) Config() *flow.Config {
	return p.cfg
}

// Schema returns the workflow's state schema.
func (p *Plan) Schema() *state.Schema {
	return p.schema
}

// Node returns the descriptor for a node id, or nil.
func (p *Plan) Node(id string) *Node {
	return p.nodes[id]
}

// Nodes returns node descriptors in declaration order.
func (p *Plan) Nodes() []*Node {
	out := make([]*Node, 0, len(p.nodeOrder))
	for _, id := range p.nodeOrder {
		out = append(out, p.nodes[id])
	}
	return out
}

// Edge returns the outgoing edge of a source node (or START), or nil for
// terminal nodes.
func (p *Plan) Edge(from string) *Edge {
	return p.edges[from]
}

// SelectRoute evaluates a conditional edge's routes top to bottom against the
// record and returns the first matching target. The default route matches
// unconditionally; selecting it never requires it to be listed last.
//
// With validation guaranteeing a default route, a nil error and empty target
// cannot both occur; the ControlFlowError path exists to surface validator
// bugs instead of silently stalling a run.
func (p *Plan) SelectRoute(edge *Edge, record *state.Record) (string, error) {
	env := map[string]interface{}{"state": record.Values()}
	for i := range edge.Routes {
		route := &edge.Routes[i]
		if route.Default {
			return route.To, nil
		}
		ok, err := p.eval.Evaluate(route.Logic, env)
		if err != nil {
			return "", err
		}
		if ok {
			return route.To, nil
		}
	}
	return "", fmt.Errorf("no route matched and no default present")
}
