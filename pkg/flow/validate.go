package flow

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/agext/levenshtein"

	"github.com/tombee/cascade/pkg/errors"
	"github.com/tombee/cascade/pkg/flow/expression"
)

// ValidateOptions supplies the process-level context the graph phase checks
// references against.
type ValidateOptions struct {
	// ToolNames is the registry snapshot node tool references are checked
	// against. Nil skips the check (for callers validating without a
	// registry, e.g. schema tooling).
	ToolNames []string
}

// placeholderPattern matches {state.field} references inside prompts.
var placeholderPattern = regexp.MustCompile(`\{state\.([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ValidateGraph runs the business-logic phase on a structurally valid config.
// It returns every violation found, not just the first, so a document can be
// fixed in one pass. It performs no I/O and never constructs a model client.
func ValidateGraph(cfg *Config, opts ValidateOptions) error {
	v := &graphValidator{
		cfg:  cfg,
		eval: expression.New(),
	}
	v.run(opts)

	if len(v.violations) == 0 {
		return nil
	}
	return &errors.ConfigValidationError{Phase: "graph", Violations: v.violations}
}

type graphValidator struct {
	cfg        *Config
	eval       *expression.Evaluator
	violations []*errors.Violation
}

func (v *graphValidator) addf(path, format string, args ...interface{}) {
	v.violations = append(v.violations, &errors.Violation{
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *graphValidator) addRef(path, kind, name string, candidates []string) {
	violation := &errors.Violation{
		Path:    path,
		Message: fmt.Sprintf("unknown %s %q", kind, name),
	}
	if match := nearestMatch(name, candidates); match != "" {
		violation.Suggestion = fmt.Sprintf("did you mean %q?", match)
	}
	v.violations = append(v.violations, violation)
}

func (v *graphValidator) run(opts ValidateOptions) {
	v.checkNodes(opts)
	v.checkEdges()
	v.checkStartEdge()
	v.checkForks()
	v.checkReachability()
}

// checkNodes validates each node's references into the state schema and the
// tool registry.
func (v *graphValidator) checkNodes(opts ValidateOptions) {
	fieldNames := v.fieldNames()

	var toolSet map[string]bool
	if opts.ToolNames != nil {
		toolSet = make(map[string]bool, len(opts.ToolNames))
		for _, name := range opts.ToolNames {
			toolSet[name] = true
		}
	}

	for i := range v.cfg.Nodes {
		node := &v.cfg.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)

		for _, out := range node.Outputs {
			field := v.cfg.Field(out)
			if field == nil {
				v.addRef(path+".outputs", "state field", out, fieldNames)
				continue
			}
			if declared, ok := node.OutputSchema[out]; ok && declared != field.Type {
				v.addf(fmt.Sprintf("%s.output_schema.%s", path, out),
					"output type %q conflicts with state field type %q", declared, field.Type)
			}
		}

		if toolSet != nil {
			for _, tool := range node.Tools {
				if !toolSet[tool] {
					v.addRef(path+".tools", "tool", tool, opts.ToolNames)
				}
			}
		}

		for _, match := range placeholderPattern.FindAllStringSubmatch(node.Prompt, -1) {
			if v.cfg.Field(match[1]) == nil {
				v.addRef(path+".prompt", "state field", match[1], fieldNames)
			}
		}

		if node.Loop != nil && v.cfg.hasEdgeFrom(node.ID) && !v.isNormalizedLoopEdge(node) {
			v.addf(path+".loop",
				"node %q declares a loop block but also has an outgoing edge", node.ID)
		}
	}
}

// isNormalizedLoopEdge reports whether the only edge from the node is the one
// normalizeLoops synthesized from its loop block.
func (v *graphValidator) isNormalizedLoopEdge(node *NodeConfig) bool {
	var count int
	var loopEdge bool
	for i := range v.cfg.Edges {
		edge := &v.cfg.Edges[i]
		if edge.From != node.ID {
			continue
		}
		count++
		loopEdge = edge.Loop == node.Loop
	}
	return count == 1 && loopEdge
}

// checkEdges validates endpoint references and edge-local invariants.
func (v *graphValidator) checkEdges() {
	nodeIDs := v.cfg.NodeIDs()
	fieldNames := v.fieldNames()
	sources := make(map[string]int)

	for i := range v.cfg.Edges {
		edge := &v.cfg.Edges[i]
		path := fmt.Sprintf("edges[%d]", i)

		if edge.From == End {
			v.addf(path+".from", "END cannot be an edge source")
		} else if edge.From != Start && v.cfg.Node(edge.From) == nil {
			v.addRef(path+".from", "node", edge.From, nodeIDs)
		}
		sources[edge.From]++

		for j, target := range edge.To {
			v.checkTarget(fmt.Sprintf("%s.to[%d]", path, j), target, nodeIDs)
		}

		if len(edge.Routes) > 0 {
			v.checkRoutes(path, edge, nodeIDs)
		}

		if edge.Loop != nil {
			v.checkLoop(path, edge, nodeIDs, fieldNames)
		}
	}

	// Control flow is deterministic: one outgoing edge declaration per source.
	for source, count := range sources {
		if count > 1 && source != Start {
			v.addf("edges", "node %q has %d outgoing edges; declare one edge with routes instead", source, count)
		}
	}
}

func (v *graphValidator) checkTarget(path, target string, nodeIDs []string) {
	if target == Start {
		v.addf(path, "START cannot be an edge target")
		return
	}
	if target != End && v.cfg.Node(target) == nil {
		v.addRef(path, "node", target, nodeIDs)
	}
}

func (v *graphValidator) checkRoutes(path string, edge *EdgeConfig, nodeIDs []string) {
	var defaults int
	for j := range edge.Routes {
		route := &edge.Routes[j]
		routePath := fmt.Sprintf("%s.routes[%d]", path, j)

		v.checkTarget(routePath+".to", route.To, nodeIDs)

		if route.IsDefault() {
			defaults++
			continue
		}
		if err := v.eval.CompileCheck(route.Condition.Logic); err != nil {
			v.addf(routePath+".condition.logic", "predicate does not compile: %v", err)
		}
	}

	switch defaults {
	case 0:
		v.violations = append(v.violations, &errors.Violation{
			Path:       path + ".routes",
			Message:    "conditional edge has no default route",
			Suggestion: `add a route with condition: { logic: default }`,
		})
	case 1:
	default:
		v.addf(path+".routes", "conditional edge has %d default routes; only one is allowed", defaults)
	}
}

func (v *graphValidator) checkLoop(path string, edge *EdgeConfig, nodeIDs, fieldNames []string) {
	loop := edge.Loop
	loopPath := path + ".loop"

	if edge.From == Start {
		v.addf(loopPath, "loop edges cannot originate at START; the loop body is the source node")
	}

	if loop.MaxIterations < 1 {
		v.addf(loopPath+".max_iterations", "max_iterations must be at least 1, got %d", loop.MaxIterations)
	}

	v.checkTarget(loopPath+".exit_to", loop.ExitTo, nodeIDs)

	field := v.cfg.Field(loop.ConditionField)
	if field == nil {
		v.addRef(loopPath+".condition_field", "state field", loop.ConditionField, fieldNames)
		return
	}
	if field.Type != "bool" {
		v.addf(loopPath+".condition_field",
			"condition_field %q must be a bool state field, got %q", loop.ConditionField, field.Type)
	}
	if !v.fieldWrittenBySomeNode(loop.ConditionField) {
		v.violations = append(v.violations, &errors.Violation{
			Path:       loopPath + ".condition_field",
			Message:    fmt.Sprintf("condition_field %q is not written by any node", loop.ConditionField),
			Suggestion: "add it to the loop body node's outputs so the loop can terminate",
		})
	}
}

func (v *graphValidator) fieldWrittenBySomeNode(field string) bool {
	for i := range v.cfg.Nodes {
		for _, out := range v.cfg.Nodes[i].Outputs {
			if out == field {
				return true
			}
		}
	}
	return false
}

// checkStartEdge enforces that START has exactly one outgoing edge.
func (v *graphValidator) checkStartEdge() {
	var count int
	for i := range v.cfg.Edges {
		if v.cfg.Edges[i].From == Start {
			count++
			if v.cfg.Edges[i].Loop != nil || len(v.cfg.Edges[i].Routes) > 0 {
				v.addf(fmt.Sprintf("edges[%d]", i), "the START edge must be linear or a fork")
			}
		}
	}
	if count != 1 {
		v.addf("edges", "START must have exactly one outgoing edge, got %d", count)
	}
}

// checkForks validates fan-out declarations and branch convergence.
func (v *graphValidator) checkForks() {
	for i := range v.cfg.Edges {
		edge := &v.cfg.Edges[i]
		if len(edge.To) < 2 {
			continue
		}
		path := fmt.Sprintf("edges[%d].to", i)

		seen := make(map[string]bool, len(edge.To))
		valid := true
		for _, target := range edge.To {
			if seen[target] {
				v.addf(path, "fork targets must be distinct; %q appears twice", target)
				valid = false
			}
			seen[target] = true
			if target == End {
				v.addf(path, "END cannot be a fork branch")
				valid = false
			}
			if target != End && v.cfg.Node(target) == nil {
				valid = false
			}
		}
		if !valid {
			continue
		}

		if _, _, err := ForkBranches(v.cfg, edge.To); err != nil {
			v.addf(path, "%v", err)
		}
	}
}

// ForkBranches walks each fork target's chain of linear successors and
// determines the join node: the first node of the first branch's chain that
// appears in every other branch's chain (possibly END). It returns the
// per-branch node sequences up to (excluding) the join, in branch declaration
// order. Branches must be linear; conditional, loop, or nested fork edges
// inside a branch are rejected.
//
// The compiler uses the same computation, so the validator and the compiled
// plan can never disagree about where a join lives.
func ForkBranches(cfg *Config, targets []string) (branches [][]string, join string, err error) {
	chains := make([][]string, len(targets))
	for i, target := range targets {
		chain, err := linearChain(cfg, target)
		if err != nil {
			return nil, "", fmt.Errorf("branch %q: %w", target, err)
		}
		chains[i] = chain
	}

	join = ""
	for _, candidate := range chains[0] {
		all := true
		for _, chain := range chains[1:] {
			if !containsString(chain, candidate) {
				all = false
				break
			}
		}
		if all {
			join = candidate
			break
		}
	}
	if join == "" {
		return nil, "", fmt.Errorf("fork branches do not converge on a join node")
	}

	branches = make([][]string, len(chains))
	for i, chain := range chains {
		for _, id := range chain {
			if id == join {
				break
			}
			branches[i] = append(branches[i], id)
		}
		if len(branches[i]) == 0 {
			return nil, "", fmt.Errorf("branch %q joins immediately at %q without executing a node", targets[i], join)
		}
	}
	return branches, join, nil
}

// linearChain follows linear edges from a branch entry node, collecting node
// ids until END. Cycles and non-linear edges inside a branch are errors.
func linearChain(cfg *Config, entry string) ([]string, error) {
	var chain []string
	visited := make(map[string]bool)
	current := entry

	for current != End {
		if visited[current] {
			return nil, fmt.Errorf("cycle through node %q", current)
		}
		visited[current] = true
		chain = append(chain, current)

		edge := edgeFrom(cfg, current)
		if edge == nil {
			return nil, fmt.Errorf("node %q has no outgoing edge", current)
		}
		switch {
		case len(edge.To) == 1:
			current = edge.To[0]
		case len(edge.To) > 1:
			return nil, fmt.Errorf("node %q starts a nested fork; forks cannot nest inside a branch", current)
		case len(edge.Routes) > 0:
			return nil, fmt.Errorf("node %q has a conditional edge; branches must be linear", current)
		case edge.Loop != nil:
			return nil, fmt.Errorf("node %q has a loop edge; branches must be linear", current)
		default:
			return nil, fmt.Errorf("node %q has an empty edge", current)
		}
	}
	chain = append(chain, End)
	return chain, nil
}

func edgeFrom(cfg *Config, id string) *EdgeConfig {
	for i := range cfg.Edges {
		if cfg.Edges[i].From == id {
			return &cfg.Edges[i]
		}
	}
	return nil
}

// checkReachability verifies every node is reachable from START and has a
// path to END.
func (v *graphValidator) checkReachability() {
	successors := make(map[string][]string)
	predecessors := make(map[string][]string)
	for i := range v.cfg.Edges {
		edge := &v.cfg.Edges[i]
		for _, target := range v.edgeTargets(edge) {
			successors[edge.From] = append(successors[edge.From], target)
			predecessors[target] = append(predecessors[target], edge.From)
		}
	}

	fromStart := traverse(Start, successors)
	toEnd := traverse(End, predecessors)

	for i := range v.cfg.Nodes {
		id := v.cfg.Nodes[i].ID
		if !fromStart[id] {
			v.addf(fmt.Sprintf("nodes[%d]", i), "node %q is not reachable from START", id)
		}
		if !toEnd[id] {
			v.addf(fmt.Sprintf("nodes[%d]", i), "node %q has no path to END", id)
		}
	}
}

// edgeTargets returns every node an edge can transfer control to. For loop
// edges that is the exit target and the body itself (re-entry).
func (v *graphValidator) edgeTargets(edge *EdgeConfig) []string {
	var targets []string
	targets = append(targets, edge.To...)
	for i := range edge.Routes {
		targets = append(targets, edge.Routes[i].To)
	}
	if edge.Loop != nil {
		targets = append(targets, edge.Loop.ExitTo)
		if edge.From != Start {
			targets = append(targets, edge.From)
		}
	}
	return targets
}

func traverse(start string, adjacency map[string][]string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

func (v *graphValidator) fieldNames() []string {
	names := make([]string, 0, len(v.cfg.State.Fields))
	for i := range v.cfg.State.Fields {
		names = append(names, v.cfg.State.Fields[i].Name)
	}
	return names
}

// nearestMatch returns the candidate closest to name within a small edit
// distance, or "" when nothing is close enough to be a likely typo.
func nearestMatch(name string, candidates []string) string {
	sorted := make([]string, len(candidates))
	copy(sorted, candidates)
	sort.Strings(sorted)

	best := ""
	bestDist := 3
	for _, candidate := range sorted {
		if candidate == name {
			continue
		}
		if d := levenshtein.Distance(name, candidate, nil); d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
