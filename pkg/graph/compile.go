package graph

import (
	"fmt"

	"github.com/tombee/cascade/pkg/errors"
	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/flow/expression"
	"github.com/tombee/cascade/pkg/flow/schema"
	"github.com/tombee/cascade/pkg/state"
)

// Compile turns a validated config and its state schema into an executable
// Plan. The config must already have passed both validation phases; compile
// errors indicate a validator gap, not a user mistake.
func Compile(cfg *flow.Config, stateSchema *state.Schema) (*Plan, error) {
	p := &Plan{
		cfg:    cfg,
		schema: stateSchema,
		nodes:  make(map[string]*Node, len(cfg.Nodes)),
		edges:  make(map[string]*Edge, len(cfg.Edges)),
		eval:   expression.New(),
	}

	for i := range cfg.Nodes {
		node, err := compileNode(&cfg.Nodes[i], stateSchema)
		if err != nil {
			return nil, err
		}
		p.nodes[node.ID] = node
		p.nodeOrder = append(p.nodeOrder, node.ID)
	}

	for i := range cfg.Edges {
		edge, err := p.compileEdge(&cfg.Edges[i])
		if err != nil {
			return nil, errors.Wrapf(err, "edges[%d]", i)
		}
		if _, exists := p.edges[edge.From]; exists {
			return nil, fmt.Errorf("edges[%d]: duplicate edge from %q", i, edge.From)
		}
		p.edges[edge.From] = edge
		p.edgeOrder = append(p.edgeOrder, edge.From)
	}

	return p, nil
}

// compileNode builds a node descriptor with its output validator. Output
// fields without an output_schema entry inherit the state field's type.
func compileNode(cfg *flow.NodeConfig, stateSchema *state.Schema) (*Node, error) {
	types := make(map[string]string, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		if t, ok := cfg.OutputType(out); ok {
			types[out] = t
			continue
		}
		field, ok := stateSchema.Field(out)
		if !ok {
			return nil, fmt.Errorf("node %q: output %q is not a declared state field", cfg.ID, out)
		}
		types[out] = string(field.Type)
	}

	validator, err := schema.BuildValidator(cfg.ID, cfg.Outputs, types)
	if err != nil {
		return nil, err
	}

	return &Node{ID: cfg.ID, Config: cfg, Validator: validator}, nil
}

func (p *Plan) compileEdge(cfg *flow.EdgeConfig) (*Edge, error) {
	switch {
	case len(cfg.To) == 1:
		return &Edge{From: cfg.From, Kind: KindLinear, To: cfg.To[0]}, nil

	case len(cfg.To) > 1:
		branches, join, err := flow.ForkBranches(p.cfg, cfg.To)
		if err != nil {
			return nil, err
		}
		return &Edge{
			From: cfg.From,
			Kind: KindForkJoin,
			Fork: &ForkEdge{
				Targets:  append([]string(nil), cfg.To...),
				Branches: branches,
				Join:     join,
			},
		}, nil

	case len(cfg.Routes) > 0:
		routes := make([]Route, 0, len(cfg.Routes))
		for i := range cfg.Routes {
			rc := &cfg.Routes[i]
			route := Route{Logic: rc.Condition.Logic, To: rc.To, Default: rc.IsDefault()}
			if !route.Default {
				if err := p.eval.CompileCheck(route.Logic); err != nil {
					return nil, fmt.Errorf("route %d predicate: %w", i, err)
				}
			}
			routes = append(routes, route)
		}
		return &Edge{From: cfg.From, Kind: KindConditional, Routes: routes}, nil

	case cfg.Loop != nil:
		return &Edge{
			From: cfg.From,
			Kind: KindLoop,
			Loop: &LoopEdge{
				Body:           cfg.From,
				MaxIterations:  cfg.Loop.MaxIterations,
				ConditionField: cfg.Loop.ConditionField,
				ExitTo:         cfg.Loop.ExitTo,
			},
		}, nil

	default:
		return nil, fmt.Errorf("edge from %q declares no control flow", cfg.From)
	}
}
