package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/cascade/pkg/errors"
)

func mustParse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func graphViolations(t *testing.T, err error) []*errors.Violation {
	t.Helper()
	require.Error(t, err)
	var cve *errors.ConfigValidationError
	require.ErrorAs(t, err, &cve)
	require.Equal(t, "graph", cve.Phase)
	return cve.Violations
}

func violationPaths(violations []*errors.Violation) []string {
	paths := make([]string, 0, len(violations))
	for _, v := range violations {
		paths = append(paths, v.Path)
	}
	return paths
}

func TestValidateGraph_ValidDocument(t *testing.T) {
	cfg := mustParse(t, minimalDoc)
	require.NoError(t, ValidateGraph(cfg, ValidateOptions{}))
}

func TestValidateGraph_ReportsAllViolations(t *testing.T) {
	doc := `
flow:
  name: broken
state:
  fields:
    - name: topic
      type: string
nodes:
  - id: draft
    prompt: "Write about {state.subject}"
    outputs: [summary]
edges:
  - from: START
    to: draft
  - from: draft
    to: missing
`
	violations := graphViolations(t, ValidateGraph(mustParse(t, doc), ValidateOptions{}))

	// Unknown output field, unknown prompt placeholder, and an unknown edge
	// target all come back in one pass.
	paths := violationPaths(violations)
	assert.Contains(t, paths, "nodes[0].outputs")
	assert.Contains(t, paths, "nodes[0].prompt")
	assert.Contains(t, paths, "edges[1].to[0]")
}

func TestValidateGraph_SuggestsNearestField(t *testing.T) {
	doc := `
flow:
  name: typo
state:
  fields:
    - name: summary
      type: string
nodes:
  - id: draft
    prompt: "p"
    outputs: [sumary]
edges:
  - from: START
    to: draft
  - from: draft
    to: END
`
	violations := graphViolations(t, ValidateGraph(mustParse(t, doc), ValidateOptions{}))
	require.Len(t, violations, 1)
	assert.Equal(t, `did you mean "summary"?`, violations[0].Suggestion)
}

func TestValidateGraph_NoSuggestionWhenNothingClose(t *testing.T) {
	doc := `
flow:
  name: typo
state:
  fields:
    - name: summary
      type: string
nodes:
  - id: draft
    prompt: "p"
    outputs: [zzzzzzzz]
edges:
  - from: START
    to: draft
  - from: draft
    to: END
`
	violations := graphViolations(t, ValidateGraph(mustParse(t, doc), ValidateOptions{}))
	require.Len(t, violations, 1)
	assert.Empty(t, violations[0].Suggestion)
}

func TestValidateGraph_UnknownTool(t *testing.T) {
	doc := `
flow:
  name: tooled
state:
  fields:
    - name: out
      type: string
nodes:
  - id: fetch
    prompt: "p"
    outputs: [out]
    tools: [http_fetch]
edges:
  - from: START
    to: fetch
  - from: fetch
    to: END
`
	cfg := mustParse(t, doc)

	// Nil ToolNames skips the check entirely.
	require.NoError(t, ValidateGraph(cfg, ValidateOptions{}))

	violations := graphViolations(t, ValidateGraph(cfg, ValidateOptions{ToolNames: []string{"http_fetcher", "clock"}}))
	require.Len(t, violations, 1)
	assert.Equal(t, "nodes[0].tools", violations[0].Path)
	assert.Equal(t, `did you mean "http_fetcher"?`, violations[0].Suggestion)
}

func TestValidateGraph_OutputSchemaTypeConflict(t *testing.T) {
	doc := `
flow:
  name: conflict
state:
  fields:
    - name: score
      type: number
nodes:
  - id: grade
    prompt: "p"
    outputs: [score]
    output_schema:
      score: string
edges:
  - from: START
    to: grade
  - from: grade
    to: END
`
	violations := graphViolations(t, ValidateGraph(mustParse(t, doc), ValidateOptions{}))
	require.Len(t, violations, 1)
	assert.Equal(t, "nodes[0].output_schema.score", violations[0].Path)
}

func TestValidateGraph_StartEdgeRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "no START edge",
			doc: `
flow:
  name: bad
state:
  fields:
    - name: x
      type: string
nodes:
  - id: n
    prompt: "p"
    outputs: [x]
edges:
  - from: n
    to: END
`,
			want: "START must have exactly one outgoing edge, got 0",
		},
		{
			name: "two START edges",
			doc: `
flow:
  name: bad
state:
  fields:
    - name: x
      type: string
    - name: y
      type: string
nodes:
  - id: a
    prompt: "p"
    outputs: [x]
  - id: b
    prompt: "p"
    outputs: [y]
edges:
  - from: START
    to: a
  - from: START
    to: b
  - from: a
    to: END
  - from: b
    to: END
`,
			want: "START must have exactly one outgoing edge, got 2",
		},
		{
			name: "conditional START edge",
			doc: `
flow:
  name: bad
state:
  fields:
    - name: x
      type: string
nodes:
  - id: n
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    routes:
      - condition: { logic: default }
        to: n
  - from: n
    to: END
`,
			want: "the START edge must be linear or a fork",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraph(mustParse(t, tt.doc), ValidateOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGraph_EndAsSourceAndStartAsTarget(t *testing.T) {
	doc := `
flow:
  name: bad
state:
  fields:
    - name: x
      type: string
nodes:
  - id: n
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    to: n
  - from: n
    to: START
  - from: END
    to: n
`
	err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "END cannot be an edge source")
	assert.Contains(t, err.Error(), "START cannot be an edge target")
}

func TestValidateGraph_MultipleOutgoingEdges(t *testing.T) {
	doc := `
flow:
  name: bad
state:
  fields:
    - name: x
      type: string
    - name: y
      type: string
nodes:
  - id: a
    prompt: "p"
    outputs: [x]
  - id: b
    prompt: "p"
    outputs: [y]
edges:
  - from: START
    to: a
  - from: a
    to: b
  - from: a
    to: END
  - from: b
    to: END
`
	err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "a" has 2 outgoing edges`)
}

func TestValidateGraph_RouteRules(t *testing.T) {
	tests := []struct {
		name   string
		routes string
		want   string
	}{
		{
			name: "no default route",
			routes: `
      - condition: { logic: "state.score >= 8" }
        to: END
`,
			want: "no default route",
		},
		{
			name: "two default routes",
			routes: `
      - condition: { logic: default }
        to: END
      - condition: { logic: default }
        to: END
`,
			want: "2 default routes",
		},
		{
			name: "predicate does not compile",
			routes: `
      - condition: { logic: "state.score >=" }
        to: END
      - condition: { logic: default }
        to: END
`,
			want: "predicate does not compile",
		},
		{
			name: "non-boolean predicate",
			routes: `
      - condition: { logic: "1 + 2" }
        to: END
      - condition: { logic: default }
        to: END
`,
			want: "predicate does not compile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `
flow:
  name: routed
state:
  fields:
    - name: score
      type: number
nodes:
  - id: grade
    prompt: "p"
    outputs: [score]
edges:
  - from: START
    to: grade
  - from: grade
    routes:` + tt.routes
			err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGraph_DefaultAnywhereInRouteOrder(t *testing.T) {
	doc := `
flow:
  name: routed
state:
  fields:
    - name: score
      type: number
nodes:
  - id: grade
    prompt: "p"
    outputs: [score]
  - id: rewrite
    prompt: "p"
    outputs: [score]
edges:
  - from: START
    to: grade
  - from: grade
    routes:
      - condition: { logic: default }
        to: END
      - condition: { logic: "state.score < 8" }
        to: rewrite
  - from: rewrite
    to: END
`
	require.NoError(t, ValidateGraph(mustParse(t, doc), ValidateOptions{}))
}

func TestValidateGraph_LoopRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "condition field not bool",
			doc: `
flow:
  name: looped
state:
  fields:
    - name: draft
      type: string
nodes:
  - id: revise
    prompt: "p"
    outputs: [draft]
edges:
  - from: START
    to: revise
  - from: revise
    loop:
      max_iterations: 3
      condition_field: draft
      exit_to: END
`,
			want: `condition_field "draft" must be a bool state field`,
		},
		{
			name: "condition field unknown",
			doc: `
flow:
  name: looped
state:
  fields:
    - name: approved
      type: bool
nodes:
  - id: revise
    prompt: "p"
    outputs: [approved]
edges:
  - from: START
    to: revise
  - from: revise
    loop:
      max_iterations: 3
      condition_field: aproved
      exit_to: END
`,
			want: `did you mean "approved"?`,
		},
		{
			name: "condition field never written",
			doc: `
flow:
  name: looped
state:
  fields:
    - name: draft
      type: string
    - name: approved
      type: bool
nodes:
  - id: revise
    prompt: "p"
    outputs: [draft]
edges:
  - from: START
    to: revise
  - from: revise
    loop:
      max_iterations: 3
      condition_field: approved
      exit_to: END
`,
			want: `condition_field "approved" is not written by any node`,
		},
		{
			name: "exit target unknown",
			doc: `
flow:
  name: looped
state:
  fields:
    - name: approved
      type: bool
nodes:
  - id: revise
    prompt: "p"
    outputs: [approved]
edges:
  - from: START
    to: revise
  - from: revise
    loop:
      max_iterations: 3
      condition_field: approved
      exit_to: nowhere
`,
			want: `unknown node "nowhere"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraph(mustParse(t, tt.doc), ValidateOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGraph_ForkRules(t *testing.T) {
	tests := []struct {
		name  string
		edges string
		want  string
	}{
		{
			name: "duplicate branch target",
			edges: `
  - from: START
    to: [left, left]
  - from: left
    to: join
  - from: right
    to: join
  - from: join
    to: END
`,
			want: "fork targets must be distinct",
		},
		{
			name: "END as branch",
			edges: `
  - from: START
    to: [left, END]
  - from: left
    to: END
  - from: right
    to: END
`,
			want: "END cannot be a fork branch",
		},
		{
			name: "branches do not converge",
			edges: `
  - from: START
    to: [left, right]
  - from: left
    to: join
  - from: join
    to: END
  - from: right
    loop:
      max_iterations: 2
      condition_field: done
      exit_to: join
`,
			want: "branches must be linear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `
flow:
  name: forked
state:
  fields:
    - name: a
      type: string
    - name: b
      type: string
    - name: c
      type: string
    - name: done
      type: bool
nodes:
  - id: left
    prompt: "p"
    outputs: [a]
  - id: right
    prompt: "p"
    outputs: [b, done]
  - id: join
    prompt: "p"
    outputs: [c]
edges:` + tt.edges
			err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestForkBranches(t *testing.T) {
	doc := `
flow:
  name: forked
state:
  fields:
    - name: a
      type: string
    - name: b
      type: string
    - name: c
      type: string
nodes:
  - id: left
    prompt: "p"
    outputs: [a]
  - id: mid
    prompt: "p"
    outputs: [a]
  - id: right
    prompt: "p"
    outputs: [b]
  - id: join
    prompt: "p"
    outputs: [c]
edges:
  - from: START
    to: [left, right]
  - from: left
    to: mid
  - from: mid
    to: join
  - from: right
    to: join
  - from: join
    to: END
`
	cfg := mustParse(t, doc)
	require.NoError(t, ValidateGraph(cfg, ValidateOptions{}))

	branches, join, err := ForkBranches(cfg, []string{"left", "right"})
	require.NoError(t, err)
	assert.Equal(t, "join", join)
	assert.Equal(t, [][]string{{"left", "mid"}, {"right"}}, branches)
}

func TestForkBranches_JoinAtEnd(t *testing.T) {
	doc := `
flow:
  name: forked
state:
  fields:
    - name: a
      type: string
    - name: b
      type: string
nodes:
  - id: left
    prompt: "p"
    outputs: [a]
  - id: right
    prompt: "p"
    outputs: [b]
edges:
  - from: START
    to: [left, right]
  - from: left
    to: END
  - from: right
    to: END
`
	cfg := mustParse(t, doc)
	require.NoError(t, ValidateGraph(cfg, ValidateOptions{}))

	branches, join, err := ForkBranches(cfg, []string{"left", "right"})
	require.NoError(t, err)
	assert.Equal(t, End, join)
	assert.Equal(t, [][]string{{"left"}, {"right"}}, branches)
}

func TestValidateGraph_Reachability(t *testing.T) {
	doc := `
flow:
  name: orphaned
state:
  fields:
    - name: x
      type: string
nodes:
  - id: reached
    prompt: "p"
    outputs: [x]
  - id: orphan
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    to: reached
  - from: reached
    to: END
  - from: orphan
    to: END
`
	err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "orphan" is not reachable from START`)
}

func TestValidateGraph_NoPathToEnd(t *testing.T) {
	doc := `
flow:
  name: stuck
state:
  fields:
    - name: x
      type: string
nodes:
  - id: a
    prompt: "p"
    outputs: [x]
  - id: b
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    to: a
  - from: a
    to: b
  - from: b
    to: a
`
	err := ValidateGraph(mustParse(t, doc), ValidateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no path to END")
}
