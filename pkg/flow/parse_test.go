package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/cascade/pkg/errors"
)

const minimalDoc = `
flow:
  name: summarize
state:
  fields:
    - name: topic
      type: string
      required: true
    - name: summary
      type: string
nodes:
  - id: summarize
    prompt: "Summarize {state.topic}"
    outputs: [summary]
edges:
  - from: START
    to: summarize
  - from: summarize
    to: END
`

func TestParse_ValidDocument(t *testing.T) {
	cfg, err := Parse([]byte(minimalDoc))
	require.NoError(t, err)

	assert.Equal(t, "summarize", cfg.Flow.Name)
	assert.Equal(t, DefaultVersion, cfg.Flow.Version)
	assert.Equal(t, DefaultModel, cfg.Settings.LLM.Model)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Settings.Execution.TimeoutSeconds)
	assert.Equal(t, DefaultMaxToolIterations, cfg.Settings.Execution.MaxToolIterations)
	assert.Equal(t, DefaultOutputRetryLimit, cfg.Settings.Execution.RetryLimit())

	require.Len(t, cfg.Nodes, 1)
	require.Len(t, cfg.Edges, 2)
	assert.Equal(t, TargetList{"summarize"}, cfg.Edges[0].To)
}

func TestParse_ScalarAndListTargets(t *testing.T) {
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
    prompt: "left"
    outputs: [a]
  - id: right
    prompt: "right"
    outputs: [b]
edges:
  - from: START
    to: [left, right]
  - from: left
    to: END
  - from: right
    to: END
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, TargetList{"left", "right"}, cfg.Edges[0].To)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing flow block",
			doc: `
state:
  fields: []
nodes:
  - id: n
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    to: n
`,
		},
		{
			name: "invalid field type",
			doc: `
flow:
  name: bad
state:
  fields:
    - name: x
      type: integer
nodes:
  - id: n
    prompt: "p"
    outputs: [x]
edges:
  - from: START
    to: n
`,
		},
		{
			name: "edge with both to and routes",
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
    to: n
  - from: n
    to: END
    routes:
      - condition: { logic: default }
        to: END
`,
		},
		{
			name: "single-element fork list",
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
    to: [n]
`,
		},
		{
			name: "bad gate action",
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
    to: n
config:
  execution:
    quality_gates:
      - name: g
        condition: "metrics.estimated_cost < 1"
        action: explode
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var cve *errors.ConfigValidationError
			require.ErrorAs(t, err, &cve)
			assert.Equal(t, "structural", cve.Phase)
			assert.NotEmpty(t, cve.Violations)
		})
	}
}

func TestParse_StructuralViolationsAggregated(t *testing.T) {
	doc := `
flow:
  name: broken
state:
  fields:
    - name: topic
      type: string
      required: true
      default: "oops"
    - name: score
      type: number
      default: "seven"
nodes:
  - id: draft
    prompt: "p"
    outputs: [topic]
  - id: draft
    prompt: "p"
    outputs: [topic]
    output_schema:
      score: number
edges:
  - from: START
    to: draft
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	var cve *errors.ConfigValidationError
	require.ErrorAs(t, err, &cve)
	require.Equal(t, "structural", cve.Phase)

	// required+default, mistyped default, duplicate node id, and a schema
	// entry missing from outputs are all reported together.
	require.Len(t, cve.Violations, 4)
}

func TestParse_NormalizesNodeLoopBlock(t *testing.T) {
	doc := `
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
    prompt: "Revise"
    outputs: [draft, approved]
    loop:
      max_iterations: 3
      condition_field: approved
      exit_to: END
edges:
  - from: START
    to: revise
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, cfg.Edges, 2)
	synthesized := cfg.Edges[1]
	assert.Equal(t, "revise", synthesized.From)
	require.NotNil(t, synthesized.Loop)
	assert.Equal(t, 3, synthesized.Loop.MaxIterations)
	assert.Equal(t, "approved", synthesized.Loop.ConditionField)
	assert.Equal(t, End, synthesized.Loop.ExitTo)
}

func TestParse_LoopBlockWithExistingEdgeKeptForGraphPhase(t *testing.T) {
	doc := `
flow:
  name: conflicted
state:
  fields:
    - name: draft
      type: string
    - name: approved
      type: bool
nodes:
  - id: revise
    prompt: "Revise"
    outputs: [draft, approved]
    loop:
      max_iterations: 3
      condition_field: approved
      exit_to: END
edges:
  - from: START
    to: revise
  - from: revise
    to: END
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	// No edge is synthesized; the conflict is the graph phase's to report.
	assert.Len(t, cfg.Edges, 2)
	err = ValidateGraph(cfg, ValidateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop block")
}

func TestParse_NotYAML(t *testing.T) {
	_, err := Parse([]byte("{{{"))
	assert.Error(t, err)
}
