// Package flow provides the workflow config document model and its two-phase
// validation.
//
// A config document is parsed once from YAML, checked structurally against an
// embedded JSON Schema, then checked as a graph (reference integrity,
// reachability, predicate compilation). Validation never invokes a model call.
package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Endpoint sentinels used in edge declarations.
const (
	// Start is the virtual entry endpoint of every workflow.
	Start = "START"
	// End is the virtual exit endpoint of every workflow.
	End = "END"
)

// Defaults applied when the config document omits optional settings.
const (
	// DefaultVersion is assumed when flow.version is omitted.
	DefaultVersion = "1.0"
	// DefaultModel is the model tier used when config.llm.model is omitted.
	DefaultModel = "balanced"
	// DefaultTimeoutSeconds bounds a whole run.
	DefaultTimeoutSeconds = 600
	// DefaultMaxToolIterations bounds one node's tool-calling loop.
	DefaultMaxToolIterations = 10
	// DefaultOutputRetryLimit bounds structured-output correction retries.
	DefaultOutputRetryLimit = 2
)

// Config represents a parsed workflow config document. It is immutable after
// Parse returns; the compiler and orchestrator only read it.
type Config struct {
	// Flow carries workflow metadata.
	Flow FlowMeta `yaml:"flow" json:"flow"`

	// State declares the typed fields of the run's state record.
	State StateConfig `yaml:"state" json:"state"`

	// Nodes are the executable units of the workflow.
	Nodes []NodeConfig `yaml:"nodes" json:"nodes"`

	// Edges declare the control flow between nodes.
	Edges []EdgeConfig `yaml:"edges" json:"edges"`

	// Settings holds global LLM defaults and execution limits.
	Settings Settings `yaml:"config" json:"config"`
}

// FlowMeta identifies a workflow.
type FlowMeta struct {
	// Name is the workflow identifier
	Name string `yaml:"name" json:"name"`

	// Version tracks the config document version (optional, defaults to "1.0")
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// StateConfig declares the state record schema.
type StateConfig struct {
	Fields []StateFieldConfig `yaml:"fields" json:"fields"`
}

// StateFieldConfig declares one typed state field. The type drives both the
// runtime accessor and the merge policy: scalars are last-writer-wins, lists
// concatenate in branch declaration order.
type StateFieldConfig struct {
	// Name is the field identifier referenced as {state.name} in prompts
	// and as state.name in route predicates.
	Name string `yaml:"name" json:"name"`

	// Type is the field type: string, number, bool, or list.
	Type string `yaml:"type" json:"type"`

	// Required marks fields the caller must supply at run start.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default provides a starting value when the caller omits the field.
	Default interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// NodeConfig represents a single executable node: one prompt, optional tools,
// one structured output.
type NodeConfig struct {
	// ID is the unique node identifier within this workflow
	ID string `yaml:"id" json:"id"`

	// Prompt is the template sent to the model; {state.field} placeholders
	// are resolved against the current state snapshot.
	Prompt string `yaml:"prompt" json:"prompt"`

	// Outputs lists the state fields this node is allowed to write.
	Outputs []string `yaml:"outputs" json:"outputs"`

	// OutputSchema maps each output field to its type (string, number,
	// bool, list). Fields omitted here inherit the state field's type.
	OutputSchema map[string]string `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`

	// Tools lists registered tool names this node exposes to the model.
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`

	// LLM overrides the global model settings for this node.
	LLM *LLMOverride `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Loop is an alternative authoring location for a loop edge originating
	// at this node. A node may not carry a loop block and also be the source
	// of a loop edge.
	Loop *LoopConfig `yaml:"loop,omitempty" json:"loop,omitempty"`

	// BreakOnError controls whether a failure of this node fails the run.
	// Defaults to true.
	BreakOnError *bool `yaml:"break_on_error,omitempty" json:"break_on_error,omitempty"`
}

// Fatal reports whether a failure of this node should fail the run.
func (n *NodeConfig) Fatal() bool {
	return n.BreakOnError == nil || *n.BreakOnError
}

// OutputType returns the declared type of an output field, falling back to
// the state schema handled by the caller when no output_schema entry exists.
func (n *NodeConfig) OutputType(field string) (string, bool) {
	t, ok := n.OutputSchema[field]
	return t, ok
}

// LLMOverride is a per-node override of the global LLM settings. Nil fields
// inherit the global value.
type LLMOverride struct {
	Provider    string   `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// EdgeConfig declares one control-flow transition. Exactly one of To, Routes,
// or Loop must be set:
//
//   - To with a single target: linear edge.
//   - To with two or more targets: fork-join fan-out.
//   - Routes: conditional edge with a mandatory literal default route.
//   - Loop: bounded loop whose body is the From node.
type EdgeConfig struct {
	// From is the source node id, or START.
	From string `yaml:"from" json:"from"`

	// To is the target node id, END, or a list of two or more node ids.
	To TargetList `yaml:"to,omitempty" json:"to,omitempty"`

	// Routes is the ordered predicate/target list for conditional edges.
	Routes []RouteConfig `yaml:"routes,omitempty" json:"routes,omitempty"`

	// Loop declares a bounded loop re-entering the From node.
	Loop *LoopConfig `yaml:"loop,omitempty" json:"loop,omitempty"`
}

// TargetList holds edge targets. It unmarshals from either a scalar node id
// or a YAML sequence, so `to: draft` and `to: [a, b]` both parse.
type TargetList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TargetList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*t = TargetList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*t = TargetList(many)
		return nil
	default:
		return fmt.Errorf("to must be a node id or a list of node ids")
	}
}

// RouteConfig is one (predicate, target) pair of a conditional edge.
type RouteConfig struct {
	// Condition holds the predicate. The literal logic value "default"
	// matches unconditionally, wherever it appears in the route order.
	Condition ConditionConfig `yaml:"condition" json:"condition"`

	// To is the target node id or END.
	To string `yaml:"to" json:"to"`
}

// IsDefault reports whether this route is the unconditional fallback.
func (r *RouteConfig) IsDefault() bool {
	return r.Condition.Logic == "default"
}

// ConditionConfig wraps a route predicate expression.
type ConditionConfig struct {
	// Logic is a boolean expression over state fields, or the literal
	// string "default".
	Logic string `yaml:"logic" json:"logic"`
}

// LoopConfig declares a bounded loop. The loop body is the node the loop is
// attached to; after each iteration the condition field is checked and, when
// true or when the iteration cap is reached, control routes to ExitTo.
type LoopConfig struct {
	// MaxIterations caps loop iterations. Reaching the cap without the
	// condition becoming true routes to ExitTo; it is not an error.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// ConditionField names a declared boolean state field checked after
	// each iteration.
	ConditionField string `yaml:"condition_field" json:"condition_field"`

	// ExitTo is the target node id or END once the loop finishes.
	ExitTo string `yaml:"exit_to" json:"exit_to"`
}

// Settings holds global workflow settings from the config block.
type Settings struct {
	LLM       LLMSettings       `yaml:"llm" json:"llm"`
	Execution ExecutionSettings `yaml:"execution" json:"execution"`
}

// LLMSettings are the global model defaults for every node.
type LLMSettings struct {
	// Provider names the model provider.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model is a tier (fast, balanced, strategic) or a concrete model id.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Temperature is the sampling temperature.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens caps response length.
	MaxTokens *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// ExecutionSettings bound a run's resource usage.
type ExecutionSettings struct {
	// TimeoutSeconds bounds the whole run. Zero means the default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// MaxToolIterations caps one node's tool-calling loop.
	MaxToolIterations int `yaml:"max_tool_iterations,omitempty" json:"max_tool_iterations,omitempty"`

	// OutputRetryLimit caps structured-output correction retries. Nil means
	// the default; zero disables retries.
	OutputRetryLimit *int `yaml:"output_retry_limit,omitempty" json:"output_retry_limit,omitempty"`

	// QualityGates are evaluated against aggregated metrics after a run
	// reaches END.
	QualityGates []QualityGateConfig `yaml:"quality_gates,omitempty" json:"quality_gates,omitempty"`
}

// RetryLimit returns the effective structured-output retry limit.
func (e *ExecutionSettings) RetryLimit() int {
	if e.OutputRetryLimit == nil {
		return DefaultOutputRetryLimit
	}
	return *e.OutputRetryLimit
}

// GateAction is what happens when a quality gate's condition is false.
type GateAction string

const (
	// GateWarn logs the violation and leaves the outcome untouched.
	GateWarn GateAction = "warn"

	// GateFail converts a completed run to failed.
	GateFail GateAction = "fail"

	// GateBlockDeploy completes the run but flags the outcome so external
	// tooling withholds deployment.
	GateBlockDeploy GateAction = "block_deploy"
)

// QualityGateConfig is a post-run check against aggregated run metrics.
type QualityGateConfig struct {
	// Name identifies the gate in logs and outcomes.
	Name string `yaml:"name" json:"name"`

	// Condition is a boolean expression over the metrics environment, e.g.
	// "metrics.estimated_cost < 2.0". The gate trips when it is false.
	Condition string `yaml:"condition" json:"condition"`

	// Action is warn, fail, or block_deploy.
	Action GateAction `yaml:"action" json:"action"`
}

// Node returns the node with the given id, or nil.
func (c *Config) Node(id string) *NodeConfig {
	for i := range c.Nodes {
		if c.Nodes[i].ID == id {
			return &c.Nodes[i]
		}
	}
	return nil
}

// Field returns the state field with the given name, or nil.
func (c *Config) Field(name string) *StateFieldConfig {
	for i := range c.State.Fields {
		if c.State.Fields[i].Name == name {
			return &c.State.Fields[i]
		}
	}
	return nil
}

// NodeIDs returns all node ids in declaration order.
func (c *Config) NodeIDs() []string {
	ids := make([]string, 0, len(c.Nodes))
	for i := range c.Nodes {
		ids = append(ids, c.Nodes[i].ID)
	}
	return ids
}
