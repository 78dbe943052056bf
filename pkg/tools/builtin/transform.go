// Package builtin provides the tools shipped with the engine.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// TransformTool applies a jq expression to a JSON value. It gives the model a
// deterministic way to reshape intermediate data without a second model call.
type TransformTool struct {
	// timeout bounds a single query evaluation
	timeout time.Duration
}

// NewTransformTool creates a transform tool with default settings.
func NewTransformTool() *TransformTool {
	return &TransformTool{timeout: 5 * time.Second}
}

// WithTimeout sets the per-evaluation timeout.
func (t *TransformTool) WithTimeout(timeout time.Duration) *TransformTool {
	t.timeout = timeout
	return t
}

// Name returns the tool's registered name.
func (t *TransformTool) Name() string {
	return "transform"
}

// Description returns what the tool does.
func (t *TransformTool) Description() string {
	return "Apply a jq expression to a JSON value and return the transformed result"
}

// Parameters returns the JSON Schema for the tool's arguments.
func (t *TransformTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"expression": map[string]interface{}{
				"type":        "string",
				"description": "jq expression to evaluate, e.g. '.items | length'",
			},
			"input": map[string]interface{}{
				"description": "JSON value the expression is applied to",
			},
		},
		"required": []interface{}{"expression", "input"},
	}
}

// Execute evaluates the jq expression against the input value.
func (t *TransformTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	expression, ok := args["expression"].(string)
	if !ok || expression == "" {
		return nil, fmt.Errorf("expression must be a non-empty string")
	}
	input, ok := args["input"]
	if !ok {
		return nil, fmt.Errorf("input is required")
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var results []interface{}
	iter := query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, v)
	}

	// A single result unwraps to the value itself; multiple results stay a list.
	var result interface{}
	switch len(results) {
	case 0:
		result = nil
	case 1:
		result = results[0]
	default:
		result = results
	}

	return map[string]interface{}{"result": result}, nil
}
