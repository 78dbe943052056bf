// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the error taxonomy shared across the engine.
//
// Every error a run can surface belongs to one of the types below. Validation
// errors are always raised before any model call; node-level errors are fatal
// to the run unless the node is configured otherwise; storage and
// observability errors never reach callers at all.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// Violation is a single config validation finding. Path locates the offending
// element (e.g. "edges[2].to", "nodes.draft.outputs"), and Suggestion carries
// a nearest-match hint when the problem looks like a typo.
type Violation struct {
	// Path identifies which config element failed validation
	Path string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	if v.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Suggestion)
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// ConfigValidationError aggregates every violation found in a config document.
// The graph phase reports all violations at once rather than stopping at the
// first, so authors can fix a document in one pass.
type ConfigValidationError struct {
	// Phase is the validation phase that failed ("structural" or "graph")
	Phase string

	// Violations holds every finding, in document order
	Violations []*Violation
}

// Error implements the error interface.
func (e *ConfigValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("config validation failed (%s): %s", e.Phase, e.Violations[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "config validation failed (%s): %d violations", e.Phase, len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n  - ")
		sb.WriteString(v.Error())
	}
	return sb.String()
}

// TemplateError reports a prompt placeholder that references a field missing
// from the state schema. Validation catches these in the common case; the
// resolver re-checks defensively because prompts are plain strings.
type TemplateError struct {
	// Field is the state field the placeholder referenced
	Field string

	// Placeholder is the literal placeholder text (e.g. "{state.topic}")
	Placeholder string
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references unknown state field %q (placeholder %s)", e.Field, e.Placeholder)
}

// ToolExecutionError wraps a failed tool invocation. It is fed back into the
// tool-calling loop as an error observation rather than aborting the node,
// letting the model decide whether to retry or proceed.
type ToolExecutionError struct {
	// Tool is the registered tool name
	Tool string

	// Cause is the underlying error from the tool
	Cause error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// OutputValidationError indicates the structured-output retry budget was
// exhausted without producing a response matching the node's output schema.
// It is fatal to the node.
type OutputValidationError struct {
	// NodeID is the node whose output could not be validated
	NodeID string

	// Attempts is the total number of extraction attempts made
	Attempts int

	// LastError is the validation failure from the final attempt
	LastError error

	// Response is the final raw response, truncated for readability
	Response string
}

// Error implements the error interface.
func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("node %q: structured output validation failed after %d attempts: %v",
		e.NodeID, e.Attempts, e.LastError)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *OutputValidationError) Unwrap() error {
	return e.LastError
}

// ControlFlowError indicates graph traversal reached a state the compiler
// should have made impossible (e.g. a conditional edge with no matching route
// and no default). Surfacing one at runtime indicates a validator bug, not a
// user error.
type ControlFlowError struct {
	// NodeID is the node whose outgoing edge failed to route
	NodeID string

	// Reason describes the impossible state
	Reason string
}

// Error implements the error interface.
func (e *ControlFlowError) Error() string {
	return fmt.Sprintf("control flow error at node %q: %s (this indicates a validator bug)", e.NodeID, e.Reason)
}

// TimeoutError represents the overall run deadline being exceeded. In-flight
// branch work is abandoned cooperatively, not awaited.
type TimeoutError struct {
	// Operation describes what timed out (e.g. "run", "node draft")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g. "tool", "node", "run")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
