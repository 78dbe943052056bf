// Package engine drives compiled workflow plans to completion: the per-node
// executor (prompt resolution, tool loop, structured output) and the run
// orchestrator (traversal, merging, fork-join scheduling, quality gates).
package engine

import (
	"context"
	"time"
)

// Status is the orchestrator's run state machine.
type Status string

const (
	// StatusLoaded means the config document has been parsed.
	StatusLoaded Status = "loaded"
	// StatusValidated means both validation phases passed.
	StatusValidated Status = "validated"
	// StatusStateInitialized means the state record was built from inputs.
	StatusStateInitialized Status = "state_initialized"
	// StatusRunning means graph traversal is in progress.
	StatusRunning Status = "running"
	// StatusCompleted means the run reached END.
	StatusCompleted Status = "completed"
	// StatusFailed means the run stopped with a structured error.
	StatusFailed Status = "failed"
)

// NodeMetrics captures one node invocation's resource usage.
type NodeMetrics struct {
	// Duration is wall-clock time for the whole invocation.
	Duration time.Duration `json:"duration_ms"`

	// InputTokens and OutputTokens aggregate every model call the
	// invocation made, tool loop included.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// EstimatedCost is the USD estimate for the invocation.
	EstimatedCost float64 `json:"estimated_cost"`

	// ToolCalls counts executed tool invocations.
	ToolCalls int `json:"tool_calls"`

	// Attempts counts structured-output extraction attempts.
	Attempts int `json:"attempts"`
}

// RunMetrics aggregates metrics across a whole run.
type RunMetrics struct {
	NodesExecuted int           `json:"nodes_executed"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	EstimatedCost float64       `json:"estimated_cost"`
	ToolCalls     int           `json:"tool_calls"`
	LoopCapHits   int           `json:"loop_cap_hits"`
	Duration      time.Duration `json:"duration_ms"`
}

// add folds one node's metrics into the run totals.
func (m *RunMetrics) add(nm NodeMetrics) {
	m.NodesExecuted++
	m.InputTokens += nm.InputTokens
	m.OutputTokens += nm.OutputTokens
	m.EstimatedCost += nm.EstimatedCost
	m.ToolCalls += nm.ToolCalls
}

// Environment renders the metrics as the expression environment quality gates
// evaluate against, under the "metrics" key.
func (m *RunMetrics) Environment() map[string]interface{} {
	return map[string]interface{}{
		"nodes_executed": m.NodesExecuted,
		"input_tokens":   m.InputTokens,
		"output_tokens":  m.OutputTokens,
		"total_tokens":   m.InputTokens + m.OutputTokens,
		"estimated_cost": m.EstimatedCost,
		"tool_calls":     m.ToolCalls,
		"loop_cap_hits":  m.LoopCapHits,
		"duration_ms":    float64(m.Duration.Milliseconds()),
	}
}

// NodeFailure records a non-fatal node failure the run continued past.
type NodeFailure struct {
	NodeID string `json:"node_id"`
	Err    string `json:"error"`
}

// RunOutcome is the single value a caller receives for a run. It is created
// once by the orchestrator and never mutated afterwards; a raw error never
// escapes the orchestrator boundary without one.
type RunOutcome struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Flow is the workflow name.
	Flow string `json:"flow"`

	// Status is completed or failed.
	Status Status `json:"status"`

	// State is the terminal state snapshot (partial on failure).
	State map[string]interface{} `json:"state"`

	// Metrics aggregates the whole run.
	Metrics RunMetrics `json:"metrics"`

	// Err is the structured failure, nil when Status is completed.
	Err error `json:"-"`

	// NodeFailures lists non-fatal node failures the run continued past.
	NodeFailures []NodeFailure `json:"node_failures,omitempty"`

	// DeployBlocked is set when a block_deploy quality gate tripped. The
	// run still completes; external tooling decides what to do with it.
	DeployBlocked bool `json:"deploy_blocked,omitempty"`

	// GateWarnings lists warn-level quality gates that tripped.
	GateWarnings []string `json:"gate_warnings,omitempty"`
}

// Run is the repository's record of one run.
type Run struct {
	ID        string
	Flow      string
	Status    Status
	StartedAt time.Time
}

// RunRepository persists run records. Calls are best-effort: the orchestrator
// logs failures and proceeds, so a storage outage never breaks a run.
type RunRepository interface {
	// Create records a newly started run.
	Create(ctx context.Context, run *Run) error

	// Update finalizes a run with its outcome.
	Update(ctx context.Context, runID string, outcome *RunOutcome) error
}

// ObservabilityTracker receives node and run lifecycle events. Same
// best-effort contract as RunRepository; implementations must be safe for
// concurrent use because fork branches report from their own goroutines.
type ObservabilityTracker interface {
	NodeStart(ctx context.Context, runID, nodeID string)
	NodeEnd(ctx context.Context, runID, nodeID string, metrics NodeMetrics)
	RunEnd(ctx context.Context, runID string, outcome *RunOutcome)
}
