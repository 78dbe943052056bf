package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/cascade/internal/log"
	"github.com/tombee/cascade/pkg/errors"
	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/graph"
	"github.com/tombee/cascade/pkg/llm"
	"github.com/tombee/cascade/pkg/state"
	"github.com/tombee/cascade/pkg/tools"
)

// maxResponseInError bounds how much raw model output an error carries.
const maxResponseInError = 500

// NodeResult is one node invocation's output: a delta restricted to the
// node's declared output fields, plus metrics. The executor never mutates
// shared state; merging is the orchestrator's job.
type NodeResult struct {
	NodeID  string
	Delta   state.Delta
	Metrics NodeMetrics
}

// Executor runs single nodes: resolve the prompt, drive the tool-calling
// loop, enforce structured output with correction retries. It holds no
// per-run state and is safe for concurrent use across fork branches.
type Executor struct {
	client   llm.Client
	registry *tools.Registry
	logger   *slog.Logger

	defaults          flow.LLMSettings
	maxToolIterations int
	retryLimit        int
}

// NewExecutor creates an executor bound to a workflow's settings.
func NewExecutor(client llm.Client, registry *tools.Registry, logger *slog.Logger, cfg *flow.Config) *Executor {
	return &Executor{
		client:            client,
		registry:          registry,
		logger:            logger,
		defaults:          cfg.Settings.LLM,
		maxToolIterations: cfg.Settings.Execution.MaxToolIterations,
		retryLimit:        cfg.Settings.Execution.RetryLimit(),
	}
}

// Execute runs one node against a state snapshot and returns its result.
// The snapshot is read-only from the executor's point of view.
func (e *Executor) Execute(ctx context.Context, node *graph.Node, snapshot *state.Record) (*NodeResult, error) {
	start := time.Now()
	logger := e.logger.With(slog.String(log.NodeIDKey, node.ID))

	prompt, err := state.Resolve(node.Config.Prompt, snapshot)
	if err != nil {
		return nil, err
	}

	settings := e.resolveSettings(node.Config.LLM)
	var usage llm.Usage
	var metrics NodeMetrics

	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	if len(node.Config.Tools) > 0 {
		messages, err = e.runToolLoop(ctx, logger, node, messages, settings, &usage, &metrics)
		if err != nil {
			return nil, err
		}
	}

	delta, err := e.extractOutput(ctx, logger, node, messages, settings, &usage, &metrics)
	if err != nil {
		return nil, err
	}

	metrics.Duration = time.Since(start)
	metrics.InputTokens = usage.InputTokens
	metrics.OutputTokens = usage.OutputTokens
	metrics.EstimatedCost = llm.EstimateCost(settings.Model, usage)

	logger.Debug("node completed",
		slog.Int64(log.DurationKey, metrics.Duration.Milliseconds()),
		slog.Int("tool_calls", metrics.ToolCalls),
		slog.Int("attempts", metrics.Attempts))

	return &NodeResult{NodeID: node.ID, Delta: delta, Metrics: metrics}, nil
}

// runToolLoop drives the bounded request/execute/feed-back cycle. A tool
// failure becomes an error observation in the conversation, letting the model
// decide whether to retry or proceed; it never aborts the node. Hitting the
// iteration cap ends the loop with whatever context has accumulated.
func (e *Executor) runToolLoop(ctx context.Context, logger *slog.Logger, node *graph.Node,
	messages []llm.Message, settings llm.Settings, usage *llm.Usage, metrics *NodeMetrics) ([]llm.Message, error) {

	defs, err := e.registry.Defs(node.Config.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "node %q tool bindings", node.ID)
	}

	for iteration := 0; iteration < e.maxToolIterations; iteration++ {
		resp, err := e.client.InvokeWithTools(ctx, llm.ToolRequest{
			Messages: messages,
			Tools:    defs,
			Settings: settings,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "node %q model call", node.ID)
		}
		usage.Add(resp.Usage)
		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return messages, nil
		}

		for _, call := range resp.Message.ToolCalls {
			messages = append(messages, e.executeToolCall(ctx, logger, call))
			metrics.ToolCalls++
		}
	}

	logger.Warn("tool iteration cap reached", slog.Int("cap", e.maxToolIterations))
	return messages, nil
}

// executeToolCall runs one tool call and renders its result (or its error)
// as a tool message.
func (e *Executor) executeToolCall(ctx context.Context, logger *slog.Logger, call llm.ToolCall) llm.Message {
	msg := llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	result, err := e.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		logger.Warn("tool call failed",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		msg.Content = err.Error()
		msg.IsError = true
		return msg
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		msg.Content = fmt.Sprintf("tool result could not be encoded: %v", err)
		msg.IsError = true
		return msg
	}

	log.Trace(logger, "tool call succeeded",
		slog.String("tool", call.Name),
		slog.String("result", string(encoded)))
	msg.Content = string(encoded)
	return msg
}

// extractOutput runs the structured-output phase: invoke without tools,
// validate against the node's contract, and retry with escalating correction
// prompts until the limit is exhausted.
func (e *Executor) extractOutput(ctx context.Context, logger *slog.Logger, node *graph.Node,
	messages []llm.Message, settings llm.Settings, usage *llm.Usage, metrics *NodeMetrics) (state.Delta, error) {

	validator := node.Validator
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Produce the final result." + validator.InstructionSuffix(),
	})

	var lastErr error
	var lastRaw string

	for attempt := 0; attempt <= e.retryLimit; attempt++ {
		metrics.Attempts++

		resp, err := e.client.InvokeStructured(ctx, llm.StructuredRequest{
			Messages: messages,
			Schema:   validator.JSONSchema(),
			Settings: settings,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "node %q structured call", node.ID)
		}
		usage.Add(resp.Usage)
		lastRaw = resp.Raw

		delta, verr := validator.Validate(resp.Raw)
		if verr == nil {
			return state.Delta(delta), nil
		}
		lastErr = verr

		logger.Debug("structured output rejected",
			slog.Int("attempt", attempt+1),
			slog.String("error", verr.Error()))

		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Raw},
			llm.Message{Role: llm.RoleUser, Content: validator.CorrectionPrompt(attempt+1, verr)},
		)
	}

	return nil, &errors.OutputValidationError{
		NodeID:    node.ID,
		Attempts:  metrics.Attempts,
		LastError: lastErr,
		Response:  truncate(lastRaw, maxResponseInError),
	}
}

// resolveSettings layers a node's LLM override on top of the workflow
// defaults.
func (e *Executor) resolveSettings(override *flow.LLMOverride) llm.Settings {
	settings := llm.Settings{
		Provider:    e.defaults.Provider,
		Model:       e.defaults.Model,
		Temperature: e.defaults.Temperature,
		MaxTokens:   e.defaults.MaxTokens,
	}
	if override == nil {
		return settings
	}
	if override.Provider != "" {
		settings.Provider = override.Provider
	}
	if override.Model != "" {
		settings.Model = override.Model
	}
	if override.Temperature != nil {
		settings.Temperature = override.Temperature
	}
	if override.MaxTokens != nil {
		settings.MaxTokens = override.MaxTokens
	}
	return settings
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
