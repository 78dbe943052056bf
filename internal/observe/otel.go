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

package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/cascade/pkg/engine"
)

// OtelTracker emits one span per node execution. Spans for fork branches can
// start and end concurrently, so the open-span map is mutex-guarded.
type OtelTracker struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // runID/nodeID -> open span
}

// NewOtelTracker creates a tracker using the given tracer. The caller owns
// provider setup and shutdown; the engine only records spans.
func NewOtelTracker(tracer trace.Tracer) *OtelTracker {
	return &OtelTracker{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// NodeStart implements engine.ObservabilityTracker.
func (t *OtelTracker) NodeStart(ctx context.Context, runID, nodeID string) {
	_, span := t.tracer.Start(ctx, "node: "+nodeID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("node.id", nodeID),
		),
	)

	t.mu.Lock()
	t.spans[runID+"/"+nodeID] = span
	t.mu.Unlock()
}

// NodeEnd implements engine.ObservabilityTracker.
func (t *OtelTracker) NodeEnd(ctx context.Context, runID, nodeID string, metrics engine.NodeMetrics) {
	t.mu.Lock()
	span, ok := t.spans[runID+"/"+nodeID]
	delete(t.spans, runID+"/"+nodeID)
	t.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.Int64("node.duration_ms", metrics.Duration.Milliseconds()),
		attribute.Int("node.input_tokens", metrics.InputTokens),
		attribute.Int("node.output_tokens", metrics.OutputTokens),
		attribute.Float64("node.estimated_cost", metrics.EstimatedCost),
		attribute.Int("node.tool_calls", metrics.ToolCalls),
		attribute.Int("node.attempts", metrics.Attempts),
	)
	span.End()
}

// RunEnd implements engine.ObservabilityTracker. Any spans left open (a node
// failed between start and end) are closed with an error status.
func (t *OtelTracker) RunEnd(ctx context.Context, runID string, outcome *engine.RunOutcome) {
	prefix := runID + "/"

	t.mu.Lock()
	for key, span := range t.spans {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			span.SetStatus(codes.Error, "node did not finish")
			span.End()
			delete(t.spans, key)
		}
	}
	t.mu.Unlock()
}
