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

// Package observe provides observability tracker implementations: structured
// logging, Prometheus metrics, and OpenTelemetry spans. All are best-effort
// and safe for concurrent use from fork branches.
package observe

import (
	"context"
	"log/slog"

	"github.com/tombee/cascade/internal/log"
	"github.com/tombee/cascade/pkg/engine"
)

// LogTracker emits node and run lifecycle events as structured log entries.
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker creates a tracker writing to the given logger.
func NewLogTracker(logger *slog.Logger) *LogTracker {
	return &LogTracker{logger: log.WithComponent(logger, "tracker")}
}

// NodeStart implements engine.ObservabilityTracker.
func (t *LogTracker) NodeStart(ctx context.Context, runID, nodeID string) {
	t.logger.Info("node started",
		slog.String(log.RunIDKey, runID),
		slog.String(log.NodeIDKey, nodeID))
}

// NodeEnd implements engine.ObservabilityTracker.
func (t *LogTracker) NodeEnd(ctx context.Context, runID, nodeID string, metrics engine.NodeMetrics) {
	t.logger.Info("node finished",
		slog.String(log.RunIDKey, runID),
		slog.String(log.NodeIDKey, nodeID),
		slog.Int64(log.DurationKey, metrics.Duration.Milliseconds()),
		slog.Int("input_tokens", metrics.InputTokens),
		slog.Int("output_tokens", metrics.OutputTokens),
		slog.Float64("estimated_cost", metrics.EstimatedCost),
		slog.Int("tool_calls", metrics.ToolCalls))
}

// RunEnd implements engine.ObservabilityTracker.
func (t *LogTracker) RunEnd(ctx context.Context, runID string, outcome *engine.RunOutcome) {
	t.logger.Info("run finished",
		slog.String(log.RunIDKey, runID),
		slog.String(log.FlowKey, outcome.Flow),
		slog.String("status", string(outcome.Status)),
		slog.Int64(log.DurationKey, outcome.Metrics.Duration.Milliseconds()),
		slog.Float64("estimated_cost", outcome.Metrics.EstimatedCost))
}
