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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/cascade/pkg/engine"
)

var (
	// nodeExecutions tracks node invocations by node id
	nodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_node_executions_total",
			Help: "Total node executions by node id",
		},
		[]string{"node"},
	)

	// nodeDuration tracks node execution latency
	nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascade_node_duration_seconds",
			Help:    "Node execution duration by node id",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"node"},
	)

	// nodeToolCalls tracks tool invocations made during node execution
	nodeToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_node_tool_calls_total",
			Help: "Total tool calls by node id",
		},
		[]string{"node"},
	)

	// runOutcomes tracks finished runs by status
	runOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_runs_total",
			Help: "Total finished runs by flow and status",
		},
		[]string{"flow", "status"},
	)

	// runCost tracks estimated run cost
	runCost = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascade_run_cost_usd",
			Help:    "Estimated run cost in USD by flow",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"flow"},
	)

	// runTokens tracks total token consumption per run
	runTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascade_run_tokens",
			Help:    "Total tokens consumed per run by flow",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		},
		[]string{"flow"},
	)
)

// PromTracker records node and run metrics to Prometheus counters and
// histograms registered on the default registry.
type PromTracker struct{}

// NewPromTracker creates a Prometheus-backed tracker.
func NewPromTracker() *PromTracker {
	return &PromTracker{}
}

// NodeStart implements engine.ObservabilityTracker.
func (t *PromTracker) NodeStart(ctx context.Context, runID, nodeID string) {
	nodeExecutions.WithLabelValues(nodeID).Inc()
}

// NodeEnd implements engine.ObservabilityTracker.
func (t *PromTracker) NodeEnd(ctx context.Context, runID, nodeID string, metrics engine.NodeMetrics) {
	nodeDuration.WithLabelValues(nodeID).Observe(metrics.Duration.Seconds())
	nodeToolCalls.WithLabelValues(nodeID).Add(float64(metrics.ToolCalls))
}

// RunEnd implements engine.ObservabilityTracker.
func (t *PromTracker) RunEnd(ctx context.Context, runID string, outcome *engine.RunOutcome) {
	runOutcomes.WithLabelValues(outcome.Flow, string(outcome.Status)).Inc()
	runCost.WithLabelValues(outcome.Flow).Observe(outcome.Metrics.EstimatedCost)
	runTokens.WithLabelValues(outcome.Flow).Observe(float64(outcome.Metrics.InputTokens + outcome.Metrics.OutputTokens))
}
