package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/cascade/internal/log"
	"github.com/tombee/cascade/pkg/errors"
	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/graph"
	"github.com/tombee/cascade/pkg/llm"
	"github.com/tombee/cascade/pkg/state"
	"github.com/tombee/cascade/pkg/tools"
)

// Orchestrator drives a workflow run end to end: validate, build state,
// compile, traverse, merge, finalize. The tool registry and model client are
// process-level immutable dependencies injected at construction; no run
// mutates them.
type Orchestrator struct {
	client   llm.Client
	registry *tools.Registry
	logger   *slog.Logger
	repo     RunRepository
	tracker  ObservabilityTracker
}

// New creates an orchestrator. Repository and tracker are optional; attach
// them with the With methods.
func New(client llm.Client, registry *tools.Registry) *Orchestrator {
	return &Orchestrator{
		client:   client,
		registry: registry,
		logger:   log.New(log.FromEnv()),
	}
}

// WithLogger replaces the default environment-configured logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// WithRepository attaches a run repository. Calls to it are best-effort.
func (o *Orchestrator) WithRepository(repo RunRepository) *Orchestrator {
	o.repo = repo
	return o
}

// WithTracker attaches an observability tracker. Calls to it are best-effort.
func (o *Orchestrator) WithTracker(tracker ObservabilityTracker) *Orchestrator {
	o.tracker = tracker
	return o
}

// Run executes a parsed config document with the given inputs. The returned
// outcome is never nil; on failure it carries the structured error, the
// partial state, and whatever metrics accumulated. The error return equals
// outcome.Err for convenience at call sites.
func (o *Orchestrator) Run(ctx context.Context, cfg *flow.Config, inputs map[string]interface{}) (*RunOutcome, error) {
	outcome := &RunOutcome{
		RunID:  uuid.New().String(),
		Flow:   cfg.Flow.Name,
		Status: StatusLoaded,
	}
	logger := log.WithRunContext(o.logger, outcome.RunID, cfg.Flow.Name)
	started := time.Now()

	// Fail fast: every validation problem surfaces before any model call.
	if err := flow.ValidateGraph(cfg, flow.ValidateOptions{ToolNames: o.registry.Names()}); err != nil {
		return o.fail(ctx, logger, outcome, started, err)
	}
	outcome.Status = StatusValidated

	stateSchema, err := state.BuildSchema(cfg.State)
	if err != nil {
		return o.fail(ctx, logger, outcome, started, err)
	}
	record, err := stateSchema.NewRecord(inputs)
	if err != nil {
		return o.fail(ctx, logger, outcome, started, err)
	}
	outcome.Status = StatusStateInitialized

	plan, err := graph.Compile(cfg, stateSchema)
	if err != nil {
		return o.fail(ctx, logger, outcome, started, err)
	}

	o.createRun(ctx, logger, outcome, started)
	outcome.Status = StatusRunning
	logger.Info("run started", slog.Int("nodes", len(cfg.Nodes)))

	timeout := time.Duration(cfg.Settings.Execution.TimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor := NewExecutor(o.client, o.registry, logger, cfg)
	driveErr := o.drive(runCtx, logger, plan, record, executor, outcome)

	outcome.State = record.Values()
	outcome.Metrics.Duration = time.Since(started)

	if driveErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			driveErr = &errors.TimeoutError{Operation: "run", Duration: timeout, Cause: driveErr}
		}
		outcome.Status = StatusFailed
		outcome.Err = driveErr
		logger.Error("run failed", slog.String("error", driveErr.Error()))
	} else {
		outcome.Status = StatusCompleted
		o.evaluateGates(logger, cfg.Settings.Execution.QualityGates, outcome)
		if outcome.Status == StatusCompleted {
			logger.Info("run completed",
				slog.Int64(log.DurationKey, outcome.Metrics.Duration.Milliseconds()),
				slog.Int("nodes_executed", outcome.Metrics.NodesExecuted))
		}
	}

	o.finalize(ctx, logger, outcome)
	return outcome, outcome.Err
}

// fail finalizes an outcome for an error raised before traversal started.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, outcome *RunOutcome, started time.Time, err error) (*RunOutcome, error) {
	outcome.Status = StatusFailed
	outcome.Err = err
	outcome.Metrics.Duration = time.Since(started)
	logger.Error("run aborted", slog.String("error", err.Error()))
	o.finalize(ctx, logger, outcome)
	return outcome, err
}

// drive traverses the compiled plan from START to END, executing nodes and
// merging their deltas as it goes.
func (o *Orchestrator) drive(ctx context.Context, logger *slog.Logger, plan *graph.Plan,
	record *state.Record, executor *Executor, outcome *RunOutcome) error {

	// Hidden per-loop iteration counters, keyed by loop body. Auto-created,
	// never visible in the declared schema.
	loopCounts := make(map[string]int)

	startEdge := plan.Edge(flow.Start)
	if startEdge == nil {
		return &errors.ControlFlowError{NodeID: flow.Start, Reason: "no START edge in compiled plan"}
	}

	var current string
	switch startEdge.Kind {
	case graph.KindLinear:
		current = startEdge.To
	case graph.KindForkJoin:
		if err := o.runFork(ctx, logger, plan, startEdge, record, executor, outcome); err != nil {
			return err
		}
		current = startEdge.Fork.Join
	default:
		return &errors.ControlFlowError{NodeID: flow.Start, Reason: "START edge is neither linear nor fork"}
	}

	for current != flow.End {
		node := plan.Node(current)
		if node == nil {
			return &errors.ControlFlowError{NodeID: current, Reason: "traversal reached an unknown node"}
		}

		if err := o.executeInto(ctx, logger, node, record, executor, outcome); err != nil {
			return err
		}

		next, err := o.follow(ctx, logger, plan, current, record, executor, outcome, loopCounts)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// executeInto runs one node against a snapshot and merges its delta into the
// live record. Non-fatal failures are recorded on the outcome and traversal
// continues without a delta.
func (o *Orchestrator) executeInto(ctx context.Context, logger *slog.Logger, node *graph.Node,
	record *state.Record, executor *Executor, outcome *RunOutcome) error {

	o.trackNodeStart(ctx, outcome.RunID, node.ID)

	result, err := executor.Execute(ctx, node, record.Snapshot())
	if err != nil {
		if node.Config.Fatal() {
			return err
		}
		logger.Warn("node failed, continuing",
			slog.String(log.NodeIDKey, node.ID),
			slog.String("error", err.Error()))
		outcome.NodeFailures = append(outcome.NodeFailures, NodeFailure{NodeID: node.ID, Err: err.Error()})
		return nil
	}

	if err := record.Apply(result.Delta); err != nil {
		return errors.Wrapf(err, "merging node %q delta", node.ID)
	}
	outcome.Metrics.add(result.Metrics)
	o.trackNodeEnd(ctx, outcome.RunID, node.ID, result.Metrics)
	return nil
}

// follow resolves the next node after current, handling each edge kind.
func (o *Orchestrator) follow(ctx context.Context, logger *slog.Logger, plan *graph.Plan,
	current string, record *state.Record, executor *Executor, outcome *RunOutcome,
	loopCounts map[string]int) (string, error) {

	edge := plan.Edge(current)
	if edge == nil {
		return "", &errors.ControlFlowError{NodeID: current, Reason: "node has no outgoing edge"}
	}

	switch edge.Kind {
	case graph.KindLinear:
		return edge.To, nil

	case graph.KindConditional:
		target, err := plan.SelectRoute(edge, record)
		if err != nil {
			return "", &errors.ControlFlowError{NodeID: current, Reason: err.Error()}
		}
		return target, nil

	case graph.KindLoop:
		loop := edge.Loop
		loopCounts[loop.Body]++

		done, err := record.GetBool(loop.ConditionField)
		if err != nil {
			return "", &errors.ControlFlowError{NodeID: current, Reason: err.Error()}
		}
		if done {
			return loop.ExitTo, nil
		}
		if loopCounts[loop.Body] >= loop.MaxIterations {
			// Cap exhaustion is the safety valve, not an error.
			outcome.Metrics.LoopCapHits++
			logger.Warn("loop iteration cap reached",
				slog.String(log.NodeIDKey, loop.Body),
				slog.Int("max_iterations", loop.MaxIterations))
			return loop.ExitTo, nil
		}
		return loop.Body, nil

	case graph.KindForkJoin:
		if err := o.runFork(ctx, logger, plan, edge, record, executor, outcome); err != nil {
			return "", err
		}
		return edge.Fork.Join, nil

	default:
		return "", &errors.ControlFlowError{NodeID: current, Reason: fmt.Sprintf("unknown edge kind %q", edge.Kind)}
	}
}

// runFork executes all branches concurrently against the same pre-fork
// snapshot. Each branch accumulates an isolated delta; at the join barrier
// the deltas are applied to the shared record in branch declaration order,
// so merged output is deterministic regardless of completion order.
func (o *Orchestrator) runFork(ctx context.Context, logger *slog.Logger, plan *graph.Plan,
	edge *graph.Edge, record *state.Record, executor *Executor, outcome *RunOutcome) error {

	fork := edge.Fork
	snapshot := record.Snapshot()
	schema := plan.Schema()

	deltas := make([]state.Delta, len(fork.Branches))
	branchMetrics := make([][]NodeMetrics, len(fork.Branches))
	branchFailures := make([][]NodeFailure, len(fork.Branches))

	g, gctx := errgroup.WithContext(ctx)
	for i, branch := range fork.Branches {
		i, branch := i, branch
		g.Go(func() error {
			local := snapshot.Snapshot()
			acc := state.Delta{}

			for _, nodeID := range branch {
				node := plan.Node(nodeID)
				if node == nil {
					return &errors.ControlFlowError{NodeID: nodeID, Reason: "branch references an unknown node"}
				}

				o.trackNodeStart(gctx, outcome.RunID, nodeID)
				result, err := executor.Execute(gctx, node, local.Snapshot())
				if err != nil {
					if node.Config.Fatal() {
						return err
					}
					logger.Warn("branch node failed, continuing",
						slog.String(log.NodeIDKey, nodeID),
						slog.String("error", err.Error()))
					branchFailures[i] = append(branchFailures[i], NodeFailure{NodeID: nodeID, Err: err.Error()})
					continue
				}

				if err := local.Apply(result.Delta); err != nil {
					return errors.Wrapf(err, "branch %q merging node %q delta", fork.Targets[i], nodeID)
				}
				if err := schema.Accumulate(acc, result.Delta); err != nil {
					return errors.Wrapf(err, "branch %q accumulating node %q delta", fork.Targets[i], nodeID)
				}
				branchMetrics[i] = append(branchMetrics[i], result.Metrics)
				o.trackNodeEnd(gctx, outcome.RunID, nodeID, result.Metrics)
			}

			deltas[i] = acc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Join barrier: apply branch deltas in declaration order.
	for i, delta := range deltas {
		if err := record.Apply(delta); err != nil {
			return errors.Wrapf(err, "join merging branch %q delta", fork.Targets[i])
		}
	}
	for i := range fork.Branches {
		for _, nm := range branchMetrics[i] {
			outcome.Metrics.add(nm)
		}
		outcome.NodeFailures = append(outcome.NodeFailures, branchFailures[i]...)
	}
	return nil
}

// createRun records the run start, best-effort.
func (o *Orchestrator) createRun(ctx context.Context, logger *slog.Logger, outcome *RunOutcome, started time.Time) {
	if o.repo == nil {
		return
	}
	run := &Run{ID: outcome.RunID, Flow: outcome.Flow, Status: StatusRunning, StartedAt: started}
	if err := o.repo.Create(ctx, run); err != nil {
		logger.Warn("run record create failed", slog.String("error", err.Error()))
	}
}

// finalize writes the outcome to the repository and tracker, best-effort.
func (o *Orchestrator) finalize(ctx context.Context, logger *slog.Logger, outcome *RunOutcome) {
	if o.repo != nil {
		if err := o.repo.Update(ctx, outcome.RunID, outcome); err != nil {
			logger.Warn("run record update failed", slog.String("error", err.Error()))
		}
	}
	if o.tracker != nil {
		o.tracker.RunEnd(ctx, outcome.RunID, outcome)
	}
}

func (o *Orchestrator) trackNodeStart(ctx context.Context, runID, nodeID string) {
	if o.tracker != nil {
		o.tracker.NodeStart(ctx, runID, nodeID)
	}
}

func (o *Orchestrator) trackNodeEnd(ctx context.Context, runID, nodeID string, metrics NodeMetrics) {
	if o.tracker != nil {
		o.tracker.NodeEnd(ctx, runID, nodeID, metrics)
	}
}
