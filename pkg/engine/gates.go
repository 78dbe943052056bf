package engine

import (
	"fmt"
	"log/slog"

	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/flow/expression"
)

// evaluateGates checks each configured quality gate against the run's
// aggregated metrics. A gate trips when its condition evaluates false:
// warn gates are recorded and logged, fail gates convert the run to failed,
// block_deploy gates complete the run but set the deploy-block flag.
//
// A condition that fails to evaluate is treated as a tripped warn gate; a
// broken gate should never fail an otherwise successful run.
func (o *Orchestrator) evaluateGates(logger *slog.Logger, gates []flow.QualityGateConfig, outcome *RunOutcome) {
	if len(gates) == 0 {
		return
	}

	eval := expression.New()
	env := map[string]interface{}{"metrics": outcome.Metrics.Environment()}

	for _, gate := range gates {
		ok, err := eval.Evaluate(gate.Condition, env)
		if err != nil {
			logger.Warn("quality gate condition failed to evaluate",
				slog.String("gate", gate.Name),
				slog.String("error", err.Error()))
			outcome.GateWarnings = append(outcome.GateWarnings,
				fmt.Sprintf("%s: condition error: %v", gate.Name, err))
			continue
		}
		if ok {
			continue
		}

		switch gate.Action {
		case flow.GateFail:
			logger.Error("quality gate failed run",
				slog.String("gate", gate.Name),
				slog.String("condition", gate.Condition))
			outcome.Status = StatusFailed
			outcome.Err = fmt.Errorf("quality gate %q failed: condition %q not met", gate.Name, gate.Condition)

		case flow.GateBlockDeploy:
			logger.Warn("quality gate blocked deploy",
				slog.String("gate", gate.Name),
				slog.String("condition", gate.Condition))
			outcome.DeployBlocked = true

		default:
			logger.Warn("quality gate warning",
				slog.String("gate", gate.Name),
				slog.String("condition", gate.Condition))
			outcome.GateWarnings = append(outcome.GateWarnings,
				fmt.Sprintf("%s: condition %q not met", gate.Name, gate.Condition))
		}
	}
}
