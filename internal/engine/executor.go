// Package engine provides the step executor for conversation flows.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/replyflow/replyflow/internal/actions"
	"github.com/replyflow/replyflow/internal/models"
)

// MaxStepsPerMessage caps sequential (non-suspending) step execution for one
// inbound message. Condition branching can in principle cycle; the cap turns a
// hang into ErrFlowCycle.
const MaxStepsPerMessage = 50

// ConditionEvaluator evaluates a named predicate over a flow context.
// Implemented by the scenario registry, which owns the compiled predicates.
type ConditionEvaluator interface {
	EvaluateCondition(scenarioID, name string, context map[string]any) bool
}

// RunResult is the outcome of one executor invocation.
type RunResult struct {
	// Outbound collects the visible responses in emission order.
	Outbound []models.OutboundMessage
	// Suspended is true when the flow stopped at a question or route step
	// awaiting the next inbound message.
	Suspended bool
	// Handoff is set when execution escalated to a human queue.
	Handoff *models.HandoffRequest
	// RouteTo names a scenario that should replace the current flow.
	RouteTo string
	// FallbackUsed is true when the scenario's fallback policy fired.
	FallbackUsed bool
}

// Executor interprets a scenario's step graph against a flow. It mutates only
// the flow it is given; scenarios are never written to. Run is deterministic
// for a fixed flow state, scenario, and input.
type Executor struct {
	actions    actions.Provider
	conditions ConditionEvaluator
	now        func() time.Time
}

// NewExecutor creates a step executor.
func NewExecutor(provider actions.Provider, conditions ConditionEvaluator) *Executor {
	return &Executor{actions: provider, conditions: conditions, now: time.Now}
}

// WithClock overrides the executor's clock.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Run executes the scenario from startStepID until the flow suspends,
// terminates, or the step cap trips. userInput is the inbound message text
// when resuming a suspended flow, nil on a fresh start. Action failures are
// returned to the caller, never swallowed; the flow is left untouched at the
// failing step so the orchestrator decides the fallback.
func (e *Executor) Run(ctx context.Context, flow *models.ConversationFlow, sc *models.Scenario, startStepID string, userInput *string) (*RunResult, error) {
	slog.Debug("Executor Run", "flowID", flow.ID, "scenarioID", sc.ID, "startStep", startStepID, "hasInput", userInput != nil)

	result := &RunResult{}
	stepID := startStepID
	for executed := 0; stepID != ""; executed++ {
		if executed >= MaxStepsPerMessage {
			slog.Error("Executor Run step cap exceeded", "flowID", flow.ID, "scenarioID", sc.ID, "step", stepID)
			return nil, fmt.Errorf("scenario %s at step %s: %w", sc.ID, stepID, models.ErrFlowCycle)
		}

		step := sc.StepByID(stepID)
		if step == nil {
			// Registration validates references, so this indicates a stale
			// flow pointing at a republished scenario. End it cleanly.
			slog.Warn("Executor Run unknown step, completing flow", "flowID", flow.ID, "step", stepID)
			break
		}
		flow.CurrentStepID = step.ID

		switch step.Type {
		case models.StepTypeMessage:
			e.emit(result, flow, step)
			stepID = step.Next

		case models.StepTypeQuestion:
			if userInput == nil {
				e.emit(result, flow, step)
				result.Suspended = true
				return result, nil
			}
			flow.SetContext(step.BindTo, *userInput)
			flow.AppendHistory(models.HistoryEntry{StepID: step.ID, Timestamp: e.now(), UserInput: *userInput, Completed: true})
			userInput = nil
			stepID = step.Next

		case models.StepTypeAction:
			out, err := e.actions.Invoke(ctx, step.Action, step.Params, flow.Context)
			if err != nil {
				return nil, err
			}
			flow.MergeContext(out)
			flow.AppendHistory(models.HistoryEntry{StepID: step.ID, Timestamp: e.now(), Completed: true})
			stepID = step.Next

		case models.StepTypeCondition:
			if e.conditions.EvaluateCondition(sc.ID, step.Predicate, flow.Context) {
				stepID = step.TrueStep
			} else {
				stepID = step.FalseStep
			}

		case models.StepTypeEscalate:
			if step.Content != "" {
				e.emit(result, flow, step)
			} else {
				flow.AppendHistory(models.HistoryEntry{StepID: step.ID, Timestamp: e.now(), Completed: true})
			}
			e.handoff(result, flow, sc, step.Department, step.Priority, "scenario escalation step "+step.ID)
			return result, nil

		case models.StepTypeRoute:
			if userInput == nil {
				e.emit(result, flow, step)
				result.Suspended = true
				return result, nil
			}
			input := *userInput
			userInput = nil
			flow.AppendHistory(models.HistoryEntry{StepID: step.ID, Timestamp: e.now(), UserInput: input, Completed: true})

			target, ok := resolveRoute(step.Routes, input)
			if !ok {
				e.fallback(result, flow, sc, "unrecognized route choice at step "+step.ID)
				return result, nil
			}
			if target == models.EscalationToken {
				e.handoff(result, flow, sc, "", sc.Priority, "customer chose escalation at step "+step.ID)
				return result, nil
			}
			result.RouteTo = target
			flow.Finish(models.FlowStatusCompleted, e.now())
			return result, nil

		default:
			slog.Warn("Executor Run unknown step type, completing flow", "flowID", flow.ID, "type", step.Type)
			stepID = ""
		}
	}

	flow.Finish(models.FlowStatusCompleted, e.now())
	slog.Debug("Executor Run flow completed", "flowID", flow.ID, "scenarioID", sc.ID)
	return result, nil
}

// Fallback applies the scenario's fallback policy to a flow: emit the
// configured message and optionally hand off. Used by the executor for route
// misses and by the orchestrator for action failures and staleness.
func (e *Executor) Fallback(flow *models.ConversationFlow, sc *models.Scenario, reason string) *RunResult {
	result := &RunResult{}
	e.fallback(result, flow, sc, reason)
	return result
}

func (e *Executor) emit(result *RunResult, flow *models.ConversationFlow, step *models.Step) {
	result.Outbound = append(result.Outbound, models.OutboundMessage{
		Content: RenderTemplate(step.Content, flow.Context),
		Options: step.Options,
		DelayMs: step.DelayMs,
	})
	completed := step.Type == models.StepTypeMessage || step.Type == models.StepTypeEscalate
	flow.AppendHistory(models.HistoryEntry{StepID: step.ID, Timestamp: e.now(), Completed: completed})
}

func (e *Executor) fallback(result *RunResult, flow *models.ConversationFlow, sc *models.Scenario, reason string) {
	result.FallbackUsed = true
	if sc.Fallback.Message != "" {
		result.Outbound = append(result.Outbound, models.OutboundMessage{
			Content: RenderTemplate(sc.Fallback.Message, flow.Context),
		})
	}
	if sc.Fallback.EscalateToHuman {
		e.handoff(result, flow, sc, "", sc.Priority, reason)
		return
	}
	flow.Finish(models.FlowStatusAbandoned, e.now())
	slog.Debug("Executor fallback without escalation", "flowID", flow.ID, "reason", reason)
}

// handoff marks the flow escalated and records the handoff request for the
// orchestrator to deliver to the escalation sink.
func (e *Executor) handoff(result *RunResult, flow *models.ConversationFlow, sc *models.Scenario, department string, priority models.Priority, reason string) {
	if department == "" {
		department = "support"
	}
	if priority == "" {
		priority = sc.Priority
	}
	result.Handoff = &models.HandoffRequest{
		ConversationID: flow.ConversationID,
		Department:     department,
		Priority:       priority,
		Reason:         reason,
	}
	flow.Finish(models.FlowStatusEscalated, e.now())
	slog.Info("Executor handoff", "flowID", flow.ID, "department", department, "priority", priority, "reason", reason)
}

// resolveRoute looks up a user choice, first verbatim, then case-insensitively
// with surrounding whitespace ignored.
func resolveRoute(routes map[string]string, choice string) (string, bool) {
	if target, ok := routes[choice]; ok {
		return target, true
	}
	normalized := strings.ToLower(strings.TrimSpace(choice))
	for key, target := range routes {
		if strings.ToLower(strings.TrimSpace(key)) == normalized {
			return target, true
		}
	}
	return "", false
}
