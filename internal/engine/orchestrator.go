// Package engine provides the flow orchestrator, the facade other subsystems
// call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/replyflow/replyflow/internal/classify"
	"github.com/replyflow/replyflow/internal/escalation"
	"github.com/replyflow/replyflow/internal/models"
	"github.com/replyflow/replyflow/internal/store"
	"github.com/replyflow/replyflow/internal/trigger"
)

// maxRouteHops caps chained scenario handoffs from route steps within one
// inbound message, so two scenarios routing to each other cannot loop.
const maxRouteHops = 5

// genericFallbackMessage is sent when a scenario fails without a configured
// fallback message. Internal errors never reach the customer verbatim.
const genericFallbackMessage = "Sorry, something went wrong on our side. A member of our team will follow up with you."

// ScenarioSource is the registry surface the orchestrator needs.
type ScenarioSource interface {
	Get(id string) (*models.Scenario, error)
}

// MessageSender delivers outbound messages to the conversation channel.
// Optional; when absent the messages are only returned to the caller.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, body string) error
}

// Orchestrator receives inbound message events and routes them to either a
// new or a resumed conversation flow. It is the flow store's single writer.
type Orchestrator struct {
	registry ScenarioSource
	matcher  *trigger.Matcher
	flows    store.Store
	executor *Executor

	classifier classify.Provider
	sink       escalation.Sink
	rules      *escalation.RuleMatcher
	sender     MessageSender

	locks *convLocks
	now   func() time.Time
}

// OrchestratorOption configures optional orchestrator collaborators.
type OrchestratorOption func(*Orchestrator)

// WithClassifier supplies intent/sentiment labels for unlabeled messages.
func WithClassifier(p classify.Provider) OrchestratorOption {
	return func(o *Orchestrator) { o.classifier = p }
}

// WithEscalationSink sets the human handoff destination.
func WithEscalationSink(s escalation.Sink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = s }
}

// WithEscalationRules enables the standalone escalation rule matcher for
// messages no scenario claims.
func WithEscalationRules(m *escalation.RuleMatcher) OrchestratorOption {
	return func(o *Orchestrator) { o.rules = m }
}

// WithMessageSender also delivers outbound messages to the channel.
func WithMessageSender(s MessageSender) OrchestratorOption {
	return func(o *Orchestrator) { o.sender = s }
}

// WithOrchestratorClock overrides the clock.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates the flow orchestrator.
func NewOrchestrator(registry ScenarioSource, matcher *trigger.Matcher, flows store.Store, executor *Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		matcher:  matcher,
		flows:    flows,
		executor: executor,
		sink:     escalation.LogSink{},
		locks:    newConvLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleInboundMessage is the engine's single entry point. Processing is
// serialized per conversation: the active-flow lookup and the flow mutation
// happen under the conversation's lock.
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, msg models.InboundMessage) (*models.InboundResult, error) {
	slog.Debug("Orchestrator HandleInboundMessage", "conversationID", msg.ConversationID, "customerID", msg.CustomerID, "companyID", msg.CompanyID)

	unlock := o.locks.lock(msg.ConversationID)
	defer unlock()

	if msg.Intent == "" && msg.Sentiment == "" && o.classifier != nil {
		if cls, err := o.classifier.Classify(ctx, msg.Text); err == nil {
			msg.Intent, msg.Sentiment = cls.Intent, cls.Sentiment
		} else {
			// Classification is best effort; matching still works on keywords.
			slog.Warn("Orchestrator classification failed", "error", err, "conversationID", msg.ConversationID)
		}
	}

	flow, err := o.flows.GetActiveFlow(msg.ConversationID)
	switch {
	case err == nil:
		return o.resumeFlow(ctx, msg, flow)
	case errors.Is(err, models.ErrFlowNotFound):
		// No active flow: an earlier one may have completed, been cancelled
		// by an agent, or been swept for staleness. Start fresh either way.
		return o.startFlow(ctx, msg)
	default:
		return nil, fmt.Errorf("failed to look up active flow: %w", err)
	}
}

// resumeFlow feeds the inbound text to a suspended flow as the reply to its
// current step.
func (o *Orchestrator) resumeFlow(ctx context.Context, msg models.InboundMessage, flow *models.ConversationFlow) (*models.InboundResult, error) {
	sc, err := o.registry.Get(flow.ScenarioID)
	if err != nil {
		// The scenario vanished between messages (deployment drift). Abandon
		// the orphaned flow and treat the message as a fresh conversation.
		slog.Warn("Orchestrator resume found orphaned flow", "flowID", flow.ID, "scenarioID", flow.ScenarioID)
		flow.Finish(models.FlowStatusAbandoned, o.now())
		if saveErr := o.flows.SaveFlow(*flow); saveErr != nil {
			return nil, fmt.Errorf("failed to abandon orphaned flow: %w", saveErr)
		}
		return o.startFlow(ctx, msg)
	}

	slog.Debug("Orchestrator resuming flow", "flowID", flow.ID, "scenarioID", sc.ID, "step", flow.CurrentStepID)
	input := msg.Text
	runRes, runErr := o.executor.Run(ctx, flow, sc, flow.CurrentStepID, &input)
	return o.settle(ctx, msg, flow, sc, runRes, runErr)
}

// startFlow matches the message against the registry and, on a match, creates
// and executes a fresh flow. On no match the escalation rules get a say;
// otherwise the message falls through to human/other handling with no
// automated output.
func (o *Orchestrator) startFlow(ctx context.Context, msg models.InboundMessage) (*models.InboundResult, error) {
	ev := trigger.Event{
		Text:       msg.Text,
		Intent:     msg.Intent,
		Sentiment:  msg.Sentiment,
		CustomerID: msg.CustomerID,
		CompanyID:  msg.CompanyID,
	}
	sc, err := o.matcher.Match(ctx, ev)
	if errors.Is(err, models.ErrNoMatch) {
		return o.noMatch(ctx, msg, ev)
	}
	if err != nil {
		return nil, fmt.Errorf("trigger matching failed: %w", err)
	}

	flow := o.newFlow(sc, msg)
	if err := o.flows.RecordUsage(sc.ID, msg.CustomerID, o.now()); err != nil {
		slog.Warn("Orchestrator failed to record scenario usage", "error", err, "scenarioID", sc.ID)
	}
	runRes, runErr := o.executor.Run(ctx, flow, sc, sc.EntryStepID(), nil)
	return o.settle(ctx, msg, flow, sc, runRes, runErr)
}

// noMatch consults the escalation rule matcher before giving up on a message.
func (o *Orchestrator) noMatch(ctx context.Context, msg models.InboundMessage, ev trigger.Event) (*models.InboundResult, error) {
	result := &models.InboundResult{}
	if o.rules == nil {
		return result, nil
	}
	rule := o.rules.Match(ev)
	if rule == nil {
		return result, nil
	}

	o.handoff(ctx, models.HandoffRequest{
		ConversationID: msg.ConversationID,
		Department:     rule.Department,
		Priority:       rule.Priority,
		Reason:         "escalation rule " + rule.ID,
	})
	result.Escalated = true
	if rule.Reply != "" {
		result.OutboundMessages = append(result.OutboundMessages, models.OutboundMessage{Content: rule.Reply})
	}
	o.deliver(ctx, msg.ConversationID, result.OutboundMessages)
	return result, nil
}

// settle persists the outcome of one executor run, applies the fallback
// policy on execution errors, follows route handoffs, and delivers output.
// The customer always gets some response on failure, never a raw error.
func (o *Orchestrator) settle(ctx context.Context, msg models.InboundMessage, flow *models.ConversationFlow, sc *models.Scenario, runRes *RunResult, runErr error) (*models.InboundResult, error) {
	result := &models.InboundResult{}

	for hop := 0; ; hop++ {
		if runErr != nil {
			slog.Error("Orchestrator flow execution failed", "error", runErr, "flowID", flow.ID, "scenarioID", sc.ID)
			runRes = o.executor.Fallback(flow, sc, fmt.Sprintf("execution error: %v", runErr))
			if len(runRes.Outbound) == 0 {
				runRes.Outbound = append(runRes.Outbound, models.OutboundMessage{Content: genericFallbackMessage})
			}
			runErr = nil
		}

		result.OutboundMessages = append(result.OutboundMessages, runRes.Outbound...)
		if runRes.Handoff != nil {
			o.handoff(ctx, *runRes.Handoff)
			result.Escalated = true
		}
		if err := o.flows.SaveFlow(*flow); err != nil {
			return nil, fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
		}
		result.FlowID = flow.ID

		if runRes.RouteTo == "" {
			break
		}
		if hop >= maxRouteHops {
			slog.Error("Orchestrator route hop limit exceeded", "conversationID", msg.ConversationID, "target", runRes.RouteTo)
			break
		}

		next, err := o.registry.Get(runRes.RouteTo)
		if err != nil {
			// Routing to an unregistered scenario is authoring drift; apply
			// the current scenario's fallback rather than failing silently.
			slog.Warn("Orchestrator route target missing", "target", runRes.RouteTo, "scenarioID", sc.ID)
			ghost := o.newFlow(sc, msg)
			runRes, runErr = o.executor.Fallback(ghost, sc, "route target "+runRes.RouteTo+" is not registered"), nil
			flow = ghost
			continue
		}

		slog.Info("Orchestrator routing to scenario", "from", sc.ID, "to", next.ID, "conversationID", msg.ConversationID)
		flow = o.newFlow(next, msg)
		sc = next
		if err := o.flows.RecordUsage(next.ID, msg.CustomerID, o.now()); err != nil {
			slog.Warn("Orchestrator failed to record scenario usage", "error", err, "scenarioID", next.ID)
		}
		runRes, runErr = o.executor.Run(ctx, flow, sc, sc.EntryStepID(), nil)
	}

	o.deliver(ctx, msg.ConversationID, result.OutboundMessages)
	return result, nil
}

// CancelFlow explicitly abandons a conversation's active flow, e.g. when an
// agent takes over. Serialized with message handling so a cancelled flow is
// never resumed.
func (o *Orchestrator) CancelFlow(ctx context.Context, conversationID string) error {
	unlock := o.locks.lock(conversationID)
	defer unlock()

	flow, err := o.flows.GetActiveFlow(conversationID)
	if err != nil {
		return err
	}
	flow.Finish(models.FlowStatusAbandoned, o.now())
	if err := o.flows.SaveFlow(*flow); err != nil {
		return fmt.Errorf("failed to cancel flow %s: %w", flow.ID, err)
	}
	slog.Info("Orchestrator cancelled flow", "flowID", flow.ID, "conversationID", conversationID)
	return nil
}

// ActiveFlow exposes the conversation's active flow for the agent UI.
func (o *Orchestrator) ActiveFlow(conversationID string) (*models.ConversationFlow, error) {
	return o.flows.GetActiveFlow(conversationID)
}

func (o *Orchestrator) newFlow(sc *models.Scenario, msg models.InboundMessage) *models.ConversationFlow {
	now := o.now()
	return &models.ConversationFlow{
		ID:             uuid.New().String(),
		ConversationID: msg.ConversationID,
		CustomerID:     msg.CustomerID,
		CompanyID:      msg.CompanyID,
		ScenarioID:     sc.ID,
		CurrentStepID:  sc.EntryStepID(),
		Context: map[string]any{
			"conversationId": msg.ConversationID,
			"customerId":     msg.CustomerID,
			"companyId":      msg.CompanyID,
			"intent":         msg.Intent,
			"sentiment":      msg.Sentiment,
		},
		Status:         models.FlowStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func (o *Orchestrator) handoff(ctx context.Context, req models.HandoffRequest) {
	if err := o.sink.Handoff(ctx, req); err != nil {
		// The flow is already terminal; a sink failure must not lose the
		// customer's response.
		slog.Error("Orchestrator handoff delivery failed", "error", err, "conversationID", req.ConversationID)
	}
}

func (o *Orchestrator) deliver(ctx context.Context, conversationID string, messages []models.OutboundMessage) {
	if o.sender == nil {
		return
	}
	for _, m := range messages {
		if err := o.sender.SendMessage(ctx, conversationID, m.Content); err != nil {
			slog.Error("Orchestrator outbound delivery failed", "error", err, "conversationID", conversationID)
		}
	}
}
