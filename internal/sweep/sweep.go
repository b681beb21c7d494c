// Package sweep abandons conversation flows that have gone quiet.
//
// A flow suspends when it waits for a customer reply; customers routinely stop
// answering, so suspended flows would otherwise accumulate forever. The sweeper
// is a pure pass over the store, scheduled externally by CronRunner, so the
// engine itself stays free of timing concerns.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/replyflow/replyflow/internal/escalation"
	"github.com/replyflow/replyflow/internal/models"
	"github.com/replyflow/replyflow/internal/store"
)

// DefaultMaxIdle is how long a flow may sit without customer activity before
// it is considered abandoned.
const DefaultMaxIdle = 24 * time.Hour

// ScenarioSource resolves a flow's scenario so its fallback policy applies on
// abandonment.
type ScenarioSource interface {
	Get(id string) (*models.Scenario, error)
}

// MessageSender delivers the scenario's fallback message to the conversation.
// Optional.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, body string) error
}

// Sweeper abandons stale flows and applies their scenario's fallback policy.
type Sweeper struct {
	flows     store.Store
	scenarios ScenarioSource
	sink      escalation.Sink
	sender    MessageSender
	maxIdle   time.Duration
}

// SweeperOption configures optional sweeper collaborators.
type SweeperOption func(*Sweeper)

// WithMaxIdle overrides the staleness threshold.
func WithMaxIdle(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.maxIdle = d }
}

// WithMessageSender also delivers fallback messages to the channel.
func WithMessageSender(m MessageSender) SweeperOption {
	return func(s *Sweeper) { s.sender = m }
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(flows store.Store, scenarios ScenarioSource, sink escalation.Sink, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		flows:     flows,
		scenarios: scenarios,
		sink:      sink,
		maxIdle:   DefaultMaxIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run abandons every active flow with no activity since now minus the idle
// threshold and returns how many were swept. Per-flow failures are logged and
// skipped so one bad row cannot stall the sweep.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.maxIdle)
	slog.Debug("Sweeper Run", "cutoff", cutoff)

	stale, err := s.flows.ListStaleFlows(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale flows: %w", err)
	}

	swept := 0
	for i := range stale {
		if err := s.sweepFlow(ctx, &stale[i], now); err != nil {
			slog.Error("Sweeper failed to sweep flow", "error", err, "flowID", stale[i].ID)
			continue
		}
		swept++
	}
	if swept > 0 {
		slog.Info("Sweeper abandoned stale flows", "count", swept)
	}
	return swept, nil
}

func (s *Sweeper) sweepFlow(ctx context.Context, flow *models.ConversationFlow, now time.Time) error {
	flow.Finish(models.FlowStatusAbandoned, now)
	if err := s.flows.SaveFlow(*flow); err != nil {
		return fmt.Errorf("failed to save abandoned flow: %w", err)
	}
	slog.Info("Sweeper abandoned flow", "flowID", flow.ID, "conversationID", flow.ConversationID, "scenarioID", flow.ScenarioID, "lastActivityAt", flow.LastActivityAt)

	sc, err := s.scenarios.Get(flow.ScenarioID)
	if err != nil {
		// The flow outlived its scenario; abandoning it is all we can do.
		slog.Warn("Sweeper found flow with unknown scenario", "flowID", flow.ID, "scenarioID", flow.ScenarioID)
		return nil
	}

	if sc.Fallback.Message != "" && s.sender != nil {
		if err := s.sender.SendMessage(ctx, flow.ConversationID, sc.Fallback.Message); err != nil {
			slog.Error("Sweeper fallback delivery failed", "error", err, "conversationID", flow.ConversationID)
		}
	}
	if sc.Fallback.EscalateToHuman {
		req := models.HandoffRequest{
			ConversationID: flow.ConversationID,
			Department:     "support",
			Priority:       sc.Priority,
			Reason:         "flow abandoned after inactivity",
		}
		if err := s.sink.Handoff(ctx, req); err != nil {
			slog.Error("Sweeper handoff delivery failed", "error", err, "conversationID", flow.ConversationID)
		}
	}
	return nil
}

// CronRunner runs the sweeper on a cron schedule.
type CronRunner struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

// NewCronRunner creates and starts a cron runner for the sweeper.
func NewCronRunner(sweeper *Sweeper) *CronRunner {
	// Standard 5-field cron parser with panic recovery around jobs.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronRunner{cron: c, sweeper: sweeper}
}

// Schedule registers the sweep under the given cron expression. It returns an
// error if the expression is invalid.
func (r *CronRunner) Schedule(expr string) error {
	_, err := r.cron.AddFunc(expr, func() {
		if _, err := r.sweeper.Run(context.Background(), time.Now()); err != nil {
			slog.Error("Sweeper scheduled run failed", "error", err)
		}
	})
	return err
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (r *CronRunner) Stop() {
	<-r.cron.Stop().Done()
}
