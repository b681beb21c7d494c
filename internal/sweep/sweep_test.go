package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/replyflow/replyflow/internal/models"
	"github.com/replyflow/replyflow/internal/store"
)

type stubScenarios struct {
	scenarios map[string]*models.Scenario
}

func (s *stubScenarios) Get(id string) (*models.Scenario, error) {
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, models.ErrScenarioNotFound
	}
	return sc, nil
}

type recordingSink struct {
	mu       sync.Mutex
	handoffs []models.HandoffRequest
}

func (s *recordingSink) Handoff(ctx context.Context, req models.HandoffRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs = append(s.handoffs, req)
	return nil
}

type recordingSender struct {
	sent []string
}

func (s *recordingSender) SendMessage(ctx context.Context, conversationID, body string) error {
	s.sent = append(s.sent, conversationID+": "+body)
	return nil
}

func seedFlow(t *testing.T, st store.Store, conversationID, scenarioID string, lastActivity time.Time) string {
	t.Helper()
	flow := models.ConversationFlow{
		ID:             "flow-" + conversationID,
		ConversationID: conversationID,
		CustomerID:     "c1",
		CompanyID:      "acme",
		ScenarioID:     scenarioID,
		CurrentStepID:  "ask",
		Status:         models.FlowStatusActive,
		StartedAt:      lastActivity,
		LastActivityAt: lastActivity,
	}
	if err := st.SaveFlow(flow); err != nil {
		t.Fatalf("SaveFlow failed: %v", err)
	}
	return flow.ID
}

func TestRunAbandonsOnlyStaleFlows(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	staleID := seedFlow(t, st, "conv-old", "returns", now.Add(-48*time.Hour))
	freshID := seedFlow(t, st, "conv-new", "returns", now.Add(-1*time.Hour))

	scenarios := &stubScenarios{scenarios: map[string]*models.Scenario{
		"returns": {ID: "returns", Priority: models.PriorityMedium},
	}}
	sink := &recordingSink{}
	sweeper := NewSweeper(st, scenarios, sink)

	swept, err := sweeper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept flow, got %d", swept)
	}

	old, err := st.GetFlow(staleID)
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if old.Status != models.FlowStatusAbandoned {
		t.Errorf("stale flow should be abandoned, got %s", old.Status)
	}
	fresh, err := st.GetFlow(freshID)
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if fresh.Status != models.FlowStatusActive {
		t.Errorf("recent flow must stay active, got %s", fresh.Status)
	}
}

func TestRunAppliesFallbackPolicy(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seedFlow(t, st, "conv-1", "returns", now.Add(-48*time.Hour))

	scenarios := &stubScenarios{scenarios: map[string]*models.Scenario{
		"returns": {
			ID:       "returns",
			Priority: models.PriorityHigh,
			Fallback: models.Fallback{
				Message:         "We didn't hear back, an agent will follow up.",
				EscalateToHuman: true,
			},
		},
	}}
	sink := &recordingSink{}
	sender := &recordingSender{}
	sweeper := NewSweeper(st, scenarios, sink, WithMessageSender(sender))

	if _, err := sweeper.Run(context.Background(), now); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "conv-1: We didn't hear back, an agent will follow up." {
		t.Errorf("unexpected fallback delivery: %v", sender.sent)
	}
	if len(sink.handoffs) != 1 {
		t.Fatalf("expected one handoff, got %d", len(sink.handoffs))
	}
	if sink.handoffs[0].Priority != models.PriorityHigh || sink.handoffs[0].ConversationID != "conv-1" {
		t.Errorf("unexpected handoff: %+v", sink.handoffs[0])
	}
}

func TestRunToleratesUnknownScenario(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	id := seedFlow(t, st, "conv-1", "deleted-scenario", now.Add(-48*time.Hour))

	sink := &recordingSink{}
	sweeper := NewSweeper(st, &stubScenarios{scenarios: map[string]*models.Scenario{}}, sink)

	swept, err := sweeper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("orphaned flow should still be swept, got %d", swept)
	}
	flow, err := st.GetFlow(id)
	if err != nil {
		t.Fatalf("GetFlow failed: %v", err)
	}
	if flow.Status != models.FlowStatusAbandoned {
		t.Errorf("expected abandoned, got %s", flow.Status)
	}
	if len(sink.handoffs) != 0 {
		t.Errorf("no scenario means no escalation policy: %+v", sink.handoffs)
	}
}

func TestWithMaxIdle(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	seedFlow(t, st, "conv-1", "returns", now.Add(-2*time.Hour))

	scenarios := &stubScenarios{scenarios: map[string]*models.Scenario{
		"returns": {ID: "returns"},
	}}
	sweeper := NewSweeper(st, scenarios, &recordingSink{}, WithMaxIdle(time.Hour))

	swept, err := sweeper.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("flow idle beyond the custom threshold should be swept, got %d", swept)
	}
}

func TestCronRunnerSchedule(t *testing.T) {
	sweeper := NewSweeper(store.NewInMemoryStore(), &stubScenarios{}, &recordingSink{})
	runner := NewCronRunner(sweeper)
	defer runner.Stop()

	if err := runner.Schedule("*/5 * * * *"); err != nil {
		t.Errorf("expected valid expression to schedule, got %v", err)
	}
	if err := runner.Schedule("not a cron expr"); err == nil {
		t.Error("expected invalid expression to be rejected")
	}
}

func TestRunPropagatesStoreErrors(t *testing.T) {
	sweeper := NewSweeper(failingStore{}, &stubScenarios{}, &recordingSink{})
	if _, err := sweeper.Run(context.Background(), time.Now()); err == nil {
		t.Error("expected a store error to propagate")
	}
}

type failingStore struct{ store.Store }

func (failingStore) ListStaleFlows(before time.Time) ([]models.ConversationFlow, error) {
	return nil, errors.New("connection reset")
}
