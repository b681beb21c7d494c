package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/replyflow/replyflow/internal/models"
)

type stubFacts struct {
	hasHistory bool
	usage      map[string]int
	err        error
}

func (f *stubFacts) HasOrderHistory(ctx context.Context, customerID string) (bool, error) {
	return f.hasHistory, f.err
}

func (f *stubFacts) UsageCountToday(ctx context.Context, scenarioID, customerID string) (int, error) {
	return f.usage[scenarioID], f.err
}

// sliceSource returns scenarios as given; ordering tests feed it pre-sorted
// and reversed lists to prove the matcher honors source order.
type sliceSource []*models.Scenario

func (s sliceSource) ListActive(companyID string) []*models.Scenario { return s }

func scenarioWithTrigger(id string, tr models.Trigger) *models.Scenario {
	return &models.Scenario{
		ID:        id,
		Name:      id,
		CompanyID: "acme",
		Priority:  models.PriorityMedium,
		Active:    true,
		Trigger:   tr,
		Steps:     []models.Step{{ID: "s1", Type: models.StepTypeMessage, Content: "hi"}},
	}
}

func TestMatchesMessageKeywords(t *testing.T) {
	tr := models.Trigger{Keywords: []string{"refund", "return"}}
	cases := []struct {
		text string
		want bool
	}{
		{"I want a REFUND now", true},
		{"can I return this?", true},
		{"where is my order", false},
		{"", false},
	}
	for _, c := range cases {
		if got := MatchesMessage(tr, Event{Text: c.text}); got != c.want {
			t.Errorf("MatchesMessage(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestMatchesMessageAbsentFieldsDontConstrain(t *testing.T) {
	if !MatchesMessage(models.Trigger{}, Event{Text: "anything", Intent: "x", Sentiment: "y"}) {
		t.Error("empty trigger should match any message")
	}
}

func TestMatchesMessageIntentAndSentiment(t *testing.T) {
	tr := models.Trigger{Intent: "order_status", Sentiment: "negative"}
	if !MatchesMessage(tr, Event{Intent: "order_status", Sentiment: "negative"}) {
		t.Error("exact intent+sentiment should match")
	}
	if MatchesMessage(tr, Event{Intent: "order_status", Sentiment: "positive"}) {
		t.Error("wrong sentiment should not match")
	}
	if MatchesMessage(tr, Event{Intent: "greeting", Sentiment: "negative"}) {
		t.Error("wrong intent should not match")
	}
}

func TestMatchSelectsFirstInSourceOrder(t *testing.T) {
	urgent := scenarioWithTrigger("urgent", models.Trigger{Keywords: []string{"order"}})
	urgent.Priority = models.PriorityUrgent
	low := scenarioWithTrigger("low", models.Trigger{Keywords: []string{"order"}})
	low.Priority = models.PriorityLow

	// The registry hands scenarios over already priority-sorted; the matcher
	// must pick the first satisfying one.
	m := NewMatcher(sliceSource{urgent, low}, &stubFacts{}, WorkingHours{})
	sc, err := m.Match(context.Background(), Event{Text: "where is my order", CompanyID: "acme"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if sc.ID != "urgent" {
		t.Errorf("expected urgent scenario, got %s", sc.ID)
	}
}

func TestMatchNoMatch(t *testing.T) {
	m := NewMatcher(sliceSource{scenarioWithTrigger("a", models.Trigger{Keywords: []string{"refund"}})}, &stubFacts{}, WorkingHours{})
	_, err := m.Match(context.Background(), Event{Text: "hello there"})
	if !errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestMatchWorkingHoursOnly(t *testing.T) {
	sc := scenarioWithTrigger("office", models.Trigger{})
	sc.Conditions.WorkingHoursOnly = true
	hours := WorkingHours{StartHour: 9, EndHour: 17}
	m := NewMatcher(sliceSource{sc}, &stubFacts{}, hours)

	m.WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) })
	if _, err := m.Match(context.Background(), Event{Text: "hi"}); err != nil {
		t.Fatalf("expected match inside working hours, got %v", err)
	}

	m.WithClock(func() time.Time { return time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC) })
	if _, err := m.Match(context.Background(), Event{Text: "hi"}); !errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch outside working hours, got %v", err)
	}
}

func TestMatchRequiresCustomerHistory(t *testing.T) {
	sc := scenarioWithTrigger("loyal", models.Trigger{})
	sc.Conditions.RequiresCustomerHistory = true

	m := NewMatcher(sliceSource{sc}, &stubFacts{hasHistory: false}, WorkingHours{})
	if _, err := m.Match(context.Background(), Event{Text: "hi", CustomerID: "c1"}); !errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch without history, got %v", err)
	}

	m = NewMatcher(sliceSource{sc}, &stubFacts{hasHistory: true}, WorkingHours{})
	if _, err := m.Match(context.Background(), Event{Text: "hi", CustomerID: "c1"}); err != nil {
		t.Fatalf("expected match with history, got %v", err)
	}
}

func TestMatchDailyUseCap(t *testing.T) {
	sc := scenarioWithTrigger("capped", models.Trigger{})
	sc.Conditions.MaxDailyUsesPerCustomer = 2

	under := &stubFacts{usage: map[string]int{"capped": 1}}
	m := NewMatcher(sliceSource{sc}, under, WorkingHours{})
	if _, err := m.Match(context.Background(), Event{Text: "hi"}); err != nil {
		t.Fatalf("expected match under cap, got %v", err)
	}

	at := &stubFacts{usage: map[string]int{"capped": 2}}
	m = NewMatcher(sliceSource{sc}, at, WorkingHours{})
	if _, err := m.Match(context.Background(), Event{Text: "hi"}); !errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch at cap, got %v", err)
	}
}

func TestMatchPropagatesFactErrors(t *testing.T) {
	sc := scenarioWithTrigger("loyal", models.Trigger{})
	sc.Conditions.RequiresCustomerHistory = true
	m := NewMatcher(sliceSource{sc}, &stubFacts{err: errors.New("db down")}, WorkingHours{})
	if _, err := m.Match(context.Background(), Event{Text: "hi"}); err == nil || errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected fact error to propagate, got %v", err)
	}
}

func TestWorkingHoursZeroValueAlwaysOpen(t *testing.T) {
	var w WorkingHours
	if !w.Contains(time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)) {
		t.Error("zero-value working hours should always be open")
	}
}
