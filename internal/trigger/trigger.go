// Package trigger provides scenario trigger matching for ReplyFlow.
//
// Matching is a pure function of the inbound event, the registry contents, and
// the supplied customer facts; no hidden mutable state is read. The same
// predicate evaluation backs the escalation rule matcher, which shares the
// keyword/intent/sentiment design.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/replyflow/replyflow/internal/models"
)

// Event is the trigger matcher's input, one inbound message plus its labels.
type Event struct {
	Text       string
	Intent     string
	Sentiment  string
	CustomerID string
	CompanyID  string
}

// Facts supplies the conversation-history facts trigger conditions need.
type Facts interface {
	HasOrderHistory(ctx context.Context, customerID string) (bool, error)
	UsageCountToday(ctx context.Context, scenarioID, customerID string) (int, error)
}

// Source lists the scenarios eligible for matching. Implemented by the
// scenario registry, which returns them priority-ordered with insertion-order
// tiebreak.
type Source interface {
	ListActive(companyID string) []*models.Scenario
}

// WorkingHours is the configured window for workingHoursOnly scenarios.
// A zero value means always open.
type WorkingHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Contains reports whether t falls inside the window. StartHour is inclusive,
// EndHour exclusive.
func (w WorkingHours) Contains(t time.Time) bool {
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	return h >= w.StartHour && h < w.EndHour
}

// MatchesMessage evaluates the message-level predicates of a trigger against
// an event: keywords (case-insensitive substring, any-of), intent (exact), and
// sentiment (exact). Absent predicate fields don't constrain. Shared by the
// trigger matcher and the escalation rule matcher.
func MatchesMessage(tr models.Trigger, ev Event) bool {
	if len(tr.Keywords) > 0 {
		text := strings.ToLower(ev.Text)
		found := false
		for _, kw := range tr.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if tr.Intent != "" && tr.Intent != ev.Intent {
		return false
	}
	if tr.Sentiment != "" && tr.Sentiment != ev.Sentiment {
		return false
	}
	return true
}

// Matcher selects at most one scenario for an inbound message.
type Matcher struct {
	source Source
	facts  Facts
	hours  WorkingHours
	now    func() time.Time
}

// NewMatcher creates a trigger matcher. The clock defaults to time.Now and is
// injectable for tests.
func NewMatcher(source Source, facts Facts, hours WorkingHours) *Matcher {
	return &Matcher{source: source, facts: facts, hours: hours, now: time.Now}
}

// WithClock overrides the matcher's clock.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// Match evaluates the company's active scenarios in priority order and returns
// the first whose predicates all hold. Priority weight descending, ties broken
// by registration order: a deliberate choice, since multiple scenarios may
// match the same message and the outcome has to be stable. Returns ErrNoMatch
// when no scenario matches.
func (m *Matcher) Match(ctx context.Context, ev Event) (*models.Scenario, error) {
	slog.Debug("Matcher Match", "companyID", ev.CompanyID, "customerID", ev.CustomerID, "intent", ev.Intent, "sentiment", ev.Sentiment)

	for _, sc := range m.source.ListActive(ev.CompanyID) {
		ok, err := m.matches(ctx, sc, ev)
		if err != nil {
			slog.Error("Matcher Match fact lookup failed", "error", err, "scenarioID", sc.ID)
			return nil, err
		}
		if ok {
			slog.Info("Matcher Match selected scenario", "scenarioID", sc.ID, "priority", sc.Priority, "companyID", ev.CompanyID)
			return sc, nil
		}
	}

	slog.Debug("Matcher Match no scenario matched", "companyID", ev.CompanyID)
	return nil, models.ErrNoMatch
}

// matches evaluates the full conjunction for one scenario: message predicates
// first (cheap), then the fact-backed conditions.
func (m *Matcher) matches(ctx context.Context, sc *models.Scenario, ev Event) (bool, error) {
	if !MatchesMessage(sc.Trigger, ev) {
		return false, nil
	}
	if sc.Conditions.WorkingHoursOnly && !m.hours.Contains(m.now()) {
		return false, nil
	}
	if sc.Conditions.RequiresCustomerHistory {
		has, err := m.facts.HasOrderHistory(ctx, ev.CustomerID)
		if err != nil {
			return false, fmt.Errorf("failed to look up order history for %s: %w", ev.CustomerID, err)
		}
		if !has {
			return false, nil
		}
	}
	if max := sc.Conditions.MaxDailyUsesPerCustomer; max > 0 {
		count, err := m.facts.UsageCountToday(ctx, sc.ID, ev.CustomerID)
		if err != nil {
			return false, fmt.Errorf("failed to look up usage count for %s: %w", ev.CustomerID, err)
		}
		if count >= max {
			return false, nil
		}
	}
	return true, nil
}
