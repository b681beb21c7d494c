// Package escalation provides the escalation rule matcher.
//
// Rules decide whether a message that no scenario claimed should be handed to
// a human anyway. They share the trigger package's predicate evaluation and
// ordering, but only select a destination; they never drive multi-step
// execution.
package escalation

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/replyflow/replyflow/internal/models"
	"github.com/replyflow/replyflow/internal/trigger"
)

// Rule is one escalation rule: message predicates plus a destination.
type Rule struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	CompanyID  string         `json:"companyId" yaml:"companyId"`
	Priority   models.Priority `json:"priority" yaml:"priority"`
	Active     bool           `json:"active" yaml:"active"`
	Trigger    models.Trigger `json:"trigger" yaml:"trigger"`
	Department string         `json:"department" yaml:"department"`
	// Reply is the optional customer-visible acknowledgment sent on match.
	Reply string `json:"reply,omitempty" yaml:"reply,omitempty"`
}

// RuleMatcher selects at most one escalation rule for a message, using the
// same priority-descending, insertion-order-tiebreak evaluation as the
// trigger matcher.
type RuleMatcher struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRuleMatcher creates an empty rule matcher.
func NewRuleMatcher() *RuleMatcher {
	return &RuleMatcher{}
}

// Add appends a rule. Insertion order is the tiebreak for equal priorities.
func (m *RuleMatcher) Add(rule Rule) {
	slog.Debug("RuleMatcher Add", "ruleID", rule.ID, "companyID", rule.CompanyID, "priority", rule.Priority)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
}

// Match returns the first active rule whose predicates hold, or nil.
func (m *RuleMatcher) Match(ev trigger.Event) *Rule {
	m.mu.RLock()
	candidates := make([]Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Active && r.CompanyID == ev.CompanyID {
			candidates = append(candidates, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority.Weight() > candidates[j].Priority.Weight()
	})
	for i := range candidates {
		if trigger.MatchesMessage(candidates[i].Trigger, ev) {
			slog.Info("RuleMatcher matched escalation rule", "ruleID", candidates[i].ID, "companyID", ev.CompanyID)
			return &candidates[i]
		}
	}
	return nil
}
