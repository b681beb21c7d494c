// Package store provides the in-memory flow store.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/replyflow/replyflow/internal/models"
)

// InMemoryStore keeps flows and usage counters in process memory. Used by
// tests and dev mode; the data does not survive a restart.
type InMemoryStore struct {
	mu    sync.RWMutex
	flows map[string]models.ConversationFlow
	usage map[string]int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows: make(map[string]models.ConversationFlow),
		usage: make(map[string]int),
	}
}

// SaveFlow inserts or updates a flow. Saving a second active flow for the
// same conversation is rejected, mirroring the SQL backends' partial unique
// index.
func (s *InMemoryStore) SaveFlow(flow models.ConversationFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flow.Status == models.FlowStatusActive {
		for _, existing := range s.flows {
			if existing.ConversationID == flow.ConversationID &&
				existing.Status == models.FlowStatusActive &&
				existing.ID != flow.ID {
				return fmt.Errorf("conversation %s already has an active flow %s", flow.ConversationID, existing.ID)
			}
		}
	}
	s.flows[flow.ID] = cloneFlow(flow)
	return nil
}

// GetActiveFlow returns the active flow for a conversation.
func (s *InMemoryStore) GetActiveFlow(conversationID string) (*models.ConversationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.flows {
		if f.ConversationID == conversationID && f.Status == models.FlowStatusActive {
			out := cloneFlow(f)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrFlowNotFound)
}

// GetFlow returns a flow by id regardless of status.
func (s *InMemoryStore) GetFlow(id string) (*models.ConversationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", id, models.ErrFlowNotFound)
	}
	out := cloneFlow(f)
	return &out, nil
}

// ListStaleFlows returns active flows whose last activity predates before.
func (s *InMemoryStore) ListStaleFlows(before time.Time) ([]models.ConversationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationFlow
	for _, f := range s.flows {
		if f.Status == models.FlowStatusActive && f.LastActivityAt.Before(before) {
			out = append(out, cloneFlow(f))
		}
	}
	return out, nil
}

// RecordUsage counts one scenario start in the UTC calendar-day bucket.
func (s *InMemoryStore) RecordUsage(scenarioID, customerID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey(scenarioID, customerID, when)]++
	return nil
}

// CountUsageToday returns the usage count for now's UTC calendar day.
func (s *InMemoryStore) CountUsageToday(scenarioID, customerID string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[usageKey(scenarioID, customerID, now)], nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func usageKey(scenarioID, customerID string, when time.Time) string {
	return scenarioID + "|" + customerID + "|" + usageDay(when)
}

// cloneFlow copies the flow so callers can't mutate stored records through
// shared maps and slices.
func cloneFlow(f models.ConversationFlow) models.ConversationFlow {
	out := f
	if f.Context != nil {
		out.Context = make(map[string]any, len(f.Context))
		for k, v := range f.Context {
			out.Context[k] = v
		}
	}
	if f.History != nil {
		out.History = append([]models.HistoryEntry(nil), f.History...)
	}
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
