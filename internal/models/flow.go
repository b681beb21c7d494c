// Package models defines the conversation flow record for ReplyFlow.
package models

import "time"

// FlowStatus represents the lifecycle state of a conversation flow.
type FlowStatus string

const (
	// FlowStatusActive means the flow is running or suspended awaiting input.
	FlowStatusActive FlowStatus = "active"
	// FlowStatusCompleted means sequential advance ran past the last step.
	FlowStatusCompleted FlowStatus = "completed"
	// FlowStatusEscalated means the flow was handed off to a human queue.
	FlowStatusEscalated FlowStatus = "escalated"
	// FlowStatusAbandoned means the flow was cancelled, failed, or timed out.
	FlowStatusAbandoned FlowStatus = "abandoned"
)

// HistoryEntry records one visited step of a flow.
type HistoryEntry struct {
	StepID    string    `json:"stepId"`
	Timestamp time.Time `json:"timestamp"`
	UserInput string    `json:"userInput,omitempty"`
	Completed bool      `json:"completed,omitempty"`
}

// ConversationFlow is the live, mutable execution record of a scenario for one
// conversation. At most one flow per conversation may be active at a time;
// the flow store enforces this invariant.
type ConversationFlow struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	CustomerID     string         `json:"customerId"`
	CompanyID      string         `json:"companyId"`
	ScenarioID     string         `json:"scenarioId"`
	CurrentStepID  string         `json:"currentStepId"`
	Context        map[string]any `json:"context"`
	History        []HistoryEntry `json:"history"`
	Status         FlowStatus     `json:"status"`
	StartedAt      time.Time      `json:"startedAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// AppendHistory records a visited step and bumps the activity timestamp.
func (f *ConversationFlow) AppendHistory(e HistoryEntry) {
	f.History = append(f.History, e)
	f.LastActivityAt = e.Timestamp
}

// SetContext writes a key into the flow context, creating the map if needed.
// Later writes to the same key overwrite earlier ones.
func (f *ConversationFlow) SetContext(key string, value any) {
	if f.Context == nil {
		f.Context = make(map[string]any)
	}
	f.Context[key] = value
}

// MergeContext merges an action result into the flow context. Later keys
// overwrite earlier ones.
func (f *ConversationFlow) MergeContext(values map[string]any) {
	for k, v := range values {
		f.SetContext(k, v)
	}
}

// Finish moves the flow to a terminal status and stamps the completion time.
func (f *ConversationFlow) Finish(status FlowStatus, now time.Time) {
	f.Status = status
	f.LastActivityAt = now
	f.CompletedAt = &now
}
