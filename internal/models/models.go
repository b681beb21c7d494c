// Package models defines the core data structures for ReplyFlow.
//
// It includes scenario definitions, conversation flow records, message events,
// and the shared error taxonomy used across modules.
package models

import (
	"errors"
	"fmt"
)

// Priority orders scenarios during trigger matching.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight returns the numeric ordering weight for a priority. Unknown
// priorities weigh zero and sort last.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p Priority) bool {
	return p.Weight() > 0
}

// InboundMessage is an inbound customer message event, the engine's only
// runtime input. Intent and Sentiment are optional; when empty they may be
// filled in by a classification provider before matching.
type InboundMessage struct {
	ConversationID string `json:"conversationId"`
	CustomerID     string `json:"customerId"`
	CompanyID      string `json:"companyId"`
	Text           string `json:"text"`
	Intent         string `json:"intent,omitempty"`
	Sentiment      string `json:"sentiment,omitempty"`
}

// OutboundMessage is one automated response produced by flow execution.
type OutboundMessage struct {
	Content string   `json:"content"`
	Options []string `json:"options,omitempty"`
	DelayMs int      `json:"delayMs,omitempty"`
}

// InboundResult is the outcome of handling one inbound message.
type InboundResult struct {
	OutboundMessages []OutboundMessage `json:"outboundMessages"`
	Escalated        bool              `json:"escalated"`
	FlowID           string            `json:"flowId,omitempty"`
}

// HandoffRequest describes a human escalation emitted by flow execution.
type HandoffRequest struct {
	ConversationID string   `json:"conversationId"`
	Department     string   `json:"department"`
	Priority       Priority `json:"priority"`
	Reason         string   `json:"reason"`
}

// Error variables for better error handling and testability.
var (
	// ErrNoMatch indicates no scenario matched an inbound message. It is a
	// normal outcome of trigger matching, not a failure.
	ErrNoMatch = errors.New("no scenario matched")
	// ErrFlowNotFound indicates no active flow exists for a conversation.
	ErrFlowNotFound = errors.New("active flow not found")
	// ErrScenarioNotFound indicates a scenario id is not registered.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrFlowCycle indicates the executor's step cap tripped, which means the
	// scenario's condition branches form a cycle.
	ErrFlowCycle = errors.New("flow step limit exceeded, condition steps may form a cycle")
	// ErrActionNotSupported indicates an action step names an action no
	// handler is registered for.
	ErrActionNotSupported = errors.New("action not supported")
)

// ScenarioDefinitionError reports invalid scenario authoring. It is raised
// eagerly at registration time, never during execution.
type ScenarioDefinitionError struct {
	ScenarioID string
	Reason     string
}

func (e *ScenarioDefinitionError) Error() string {
	return fmt.Sprintf("invalid scenario %q: %s", e.ScenarioID, e.Reason)
}

// ActionExecutionError wraps a downstream failure from an action handler. It
// is propagated to the orchestrator, never swallowed by the executor.
type ActionExecutionError struct {
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// Classification is the intent/sentiment label pair supplied by the
// classification collaborator.
type Classification struct {
	Intent    string `json:"intent"`
	Sentiment string `json:"sentiment"`
}
