// Package escalation provides human handoff delivery for ReplyFlow.
//
// The Sink interface is the engine's boundary to the human queue; the webhook
// implementation posts handoffs to the configured agent-desk endpoint.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/replyflow/replyflow/internal/models"
)

// Sink receives human handoff requests emitted by flow execution.
type Sink interface {
	Handoff(ctx context.Context, req models.HandoffRequest) error
}

// LogSink logs handoffs without delivering them anywhere. The default when no
// webhook is configured.
type LogSink struct{}

// Handoff logs the request.
func (LogSink) Handoff(ctx context.Context, req models.HandoffRequest) error {
	slog.Info("Escalation handoff", "conversationID", req.ConversationID, "department", req.Department, "priority", req.Priority, "reason", req.Reason)
	return nil
}

// WebhookSink delivers handoffs to an HTTP endpoint as JSON.
type WebhookSink struct {
	client *resty.Client
}

// NewWebhookSink creates a webhook sink posting to url. Transient failures
// are retried twice with backoff.
func NewWebhookSink(url string) *WebhookSink {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookSink{client: client}
}

// Handoff posts the request to the configured endpoint.
func (s *WebhookSink) Handoff(ctx context.Context, req models.HandoffRequest) error {
	slog.Debug("WebhookSink Handoff", "conversationID", req.ConversationID, "department", req.Department)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("")
	if err != nil {
		slog.Error("WebhookSink Handoff request failed", "error", err, "conversationID", req.ConversationID)
		return fmt.Errorf("failed to deliver handoff for %s: %w", req.ConversationID, err)
	}
	if resp.IsError() {
		slog.Error("WebhookSink Handoff rejected", "status", resp.StatusCode(), "conversationID", req.ConversationID)
		return fmt.Errorf("handoff endpoint returned status %d", resp.StatusCode())
	}
	slog.Debug("WebhookSink Handoff delivered", "conversationID", req.ConversationID, "status", resp.StatusCode())
	return nil
}
