// Package messaging provides the outbound message boundary.
//
// The engine returns outbound messages to its caller; when a Service is
// configured it also pushes them to the conversation's channel. Twilio
// WhatsApp is the production channel, Recorder backs tests and dev mode.
package messaging

import (
	"context"
	"sync"
)

// Service delivers one message to a conversation.
type Service interface {
	SendMessage(ctx context.Context, conversationID, body string) error
}

// Recorder is a Service that keeps sent messages in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []SentMessage
}

// SentMessage is one message captured by a Recorder.
type SentMessage struct {
	ConversationID string
	Body           string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendMessage records the message.
func (r *Recorder) SendMessage(ctx context.Context, conversationID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, SentMessage{ConversationID: conversationID, Body: body})
	return nil
}

// Sent returns a copy of the captured messages.
func (r *Recorder) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}
