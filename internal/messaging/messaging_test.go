package messaging

import (
	"context"
	"testing"
)

func TestRecorderSendMessage(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	if err := rec.SendMessage(ctx, "conv-1", "Hello there"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rec.SendMessage(ctx, "conv-2", "Second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := rec.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].ConversationID != "conv-1" || sent[0].Body != "Hello there" {
		t.Errorf("unexpected first message: %+v", sent[0])
	}
}

func TestRecorderSentReturnsCopy(t *testing.T) {
	rec := NewRecorder()
	if err := rec.SendMessage(context.Background(), "conv-1", "one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := rec.Sent()
	got[0].Body = "mutated"
	if rec.Sent()[0].Body != "one" {
		t.Error("Sent must return a copy")
	}
}

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioSender(); err == nil {
		t.Error("expected missing credentials to be rejected")
	}
	if _, err := NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected missing from number to be rejected")
	}
	if _, err := NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("token"), WithFrom("whatsapp:+15551234567")); err != nil {
		t.Errorf("expected fully configured sender to build, got %v", err)
	}
}
