package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio WhatsApp sender.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Option defines a configuration option for the Twilio WhatsApp sender.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending WhatsApp number, "whatsapp:+1234567890" format.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// TwilioSender delivers messages over Twilio's WhatsApp API. The conversation
// id is the customer's phone number on this channel.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender creates a Twilio-backed sender. Options not provided fall
// back to the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER
// environment variables.
func NewTwilioSender(opts ...Option) (*TwilioSender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio sender config loaded",
		"accountSIDSet", cfg.AccountSID != "",
		"authTokenSet", cfg.AuthToken != "",
		"fromSet", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.From}, nil
}

// SendMessage sends one WhatsApp message to the conversation.
func (s *TwilioSender) SendMessage(ctx context.Context, conversationID, body string) error {
	to := conversationID
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioSender SendMessage failed", "conversationID", conversationID, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", conversationID, err)
	}
	slog.Debug("TwilioSender message sent", "conversationID", conversationID)
	return nil
}
