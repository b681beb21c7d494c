// Package classify provides the OpenAI-backed classification provider.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/replyflow/replyflow/internal/models"
)

const classifySystemPrompt = `You label customer support messages. Reply with a JSON object
{"intent": "...", "sentiment": "..."} where sentiment is one of positive, neutral, negative
and intent is a short snake_case label such as order_status or return_request.
Reply with the JSON object only.`

// Opts holds configuration options for the OpenAI classifier.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the OpenAI classifier.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// OpenAIClassifier labels messages with a chat completion call.
type OpenAIClassifier struct {
	client openai.Client
	model  string
}

// NewOpenAIClassifier creates a classifier, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewOpenAIClassifier(opts ...Option) (*OpenAIClassifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("Creating OpenAI classifier", "model", cfg.Model)
	return &OpenAIClassifier{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Classify labels the text. Failures are returned to the caller, which
// degrades to empty labels rather than blocking the message.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	var out models.Classification

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		slog.Error("OpenAIClassifier Classify request failed", "error", err)
		return out, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("no choices returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		slog.Warn("OpenAIClassifier Classify unparseable response", "error", err, "content", content)
		return models.Classification{}, fmt.Errorf("unparseable classification response: %w", err)
	}
	slog.Debug("OpenAIClassifier Classify succeeded", "intent", out.Intent, "sentiment", out.Sentiment)
	return out, nil
}
