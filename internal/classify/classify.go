// Package classify provides intent/sentiment classification for inbound
// messages.
//
// The flow engine never computes labels itself; it consumes them through the
// Provider boundary. The keyword classifier works offline; the OpenAI
// implementation lives in openai.go.
package classify

import (
	"context"
	"strings"

	"github.com/replyflow/replyflow/internal/models"
)

// Provider classifies a message into an intent and a sentiment label. An
// implementation may return empty labels when it cannot tell.
type Provider interface {
	Classify(ctx context.Context, text string) (models.Classification, error)
}

// IntentRule maps an intent label to its trigger keywords. Rules are checked
// in order; the first hit wins, so put the more specific intents first.
type IntentRule struct {
	Label    string
	Keywords []string
}

// KeywordClassifier labels messages from keyword lists. Deterministic and
// dependency-free; the dev-mode and test default.
type KeywordClassifier struct {
	Intents []IntentRule
}

// NewKeywordClassifier creates a classifier with a starter intent list for
// the commerce domain.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Intents: []IntentRule{
			{Label: "return_request", Keywords: []string{"return", "refund", "exchange"}},
			{Label: "order_status", Keywords: []string{"order", "shipping", "delivery", "track"}},
			{Label: "product_search", Keywords: []string{"looking for", "do you have", "in stock"}},
			{Label: "greeting", Keywords: []string{"hello", "hi ", "hey"}},
		},
	}
}

var negativeWords = []string{"angry", "terrible", "awful", "broken", "worst", "never", "unacceptable", "disappointed"}
var positiveWords = []string{"thanks", "thank you", "great", "love", "awesome", "perfect"}

// Classify labels the text. Unknown content yields empty labels, not an
// error.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (models.Classification, error) {
	lower := strings.ToLower(text)
	var out models.Classification
	for _, rule := range c.Intents {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				out.Intent = rule.Label
				break
			}
		}
		if out.Intent != "" {
			break
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			out.Sentiment = "negative"
			break
		}
	}
	if out.Sentiment == "" {
		for _, w := range positiveWords {
			if strings.Contains(lower, w) {
				out.Sentiment = "positive"
				break
			}
		}
	}
	return out, nil
}
