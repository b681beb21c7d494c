package classify

import (
	"context"
	"testing"
)

func TestKeywordClassifierIntents(t *testing.T) {
	c := NewKeywordClassifier()
	cases := []struct {
		text      string
		intent    string
		sentiment string
	}{
		{"I want to return my shoes", "return_request", ""},
		{"where is my order?", "order_status", ""},
		{"do you have this in blue", "product_search", ""},
		{"hello!", "greeting", ""},
		{"this is unacceptable, the item arrived broken", "", "negative"},
		{"thanks, that was great", "", "positive"},
		{"qwertyuiop", "", ""},
	}
	for _, tc := range cases {
		got, err := c.Classify(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("Classify(%q) failed: %v", tc.text, err)
		}
		if got.Intent != tc.intent {
			t.Errorf("Classify(%q) intent = %q, want %q", tc.text, got.Intent, tc.intent)
		}
		if got.Sentiment != tc.sentiment {
			t.Errorf("Classify(%q) sentiment = %q, want %q", tc.text, got.Sentiment, tc.sentiment)
		}
	}
}

func TestKeywordClassifierFirstRuleWins(t *testing.T) {
	c := NewKeywordClassifier()
	// "return my order" matches both return_request and order_status; the
	// rule order decides, so the label is stable across runs.
	got, err := c.Classify(context.Background(), "I want to return my order")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.Intent != "return_request" {
		t.Errorf("expected the first matching rule to win, got %q", got.Intent)
	}
}

func TestNewOpenAIClassifierRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClassifier(); err == nil {
		t.Error("expected missing API key to be rejected")
	}
	if _, err := NewOpenAIClassifier(WithAPIKey("sk-test")); err != nil {
		t.Errorf("expected configured classifier to build, got %v", err)
	}
}
