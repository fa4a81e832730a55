package llm

import "testing"

func TestNewUnsupportedProvider(t *testing.T) {
	if _, err := New("nope", "key", "", "", nil); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewOpenAIAcceptsEmptyBaseURL(t *testing.T) {
	p, err := New("openai", "key", "", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
