package llmdriver

import (
	"context"
	"testing"

	"github.com/code-100-precent/lingecho-voice/internal/voice/segmenter"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

type fakeProvider struct {
	deltas []llm.StreamDelta
}

func (f *fakeProvider) StreamChat(ctx context.Context, userText string, opts llm.QueryOptions) (<-chan llm.StreamDelta, error) {
	out := make(chan llm.StreamDelta, len(f.deltas))
	for _, d := range f.deltas {
		out <- d
	}
	close(out)
	return out, nil
}
func (f *fakeProvider) RegisterTool(llm.ToolDefinition, func(map[string]interface{}) (llm.Action, error)) {}
func (f *fakeProvider) ListTools() []llm.ToolDefinition                                                    { return nil }
func (f *fakeProvider) InvokeTool(string, map[string]interface{}) (llm.Action, error) {
	return llm.Action{}, nil
}
func (f *fakeProvider) Interrupt()                   {}
func (f *fakeProvider) LastUsage() (llm.Usage, bool) { return llm.Usage{}, false }

func TestGenerateAccumulatesFullText(t *testing.T) {
	p := &fakeProvider{deltas: []llm.StreamDelta{
		{Token: "你好"}, {Token: "，世界"}, {Done: true},
	}}
	ch := make(chan segmenter.Segment, 4)
	seg := segmenter.New(ch, nil)
	d := New(p, nil)

	result, err := d.Generate(context.Background(), "hi", llm.QueryOptions{}, seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeText {
		t.Fatalf("expected OutcomeText, got %v", result.Outcome)
	}
	if result.Text != "你好，世界" {
		t.Fatalf("expected accumulated text, got %q", result.Text)
	}
}

func TestGenerateDetectsStructuredToolCall(t *testing.T) {
	p := &fakeProvider{deltas: []llm.StreamDelta{
		{ToolCall: &llm.ToolCall{Name: "play_music", Arguments: `{"song":"稻香"}`}, Done: true},
	}}
	ch := make(chan segmenter.Segment, 4)
	seg := segmenter.New(ch, nil)
	d := New(p, nil)

	result, err := d.Generate(context.Background(), "hi", llm.QueryOptions{}, seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeToolCall {
		t.Fatalf("expected OutcomeToolCall, got %v", result.Outcome)
	}
	if result.ToolCall == nil || result.ToolCall.Name != "play_music" {
		t.Fatalf("expected play_music tool call, got %+v", result.ToolCall)
	}
}

func TestGenerateDetectsMarkdownToolCall(t *testing.T) {
	p := &fakeProvider{deltas: []llm.StreamDelta{
		{Token: "```json\n"},
		{Token: `{"name":"play_music","arguments":{"song":"稻香"}}`},
		{Token: "\n```"},
		{Done: true},
	}}
	ch := make(chan segmenter.Segment, 4)
	seg := segmenter.New(ch, nil)
	d := New(p, nil)

	result, err := d.Generate(context.Background(), "hi", llm.QueryOptions{}, seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeToolCall {
		t.Fatalf("expected OutcomeToolCall, got %v", result.Outcome)
	}
	if result.ToolCall == nil || result.ToolCall.Name != "play_music" {
		t.Fatalf("expected play_music tool call, got %+v", result.ToolCall)
	}
}

func TestGenerateDetectsToolCallTag(t *testing.T) {
	p := &fakeProvider{deltas: []llm.StreamDelta{
		{Token: `<tool_call>{"name":"goodbye","arguments":{}}</tool_call>`},
		{Done: true},
	}}
	ch := make(chan segmenter.Segment, 4)
	seg := segmenter.New(ch, nil)
	d := New(p, nil)

	result, err := d.Generate(context.Background(), "hi", llm.QueryOptions{}, seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeToolCall || result.ToolCall.Name != "goodbye" {
		t.Fatalf("expected goodbye tool call, got %+v", result)
	}
}
