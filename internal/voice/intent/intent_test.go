package intent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

func TestClassifyExitCommand(t *testing.T) {
	c := New([]string{"退出", "再见"}, t.TempDir(), []string{".mp3"}, nil)
	r := c.Classify("退出。")
	if r.Kind != KindExit {
		t.Fatalf("expected exit, got %v", r.Kind)
	}
}

func TestClassifyPlayMusicFuzzyMatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"晴天.mp3", "告白气球.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := New(nil, dir, []string{".mp3"}, nil)
	r := c.Classify("播放音乐晴天")
	if r.Kind != KindMusic {
		t.Fatalf("expected music intent, got %v", r.Kind)
	}
	if r.SongName != "晴天" {
		t.Fatalf("expected best match 晴天, got %q", r.SongName)
	}
}

func TestClassifyNoMatchFallsThrough(t *testing.T) {
	dir := t.TempDir()
	c := New([]string{"退出"}, dir, []string{".mp3"}, nil)
	r := c.Classify("今天天气怎么样")
	if r.Kind != KindNone {
		t.Fatalf("expected none, got %v", r.Kind)
	}
}

// TestClassifyPlayMusicExactThresholdMatches covers the §4.5 boundary: a
// ratio exactly at 0.4 must match, not just one strictly above it.
func TestClassifyPlayMusicExactThresholdMatches(t *testing.T) {
	dir := t.TempDir()
	// "ab" vs "abcdefgh": lcs=2, ratio = 2*2/(2+8) = 0.4 exactly.
	for _, name := range []string{"abcdefgh.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := New(nil, dir, []string{".mp3"}, nil)
	r := c.Classify("播放音乐ab")
	if r.Kind != KindMusic {
		t.Fatalf("expected a ratio of exactly 0.4 to match, got %v", r.Kind)
	}
}

// TestClassifyPlayMusicFallsBackToRandomChoice covers §4.5: when no
// candidate clears the threshold, a song is still picked at random rather
// than refusing the request outright.
func TestClassifyPlayMusicFallsBackToRandomChoice(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"完全不相关.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := New(nil, dir, []string{".mp3"}, nil)
	r := c.Classify("播放音乐zzzzzzzzzzzzzzzzzzzz")
	if r.Kind != KindMusic {
		t.Fatalf("expected random fallback to still produce a music intent, got %v", r.Kind)
	}
	if r.SongName != "完全不相关" {
		t.Fatalf("expected the only library entry to be chosen, got %q", r.SongName)
	}
}

type fakeIntentProvider struct {
	reply string
}

func (f *fakeIntentProvider) StreamChat(ctx context.Context, userText string, opts llm.QueryOptions) (<-chan llm.StreamDelta, error) {
	out := make(chan llm.StreamDelta, 2)
	out <- llm.StreamDelta{Token: f.reply}
	out <- llm.StreamDelta{Done: true}
	close(out)
	return out, nil
}
func (f *fakeIntentProvider) RegisterTool(llm.ToolDefinition, func(map[string]interface{}) (llm.Action, error)) {
}
func (f *fakeIntentProvider) ListTools() []llm.ToolDefinition { return nil }
func (f *fakeIntentProvider) InvokeTool(string, map[string]interface{}) (llm.Action, error) {
	return llm.Action{}, nil
}
func (f *fakeIntentProvider) Interrupt()                   {}
func (f *fakeIntentProvider) LastUsage() (llm.Usage, bool) { return llm.Usage{}, false }

func TestClassifyWithLLMParsesJSONVerdict(t *testing.T) {
	c := New(nil, t.TempDir(), []string{".mp3"}, nil)
	p := &fakeIntentProvider{reply: `{"intent":"end_chat"}`}
	r, err := c.ClassifyWithLLM(context.Background(), p, nil, "我要走了")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindExit {
		t.Fatalf("expected exit, got %v", r.Kind)
	}
}

func TestClassifyWithLLMFallsBackToRawTextOnParseFailure(t *testing.T) {
	c := New(nil, t.TempDir(), []string{".mp3"}, nil)
	p := &fakeIntentProvider{reply: "sure thing, continue_chat works for me"}
	r, err := c.ClassifyWithLLM(context.Background(), p, nil, "继续聊")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindNone {
		t.Fatalf("expected none (continue_chat), got %v", r.Kind)
	}
}
