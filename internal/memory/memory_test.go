package memory

import (
	"testing"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
)

func TestLoadMissingRecordReturnsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	rec, err := store.Load("device1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Summary != "" {
		t.Fatalf("expected empty summary, got %q", rec.Summary)
	}
}

func TestSaveWithoutSummarizerKeepsRawTurns(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	turns := []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	if err := store.Save(nil, "device1", turns); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := store.Load("device1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rec.RawTurns) != 2 {
		t.Fatalf("expected 2 raw turns, got %d", len(rec.RawTurns))
	}
}
