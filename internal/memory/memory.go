// Package memory persists a rolling per-device conversation summary to
// disk as YAML, guarded by an advisory per-path lock so concurrent
// sessions for the same device never interleave a write.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

// Summarizer produces a short running summary from the turns of a
// conversation. NewLLMSummarizer builds one backed by an LLM provider; a
// Store built with a nil Summarizer leaves the previous summary unchanged.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, turns []model.Turn) (string, error)
}

// llmSummarizer asks the configured LLM provider to fold new turns into
// the existing summary.
type llmSummarizer struct {
	provider llm.Provider
}

func (s *llmSummarizer) Summarize(ctx context.Context, previous string, turns []model.Turn) (string, error) {
	prompt := buildSummaryPrompt(previous, turns)
	deltas, err := s.provider.StreamChat(ctx, prompt, llm.QueryOptions{})
	if err != nil {
		return "", err
	}
	var out []rune
	for d := range deltas {
		if d.Token != "" {
			out = append(out, []rune(d.Token)...)
		}
		if d.Done {
			break
		}
	}
	text := string(out)
	if text == "" {
		// summarization produced nothing usable: fall back to the raw
		// turns so the conversation isn't silently forgotten.
		return previous + "\n" + rawTurnsText(turns), nil
	}
	return text, nil
}

func buildSummaryPrompt(previous string, turns []model.Turn) string {
	prompt := "Summarize this conversation concisely for future recall.\n"
	if previous != "" {
		prompt += "Existing summary: " + previous + "\n"
	}
	prompt += "New turns:\n" + rawTurnsText(turns)
	return prompt
}

func rawTurnsText(turns []model.Turn) string {
	var out string
	for _, t := range turns {
		if t.Role == model.RoleSystem || t.Content == "" {
			continue
		}
		out += fmt.Sprintf("%s: %s\n", t.Role, t.Content)
	}
	return out
}

// NewLLMSummarizer builds a Summarizer backed by an LLM provider.
func NewLLMSummarizer(provider llm.Provider) Summarizer {
	return &llmSummarizer{provider: provider}
}

// Store reads and writes per-device memory records under one directory.
type Store struct {
	dir        string
	summarizer Summarizer
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore builds a store rooted at dir, creating it if necessary.
func NewStore(dir string, summarizer Summarizer, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{dir: dir, summarizer: summarizer, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(deviceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}
	return l
}

func (s *Store) path(deviceID string) string {
	return filepath.Join(s.dir, deviceID+".yaml")
}

// Load reads the persisted record for a device, returning an empty record
// if none exists yet.
func (s *Store) Load(deviceID string) (model.MemoryRecord, error) {
	l := s.lockFor(deviceID)
	l.Lock()
	defer l.Unlock()

	raw, err := os.ReadFile(s.path(deviceID))
	if os.IsNotExist(err) {
		return model.MemoryRecord{DeviceID: deviceID}, nil
	}
	if err != nil {
		return model.MemoryRecord{}, fmt.Errorf("read memory for %s: %w", deviceID, err)
	}
	var rec model.MemoryRecord
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return model.MemoryRecord{}, fmt.Errorf("parse memory for %s: %w", deviceID, err)
	}
	return rec, nil
}

// Save folds the session's turns into the device's running summary and
// persists the result. If summarization fails, the raw turns are kept so
// nothing is lost.
func (s *Store) Save(ctx context.Context, deviceID string, turns []model.Turn) error {
	l := s.lockFor(deviceID)
	l.Lock()
	defer l.Unlock()

	existing, err := s.loadLocked(deviceID)
	if err != nil {
		return err
	}

	summary := existing.Summary
	if s.summarizer != nil {
		if sum, err := s.summarizer.Summarize(ctx, existing.Summary, turns); err != nil {
			s.logger.Warn("memory summarization failed, keeping raw turns", zap.Error(err))
		} else {
			summary = sum
		}
	}

	rec := model.MemoryRecord{
		DeviceID: deviceID,
		Summary:  summary,
		RawTurns: append(existing.RawTurns, turns...),
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal memory for %s: %w", deviceID, err)
	}
	if err := os.WriteFile(s.path(deviceID), data, 0o644); err != nil {
		return fmt.Errorf("write memory for %s: %w", deviceID, err)
	}
	return nil
}

func (s *Store) loadLocked(deviceID string) (model.MemoryRecord, error) {
	raw, err := os.ReadFile(s.path(deviceID))
	if os.IsNotExist(err) {
		return model.MemoryRecord{DeviceID: deviceID}, nil
	}
	if err != nil {
		return model.MemoryRecord{}, err
	}
	var rec model.MemoryRecord
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return model.MemoryRecord{}, err
	}
	return rec, nil
}
