// Package intent classifies a finalized user utterance before it reaches
// the LLM: a handful of fixed shortcuts (exit, play music) are handled
// locally so they don't pay for a model round trip, and an optional
// classifier mode can route everything else through the LLM with an
// intent-only prompt.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

// Kind names which local shortcut, if any, matched an utterance. KindNone
// also covers the classifier's "continue_chat" verdict: in both cases the
// utterance falls through to the normal LLM generation path.
type Kind string

const (
	KindNone  Kind = "none"
	KindExit  Kind = "exit"
	KindMusic Kind = "music"
)

// Result is the outcome of classifying one utterance.
type Result struct {
	Kind     Kind
	SongPath string // set only for KindMusic
	SongName string
}

// musicMatchThreshold is the minimum similarity ratio a candidate title
// must clear to be considered a match for a spoken request.
const musicMatchThreshold = 0.4

// rescanInterval is how often the music directory listing is refreshed.
const rescanInterval = 60 * time.Second

// Classifier holds the fixed exit-command set and the cached music library
// listing, rescanned on a timer rather than on every request.
type Classifier struct {
	exitCommands []string
	musicDir     string
	musicExt     []string
	logger       *zap.Logger

	mu        sync.Mutex
	files     []string          // basenames without extension
	fileNames map[string]string // basename without extension -> file name
	scannedAt time.Time
}

// New builds a classifier. exitCommands and the music directory/extension
// list come directly from configuration.
func New(exitCommands []string, musicDir string, musicExt []string, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		exitCommands: exitCommands,
		musicDir:     musicDir,
		musicExt:     musicExt,
		logger:       logger,
	}
}

// Classify inspects a finalized utterance for a local shortcut. Anything
// that doesn't match falls through as KindNone for the LLM to handle.
func (c *Classifier) Classify(utterance string) Result {
	normalized := normalize(utterance)

	for _, cmd := range c.exitCommands {
		if normalized == normalize(cmd) {
			return Result{Kind: KindExit}
		}
	}

	if song, ok := c.matchMusic(utterance); ok {
		return Result{Kind: KindMusic, SongPath: c.songPath(song), SongName: song}
	}

	return Result{Kind: KindNone}
}

// normalize strips leading/trailing punctuation and whitespace so "退出。"
// and "退出" compare equal, without pulling in a regex dependency for what
// is a small fixed alphabet of terminators.
func normalize(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// matchMusic looks for a "play <song>" style request and fuzzy-matches the
// requested title against the cached library listing.
func (c *Classifier) matchMusic(utterance string) (string, bool) {
	const keyword = "播放音乐"
	idx := strings.Index(utterance, keyword)
	var requested string
	if idx >= 0 {
		requested = strings.TrimSpace(utterance[idx+len(keyword):])
	} else if strings.Contains(utterance, "play") {
		requested = strings.TrimSpace(strings.Replace(utterance, "play", "", 1))
	} else {
		return "", false
	}
	if requested == "" {
		return "", false
	}

	files := c.libraryListing()
	if len(files) == 0 {
		return "", false
	}
	best := ""
	bestScore := 0.0
	for _, f := range files {
		score := similarity(requested, f)
		if score > bestScore {
			bestScore = score
			best = f
		}
	}
	if bestScore >= musicMatchThreshold {
		return best, true
	}
	// No candidate cleared the threshold, but the user clearly asked to
	// play something: pick uniformly at random rather than refusing.
	return files[rand.Intn(len(files))], true
}

// libraryListing returns the cached music filenames, rescanning the
// directory if the cache has aged past rescanInterval.
func (c *Classifier) libraryListing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.scannedAt) < rescanInterval && c.files != nil {
		return c.files
	}

	var names []string
	fileNames := make(map[string]string)
	entries, err := os.ReadDir(c.musicDir)
	if err != nil {
		c.logger.Warn("music directory scan failed", zap.Error(err), zap.String("dir", c.musicDir))
		c.scannedAt = time.Now()
		c.files = names
		c.fileNames = fileNames
		return names
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		for _, want := range c.musicExt {
			if strings.EqualFold(ext, want) {
				names = append(names, strings.TrimSuffix(name, ext))
				fileNames[strings.TrimSuffix(name, ext)] = name
				break
			}
		}
	}
	c.files = names
	c.fileNames = fileNames
	c.scannedAt = time.Now()
	return names
}

// songPath resolves a listed title back to its file in the music
// directory, extension included.
func (c *Classifier) songPath(song string) string {
	c.mu.Lock()
	name, ok := c.fileNames[song]
	c.mu.Unlock()
	if !ok {
		name = song
	}
	return filepath.Join(c.musicDir, name)
}

// similarity computes a Ratcliff/Obershelp-style ratio: twice the length
// of matching characters over the combined length of both strings, via
// longest-common-subsequence length as a cheap stand-in for the matching
// blocks sum used by difflib's SequenceMatcher.
func similarity(a, b string) float64 {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	lcs := lcsLength(ra, rb)
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

// llmIntentVerdict is the JSON shape the classifier prompt asks the model
// to reply with.
type llmIntentVerdict struct {
	Intent string `json:"intent"`
}

// ClassifyWithLLM routes an utterance that didn't match a local shortcut
// through the LLM, asking it to pick one of continue_chat, end_chat, or
// play_music given the last two turns, the new utterance, and the music
// library's filenames. A response that doesn't parse as the expected JSON
// is scanned as raw text for one of the three labels instead of failing
// the turn.
func (c *Classifier) ClassifyWithLLM(ctx context.Context, provider llm.Provider, lastTurns []model.Turn, newText string) (Result, error) {
	prompt := buildIntentPrompt(lastTurns, newText, c.libraryListing())
	deltas, err := provider.StreamChat(ctx, prompt, llm.QueryOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("intent classification: %w", err)
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
	label := parseIntentLabel(string(out))

	switch label {
	case "end_chat":
		return Result{Kind: KindExit}, nil
	case "play_music":
		if song, ok := c.matchMusic(newText); ok {
			return Result{Kind: KindMusic, SongPath: c.songPath(song), SongName: song}, nil
		}
		return Result{Kind: KindNone}, nil
	default:
		return Result{Kind: KindNone}, nil
	}
}

func buildIntentPrompt(lastTurns []model.Turn, newText string, musicFiles []string) string {
	var b strings.Builder
	b.WriteString("Classify the user's new message as exactly one of: continue_chat, end_chat, play_music.\n")
	b.WriteString("Reply with JSON only: {\"intent\": \"<one of the three>\"}.\n")
	if len(musicFiles) > 0 {
		b.WriteString("Known song titles: " + strings.Join(musicFiles, ", ") + "\n")
	}
	if len(lastTurns) > 0 {
		b.WriteString("Recent turns:\n")
		for _, t := range lastTurns {
			if t.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}
	fmt.Fprintf(&b, "New message: %s\n", newText)
	return b.String()
}

// parseIntentLabel decodes the model's JSON verdict, falling back to a
// plain substring scan when the reply isn't valid JSON (e.g. the model
// wrapped it in prose or a markdown fence anyway).
func parseIntentLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var verdict llmIntentVerdict
	if err := json.Unmarshal([]byte(trimmed), &verdict); err == nil && verdict.Intent != "" {
		return verdict.Intent
	}
	for _, label := range []string{"end_chat", "play_music", "continue_chat"} {
		if strings.Contains(trimmed, label) {
			return label
		}
	}
	return "continue_chat"
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
