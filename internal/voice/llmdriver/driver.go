// Package llmdriver drives one turn of streaming generation: it forwards
// spoken tokens to a segmenter as they arrive, and detects a tool call —
// whether carried as a structured delta or embedded markdown/<tool_call>
// text — so the caller can dispatch it (§4.6/§4.8) instead of speaking it.
package llmdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voice/segmenter"
	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

// Outcome names how a Generate call ended.
type Outcome int

const (
	// OutcomeText is a finished plain-text reply, already segmented and
	// spoken.
	OutcomeText Outcome = iota
	// OutcomeToolCall is a detected tool invocation request; nothing was
	// spoken for it, and the caller must dispatch it via §4.8.
	OutcomeToolCall
)

// Result is what one Generate call produced.
type Result struct {
	Outcome  Outcome
	Text     string // full spoken text, set when Outcome == OutcomeText
	ToolCall *llm.ToolCall
}

// Driver wraps a provider, feeding its streamed tokens into a segmenter
// and reporting completion back to the caller.
type Driver struct {
	provider llm.Provider
	logger   *zap.Logger
}

// New builds a driver around a provider.
func New(provider llm.Provider, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{provider: provider, logger: logger}
}

// Generate streams one reply to userText, feeding spoken tokens into seg
// as they arrive. If the model's first content instead opens a tool call
// (a structured delta, or plain text starting with a markdown fence or
// containing <tool_call>), no tokens reach seg and the call is reported
// back unexecuted for the caller to dispatch.
func (d *Driver) Generate(ctx context.Context, userText string, opts llm.QueryOptions, seg *segmenter.Segmenter) (Result, error) {
	deltas, err := d.provider.StreamChat(ctx, userText, opts)
	if err != nil {
		return Result{}, err
	}

	var spoken []rune
	var toolBuf []rune
	inToolCall := false
	firstToken := true
	var structuredCall *llm.ToolCall

	for delta := range deltas {
		if delta.Token != "" {
			if firstToken {
				firstToken = false
				inToolCall = looksLikeToolCall(delta.Token)
			}
			if inToolCall {
				toolBuf = append(toolBuf, []rune(delta.Token)...)
			} else {
				seg.OnToken(delta.Token)
				spoken = append(spoken, []rune(delta.Token)...)
			}
		}
		if delta.ToolCall != nil {
			structuredCall = delta.ToolCall
		}
		if delta.Done {
			if !inToolCall && structuredCall == nil {
				seg.Flush()
			}
			break
		}
	}

	if structuredCall != nil {
		return Result{Outcome: OutcomeToolCall, ToolCall: structuredCall}, nil
	}
	if inToolCall {
		call, err := parseMarkdownToolCall(string(toolBuf))
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeToolCall, ToolCall: call}, nil
	}
	return Result{Outcome: OutcomeText, Text: string(spoken)}, nil
}

// Interrupt cancels the in-flight generation, if any.
func (d *Driver) Interrupt() {
	d.provider.Interrupt()
}

// looksLikeToolCall reports whether a reply's opening content signals a
// tool call instead of spoken text, per §4.6: a leading markdown fence or
// a <tool_call> tag anywhere in the first chunk.
func looksLikeToolCall(firstChunk string) bool {
	trimmed := strings.TrimSpace(firstChunk)
	return strings.HasPrefix(trimmed, "```") || strings.Contains(firstChunk, "<tool_call>")
}

type markdownToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseMarkdownToolCall extracts {name, arguments} from a buffered
// tool-call reply, stripping a wrapping markdown fence or <tool_call>
// tag before decoding the JSON body.
func parseMarkdownToolCall(raw string) (*llm.ToolCall, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "<tool_call>")
	body = strings.TrimSuffix(body, "</tool_call>")
	body = strings.TrimSpace(body)

	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(body[:nl]), "{") {
			body = body[nl+1:]
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}

	var call markdownToolCall
	if err := json.Unmarshal([]byte(body), &call); err != nil {
		return nil, fmt.Errorf("%w: %v", voiceerr.ErrToolCallParse, err)
	}
	if call.Name == "" {
		return nil, fmt.Errorf("%w: missing tool name", voiceerr.ErrToolCallParse)
	}
	args := string(call.Arguments)
	if args == "" {
		args = "{}"
	}
	return &llm.ToolCall{Name: call.Name, Arguments: args}, nil
}
