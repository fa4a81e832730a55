package llm

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
)

// openaiProvider satisfies Provider against any OpenAI-compatible chat
// completions endpoint, which covers OpenAI itself, Ollama's OpenAI
// shim, and most self-hosted gateways.
type openaiProvider struct {
	client       *openai.Client
	systemPrompt string
	logger       *zap.Logger

	mu        sync.Mutex
	tools     []ToolDefinition
	handlers  map[string]func(map[string]interface{}) (Action, error)
	lastUsage Usage
	haveUsage bool
	cancel    context.CancelFunc
}

// NewOpenAI builds a provider against apiKey/apiURL, defaulting apiURL to
// the public OpenAI endpoint when empty.
func NewOpenAI(apiKey, apiURL, systemPrompt string, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	return &openaiProvider{
		client:       openai.NewClientWithConfig(cfg),
		systemPrompt: systemPrompt,
		logger:       logger,
		handlers:     make(map[string]func(map[string]interface{}) (Action, error)),
	}
}

// NewOllama builds a provider against a local Ollama server's
// OpenAI-compatible endpoint, which accepts any non-empty API key.
func NewOllama(apiURL, systemPrompt string, logger *zap.Logger) Provider {
	if apiURL == "" {
		apiURL = "http://localhost:11434/v1"
	}
	return NewOpenAI("ollama", apiURL, systemPrompt, logger)
}

func (p *openaiProvider) RegisterTool(def ToolDefinition, handler func(args map[string]interface{}) (Action, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = append(p.tools, def)
	p.handlers[def.Name] = handler
}

func (p *openaiProvider) ListTools() []ToolDefinition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ToolDefinition, len(p.tools))
	copy(out, p.tools)
	return out
}

// InvokeTool runs the handler registered for name with already
// JSON-decoded arguments; the caller (the dispatcher, not the stream
// loop) decides when a tool call is complete enough to invoke.
func (p *openaiProvider) InvokeTool(name string, args map[string]interface{}) (Action, error) {
	p.mu.Lock()
	handler := p.handlers[name]
	p.mu.Unlock()
	if handler == nil {
		return Action{}, fmt.Errorf("%w: %s", voiceerr.ErrToolNotFound, name)
	}
	return handler(args)
}

func (p *openaiProvider) Interrupt() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *openaiProvider) LastUsage() (Usage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage, p.haveUsage
}

func (p *openaiProvider) toolDefs() []openai.Tool {
	p.mu.Lock()
	defer p.mu.Unlock()
	tools := make([]openai.Tool, 0, len(p.tools))
	for _, t := range p.tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return tools
}

// buildMessages renders the vendor-neutral transcript into OpenAI's
// message shape. An empty history falls back to the provider's static
// configured system prompt; userText is appended as a user message only
// when non-empty, which is how a §4.6 tool-result follow-up call (history
// already ending in a tool turn) avoids injecting a spurious empty turn.
func (p *openaiProvider) buildMessages(history []ChatMessage, userText string) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if len(history) == 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, toOpenAIMessage(m))
	}
	if userText != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})
	}
	return msgs
}

func toOpenAIMessage(m ChatMessage) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:       tc.ID,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return msg
}

func (p *openaiProvider) StreamChat(ctx context.Context, userText string, opts QueryOptions) (<-chan StreamDelta, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.buildMessages(opts.History, userText),
		Stream:   true,
		Tools:    p.toolDefs(),
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer stream.Close()
		defer cancel()

		// pendingCall accumulates a tool call's streamed argument
		// fragments; it is surfaced on the final delta, never invoked
		// here. Invocation is the dispatcher's job, once it has parsed
		// a complete call (§4.6/§4.8).
		var pendingCall *openai.ToolCall
		for {
			resp, err := stream.Recv()
			if err != nil {
				out <- StreamDelta{Done: true}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			for _, tc := range choice.Delta.ToolCalls {
				if pendingCall == nil {
					c := tc
					pendingCall = &c
				} else {
					pendingCall.Function.Arguments += tc.Function.Arguments
				}
			}
			if choice.Delta.Content != "" {
				select {
				case out <- StreamDelta{Token: choice.Delta.Content}:
				case <-streamCtx.Done():
					return
				}
			}
			if choice.FinishReason != "" {
				var final StreamDelta
				if pendingCall != nil {
					final.ToolCall = &ToolCall{
						ID:        pendingCall.ID,
						Name:      pendingCall.Function.Name,
						Arguments: pendingCall.Function.Arguments,
					}
				}
				p.mu.Lock()
				p.lastUsage = Usage{}
				if resp.Usage != nil {
					p.lastUsage = Usage{
						PromptTokens:     resp.Usage.PromptTokens,
						CompletionTokens: resp.Usage.CompletionTokens,
						TotalTokens:      resp.Usage.TotalTokens,
					}
					p.haveUsage = true
				}
				p.mu.Unlock()
				final.Done = true
				out <- final
				return
			}
		}
	}()
	return out, nil
}
