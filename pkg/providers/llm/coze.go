package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	cozego "github.com/coze-dev/coze-go"
	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
)

// cozeProvider streams a Coze bot's conversation turns. apiURL accepts
// either a bare bot ID or a JSON blob of {"bot_id":...,"base_url":...},
// matching how the credential field is populated by either a simple
// dashboard paste or a fuller deployment config.
type cozeProvider struct {
	client *cozego.CozeAPI
	botID  string
	logger *zap.Logger

	mu        sync.Mutex
	tools     []ToolDefinition
	handlers  map[string]func(map[string]interface{}) (Action, error)
	lastUsage Usage
	cancel    context.CancelFunc
}

type cozeConfig struct {
	BotID   string `json:"bot_id"`
	BaseURL string `json:"base_url"`
}

// NewCoze builds a provider against a Coze bot. apiURL may be a plain bot
// ID or a JSON object naming bot_id and an optional base_url override.
func NewCoze(apiKey, apiURL string, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := cozeConfig{BotID: apiURL}
	if len(apiURL) > 0 && apiURL[0] == '{' {
		if err := json.Unmarshal([]byte(apiURL), &cfg); err != nil {
			return nil, fmt.Errorf("parse coze config: %w", err)
		}
	}
	if cfg.BotID == "" {
		return nil, fmt.Errorf("coze provider requires a bot id")
	}

	auth := cozego.NewTokenAuth(apiKey)
	var opts []cozego.CozeAPIOption
	if cfg.BaseURL != "" {
		opts = append(opts, cozego.WithBaseURL(cfg.BaseURL))
	}
	client := cozego.NewCozeAPI(auth, opts...)

	return &cozeProvider{
		client:   &client,
		botID:    cfg.BotID,
		logger:   logger,
		handlers: make(map[string]func(map[string]interface{}) (Action, error)),
	}, nil
}

// RegisterTool records the tool for the markdown/<tool_call> detection
// path in internal/voice/llmdriver: a Coze bot has no structured
// function-calling delta over this API, so any tool call it makes
// arrives embedded in its plain-text reply and is dispatched the same
// way as every other provider once the driver recognizes it.
func (p *cozeProvider) RegisterTool(def ToolDefinition, handler func(args map[string]interface{}) (Action, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = append(p.tools, def)
	p.handlers[def.Name] = handler
}

func (p *cozeProvider) ListTools() []ToolDefinition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ToolDefinition, len(p.tools))
	copy(out, p.tools)
	return out
}

func (p *cozeProvider) InvokeTool(name string, args map[string]interface{}) (Action, error) {
	p.mu.Lock()
	handler := p.handlers[name]
	p.mu.Unlock()
	if handler == nil {
		return Action{}, fmt.Errorf("%w: %s", voiceerr.ErrToolNotFound, name)
	}
	return handler(args)
}

func (p *cozeProvider) Interrupt() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *cozeProvider) LastUsage() (Usage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage, p.lastUsage.TotalTokens > 0
}

// StreamChat forwards the turn to the bot and replays its reply as a
// single token delta. The bot has no notion of opts.History — Coze
// threads conversation state server-side by conversation id — so when
// userText is empty the content of the transcript's last turn (the new
// user utterance, or the pending tool result on a follow-up call) is sent
// as the query instead.
func (p *cozeProvider) StreamChat(ctx context.Context, userText string, opts QueryOptions) (<-chan StreamDelta, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	query := userText
	if query == "" && len(opts.History) > 0 {
		last := opts.History[len(opts.History)-1]
		if last.Role == "tool" || last.Role == "user" {
			query = last.Content
		}
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer cancel()
		resp, err := p.client.Chat.Messages.Create(streamCtx, &cozego.CreateMessageReq{
			BotID: p.botID,
			Query: query,
		})
		if err != nil {
			p.logger.Warn("coze chat failed", zap.Error(err))
			out <- StreamDelta{Done: true}
			return
		}
		select {
		case out <- StreamDelta{Token: resp.Content}:
		case <-streamCtx.Done():
			return
		}
		out <- StreamDelta{Done: true}
	}()
	return out, nil
}
