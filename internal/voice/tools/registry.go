// Package tools registers the built-in LLM-facing tools every session
// starts with: exiting the conversation, playing local music, and
// querying a bridged Home Assistant device.
package tools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voice/intent"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

// Registrar is the subset of a provider's tool-registration API this
// package depends on.
type Registrar interface {
	RegisterTool(name, description string, parameters map[string]interface{}, handler func(args map[string]interface{}) (llm.Action, error))
}

// GoodbyeCallback runs when the user signals they want to end the
// conversation; the driving session arranges to close the connection
// once the farewell reply has finished playing.
type GoodbyeCallback func(reason string) error

// RegisterGoodbye installs the "say goodbye and stand by" tool. Its
// result is ActionResponse: the farewell text is spoken verbatim as a
// synthetic assistant turn, no re-entrant LLM call needed.
func RegisterGoodbye(reg Registrar, callback GoodbyeCallback, logger *zap.Logger) {
	reg.RegisterTool(
		"goodbye",
		"Call this when the user says goodbye, wants to end the conversation, or asks to hang up or go to sleep.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"reason": map[string]interface{}{"type": "string", "description": "optional reason for leaving"},
			},
			"required": []string{},
		},
		func(args map[string]interface{}) (llm.Action, error) {
			reason, _ := args["reason"].(string)
			if callback != nil {
				if err := callback(reason); err != nil {
					return llm.Action{}, fmt.Errorf("goodbye callback: %w", err)
				}
			}
			if reason != "" {
				return llm.Action{Kind: llm.ActionResponse, Text: fmt.Sprintf("好的，%s，再见", reason)}, nil
			}
			return llm.Action{Kind: llm.ActionResponse, Text: "好的，再见"}, nil
		},
	)
	if logger != nil {
		logger.Info("registered goodbye tool")
	}
}

// MusicPlayer plays an already-resolved local music file for the session.
type MusicPlayer func(path, name string) error

// RegisterPlayMusic installs a tool that fuzzy-matches a spoken song
// title against the local library and plays the best match. Its result
// is ActionResponse: once playback starts there is nothing left for the
// model to phrase, the confirmation is spoken as-is.
func RegisterPlayMusic(reg Registrar, classifier *intent.Classifier, player MusicPlayer) {
	reg.RegisterTool(
		"play_music",
		"Play a song from the local music library by name.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"song": map[string]interface{}{"type": "string", "description": "the song title to play"},
			},
			"required": []string{"song"},
		},
		func(args map[string]interface{}) (llm.Action, error) {
			song, _ := args["song"].(string)
			result := classifier.Classify("播放音乐" + song)
			if result.Kind != intent.KindMusic {
				return llm.Action{Kind: llm.ActionResponse, Text: "没有找到这首歌"}, nil
			}
			if err := player(result.SongPath, result.SongName); err != nil {
				return llm.Action{}, fmt.Errorf("play music: %w", err)
			}
			return llm.Action{Kind: llm.ActionResponse, Text: fmt.Sprintf("正在播放%s", result.SongName)}, nil
		},
	)
}

// HomeAssistantBridge queries a Home Assistant instance's REST API for a
// single entity's state, bridging the model's device questions to an
// external smart-home hub rather than the session's own IoT descriptors.
type HomeAssistantBridge struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHomeAssistantBridge builds a bridge against a Home Assistant base
// URL and long-lived access token.
func NewHomeAssistantBridge(baseURL, token string) *HomeAssistantBridge {
	return &HomeAssistantBridge{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// RegisterQueryDevice installs a tool that looks up one entity's state.
// Its result is ActionReqLLM: the raw entity state is handed back to the
// model so it can phrase a natural-language answer.
func (b *HomeAssistantBridge) RegisterQueryDevice(reg Registrar) {
	reg.RegisterTool(
		"query_home_assistant_device",
		"Look up the current state of a Home Assistant entity by its entity_id.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"entity_id"},
		},
		func(args map[string]interface{}) (llm.Action, error) {
			entityID, _ := args["entity_id"].(string)
			state, err := b.queryState(entityID)
			if err != nil {
				return llm.Action{}, err
			}
			return llm.Action{Kind: llm.ActionReqLLM, Text: state}, nil
		},
	)
}

type haStateResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

func (b *HomeAssistantBridge) queryState(entityID string) (string, error) {
	u, err := url.JoinPath(b.baseURL, "api", "states", entityID)
	if err != nil {
		return "", fmt.Errorf("build home assistant url: %w", err)
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("home assistant request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("home assistant returned %d", resp.StatusCode)
	}
	var parsed haStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode home assistant response: %w", err)
	}
	return fmt.Sprintf("%s is %s", entityID, parsed.State), nil
}
