// Command server runs the voice pipeline's WebSocket endpoint: it loads
// configuration, builds the provider registries, and serves connections
// until an interrupt or termination signal arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/auth"
	"github.com/code-100-precent/lingecho-voice/internal/httpserver"
	"github.com/code-100-precent/lingecho-voice/internal/memory"
	voiceasr "github.com/code-100-precent/lingecho-voice/internal/voice/asr"
	"github.com/code-100-precent/lingecho-voice/internal/voice/devices"
	"github.com/code-100-precent/lingecho-voice/internal/voice/intent"
	"github.com/code-100-precent/lingecho-voice/internal/voice/llmdriver"
	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
	voicesession "github.com/code-100-precent/lingecho-voice/internal/voice/session"
	"github.com/code-100-precent/lingecho-voice/internal/voice/tools"
	"github.com/code-100-precent/lingecho-voice/internal/voice/vadgate"
	"github.com/code-100-precent/lingecho-voice/pkg/config"
	"github.com/code-100-precent/lingecho-voice/pkg/logger"
	providerasr "github.com/code-100-precent/lingecho-voice/pkg/providers/asr"
	providerllm "github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
	providertts "github.com/code-100-precent/lingecho-voice/pkg/providers/tts"
	providervad "github.com/code-100-precent/lingecho-voice/pkg/providers/vad"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mode := flag.String("mode", "dev", "logging mode: dev or prod")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := logger.Init(&cfg.Log, *mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memStore, err := memory.NewStore("./data/memory", nil, logger.Lg)
	if err != nil {
		logger.Fatal("create memory store", zap.Error(err))
	}
	authPolicy := auth.NewPolicy(cfg.Server.Auth.Enabled, cfg.Server.Auth.AllowedDevices, cfg.Server.Auth.Tokens)

	var vadSessions *providervad.SessionManager
	if vadURL := stringField(cfg.VAD, "base_url"); vadURL != "" {
		vadSessions = providervad.NewSessionManager(providervad.NewClient(vadURL, logger.Lg), logger.Lg)
	}
	vadThreshold := floatField(cfg.VAD, "threshold")

	builder := func(sessCtx context.Context, conn *websocket.Conn, deviceID, clientID string) (*voicesession.Session, error) {
		llmProvider, err := providerllm.New(cfg.SelectedModule.LLM, stringField(cfg.LLM, "api_key"), stringField(cfg.LLM, "api_url"), cfg.Prompt, logger.Lg)
		if err != nil {
			return nil, err
		}
		transcriber, err := providerasr.New(cfg.SelectedModule.ASR, providerasr.Config(cfg.ASR), logger.Lg)
		if err != nil {
			return nil, err
		}
		synthesizer, err := providertts.New(sessCtx, cfg.SelectedModule.TTS, providertts.Config(cfg.TTS), logger.Lg)
		if err != nil {
			return nil, err
		}

		sessModel := model.NewSession(uuid.NewString(), deviceID, clientID)
		sessModel.Audio = model.AudioParams{Format: "opus", SampleRate: 16000, Channels: 1, FrameDuration: 60 * time.Millisecond}

		var probe func(data []byte) (bool, bool, float64, error)
		if vadSessions != nil {
			probe = func(data []byte) (bool, bool, float64, error) {
				resp, err := vadSessions.ProcessAudio(sessModel.ID, data, sessModel.Audio.Format, vadThreshold)
				if err != nil {
					return false, false, 0, err
				}
				return resp.HaveVoice, resp.VoiceStop, resp.SpeechProb, nil
			}
		}

		var memorySummary string
		if memStore != nil {
			if rec, err := memStore.Load(deviceID); err != nil {
				logger.Warn("memory load failed", zap.Error(err), zap.String("device_id", deviceID))
			} else {
				memorySummary = rec.Summary
			}
		}

		deviceReg := devices.New(sessModel, logger.Lg)
		intentClassifier := intent.New(cfg.CMDExit, cfg.Music.MusicDir, cfg.Music.MusicExt, logger.Lg)

		deps := voicesession.Deps{
			Conn:                 conn,
			Model:                sessModel,
			ASR:                  voiceasr.New(transcriber, 16000, logger.Lg),
			Gate:                 vadgate.New(sessModel.ID, time.Duration(cfg.IdleTimeoutSecs)*time.Second, logger.Lg),
			Intent:               intentClassifier,
			LLM:                  llmdriver.New(llmProvider, logger.Lg),
			Provider:             llmProvider,
			TTS:                  synthesizer,
			DeviceReg:            deviceReg,
			MemoryStore:          memStore,
			SystemPrompt:         cfg.Prompt,
			MemorySummary:        memorySummary,
			WelcomeBody:          cfg.Xiaozhi,
			UseLLMIntent:         cfg.UseLLMIntent,
			DefaultSpeakerVolume: cfg.IOT.Speaker.Volume,
			IdleTimeout:          time.Duration(cfg.IdleTimeoutSecs) * time.Second,
			TTSTimeout:           time.Duration(cfg.TTSTimeoutSecs) * time.Second,
			Probe:                probe,
			Logger:               logger.Lg,
		}
		sess := voicesession.New(sessCtx, deps)

		registrar := providerRegistrar{llmProvider}
		tools.RegisterGoodbye(registrar, sess.ArrangeGoodbye, logger.Lg)
		tools.RegisterPlayMusic(registrar, intentClassifier, sess.PlayMusicTool)
		if cfg.HomeAssistant.BaseURL != "" {
			tools.NewHomeAssistantBridge(cfg.HomeAssistant.BaseURL, cfg.HomeAssistant.Token).RegisterQueryDevice(registrar)
		}
		deviceReg.RegisterTools(registrar)
		deviceReg.SetPropertyChangeCallback(sess.PushDeviceProperty)

		return sess, nil
	}

	srv := httpserver.New(builder, authPolicy, logger.Lg)
	addr := cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port)
	logger.Info("starting voice server", zap.String("addr", addr))
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}

// providerRegistrar adapts a raw llm.Provider's ToolDefinition-based
// RegisterTool to the narrower (name, description, parameters, handler)
// shape both the devices and tools packages depend on, so neither package
// needs to know about llm.ToolDefinition directly.
type providerRegistrar struct {
	provider providerllm.Provider
}

func (r providerRegistrar) RegisterTool(name, description string, parameters map[string]interface{}, handler func(args map[string]interface{}) (providerllm.Action, error)) {
	r.provider.RegisterTool(providerllm.ToolDefinition{Name: name, Description: description, Parameters: parameters}, handler)
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
