package tts

import (
	"context"
	"fmt"

	tts "github.com/tencentcloud/tencentcloud-speech-sdk-go/tts"
	"go.uber.org/zap"
)

// qcloudSynthesizer streams audio from Tencent Cloud's realtime speech
// synthesis websocket, the default high-quality vendor.
type qcloudSynthesizer struct {
	appID     string
	secretID  string
	secretKey string
	voiceType int64
	codec     string
	sampleHz  int
	logger    *zap.Logger
}

// NewQCloud builds a synthesizer against Tencent Cloud credentials.
func NewQCloud(cfg Config, logger *zap.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	appID, _ := cfg["app_id"].(string)
	secretID, _ := cfg["secret_id"].(string)
	secretKey, _ := cfg["secret_key"].(string)
	if appID == "" || secretID == "" || secretKey == "" {
		return nil, fmt.Errorf("qcloud tts requires app_id, secret_id, secret_key")
	}
	voiceType := int64(101001)
	if v, ok := cfg["voice_type"].(int64); ok {
		voiceType = v
	}
	return &qcloudSynthesizer{
		appID:     appID,
		secretID:  secretID,
		secretKey: secretKey,
		voiceType: voiceType,
		codec:     "opus",
		sampleHz:  16000,
		logger:    logger,
	}, nil
}

func (q *qcloudSynthesizer) Synthesize(ctx context.Context, text string, handler Handler) error {
	credential := tts.NewCredential(q.secretID, q.secretKey)
	cfg := tts.NewSpeechSynthesisRequest()
	cfg.Text = text
	cfg.VoiceType = q.voiceType
	cfg.Codec = q.codec
	cfg.SampleRate = int64(q.sampleHz)

	done := make(chan error, 1)
	listener := &qcloudListener{handler: handler, done: done, logger: q.logger}
	synthesizer := tts.NewSpeechSynthesisListener(q.appID, credential, cfg, listener)

	if err := synthesizer.Synthesis(); err != nil {
		return fmt.Errorf("qcloud synthesis start: %w", err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		synthesizer.Close()
		return ctx.Err()
	}
}

func (q *qcloudSynthesizer) Close() error { return nil }

type qcloudListener struct {
	handler Handler
	done    chan error
	logger  *zap.Logger
}

func (l *qcloudListener) OnMessage(resp *tts.SpeechSynthesisResponse) {
	if resp == nil || len(resp.Audio) == 0 {
		return
	}
	if err := l.handler(resp.Audio); err != nil {
		l.logger.Warn("qcloud tts handler failed", zap.Error(err))
	}
}

func (l *qcloudListener) OnComplete(*tts.SpeechSynthesisResponse) {
	select {
	case l.done <- nil:
	default:
	}
}

func (l *qcloudListener) OnFail(_ *tts.SpeechSynthesisResponse, err error) {
	select {
	case l.done <- err:
	default:
	}
}

func (l *qcloudListener) OnCancel(*tts.SpeechSynthesisResponse) {}
