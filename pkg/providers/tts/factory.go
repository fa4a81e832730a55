package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// New dispatches on the configured provider name, mirroring the
// selected_module.TTS configuration key's accepted values.
func New(ctx context.Context, provider string, cfg Config, logger *zap.Logger) (Synthesizer, error) {
	switch provider {
	case "qcloud", "tencent":
		return NewQCloud(cfg, logger)
	case "polly", "aws":
		return NewPolly(ctx, cfg, logger)
	case "local", "":
		return NewLocal(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", provider)
	}
}
