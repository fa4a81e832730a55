package asr

import (
	"fmt"

	"go.uber.org/zap"
)

// New dispatches on the configured provider name, mirroring the
// selected_module.ASR configuration key's accepted values.
func New(provider string, cfg Config, logger *zap.Logger) (Transcriber, error) {
	switch provider {
	case "tencent", "qcloud", "":
		return NewTencent(cfg, logger)
	case "deepgram":
		return NewDeepgram(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported asr provider %q", provider)
	}
}
