package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// localSynthesizer shells out to an on-box TTS binary (espeak-ng by
// default), for offline or air-gapped deployments where no vendor key is
// configured.
type localSynthesizer struct {
	command string
	args    []string
	logger  *zap.Logger
}

// NewLocal builds a synthesizer around a local command-line TTS engine.
func NewLocal(cfg Config, logger *zap.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	command, _ := cfg["command"].(string)
	if command == "" {
		command = "espeak-ng"
	}
	return &localSynthesizer{command: command, args: []string{"--stdout"}, logger: logger}, nil
}

func (s *localSynthesizer) Synthesize(ctx context.Context, text string, handler Handler) error {
	cmd := exec.CommandContext(ctx, s.command, append(s.args, text)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("local tts command failed: %w", err)
	}
	return handler(out.Bytes())
}

func (s *localSynthesizer) Close() error { return nil }
