package asr

import (
	"bytes"
	"context"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/pkg/client/prerecorded"
	interfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"go.uber.org/zap"
)

// deepgramTranscriber uses Deepgram's prerecorded transcription endpoint,
// called once per finalized utterance rather than over a live socket.
type deepgramTranscriber struct {
	client *prerecorded.Client
	logger *zap.Logger
}

// NewDeepgram builds a transcriber against a Deepgram API key.
func NewDeepgram(cfg Config, logger *zap.Logger) (Transcriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey, _ := cfg["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram asr requires api_key")
	}
	client := prerecorded.New(apiKey, &interfaces.ClientOptions{})
	return &deepgramTranscriber{client: client, logger: logger}, nil
}

func (d *deepgramTranscriber) Recognize(ctx context.Context, audio []byte, sampleRate int) (Result, error) {
	res, err := d.client.FromStream(ctx, bytes.NewReader(audio), &interfaces.PreRecordedTranscriptionOptions{
		Model:      "nova-2",
		Language:   "zh",
		Encoding:   "opus",
		SampleRate: sampleRate,
	})
	if err != nil {
		return Result{}, fmt.Errorf("deepgram recognize: %w", err)
	}
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return Result{}, nil
	}
	text := res.Results.Channels[0].Alternatives[0].Transcript
	if text == "" {
		return Result{}, nil
	}
	return Result{Text: text, IsFinal: true}, nil
}

func (d *deepgramTranscriber) Close() error { return nil }
