package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"go.uber.org/zap"
)

// pollySynthesizer calls Amazon Polly's SynthesizeSpeech once per segment
// and replays the whole clip through the handler; Polly has no partial
// streaming mode, so pacing out to the device is left entirely to the
// caller's queue.
type pollySynthesizer struct {
	client    *polly.Client
	voiceID   types.VoiceId
	outFormat types.OutputFormat
	logger    *zap.Logger
}

// NewPolly builds a synthesizer against AWS credentials resolved from the
// standard SDK credential chain.
func NewPolly(ctx context.Context, cfg Config, logger *zap.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	region, _ := cfg["region"].(string)
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	voiceID := types.VoiceIdJoanna
	if v, ok := cfg["voice_id"].(string); ok && v != "" {
		voiceID = types.VoiceId(v)
	}
	return &pollySynthesizer{
		client:    polly.NewFromConfig(awsCfg),
		voiceID:   voiceID,
		outFormat: types.OutputFormatOggVorbis,
		logger:    logger,
	}, nil
}

func (p *pollySynthesizer) Synthesize(ctx context.Context, text string, handler Handler) error {
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      p.voiceID,
		OutputFormat: p.outFormat,
	})
	if err != nil {
		return fmt.Errorf("polly synthesize: %w", err)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return fmt.Errorf("polly read stream: %w", err)
	}
	return handler(data)
}

func (p *pollySynthesizer) Close() error { return nil }
