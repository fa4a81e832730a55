// Package encoder wraps hraban/opus to give the pipeline a fixed-frame
// encode/decode pair matching the session's negotiated audio parameters.
package encoder

import (
	"fmt"

	"github.com/hraban/opus"

	"github.com/code-100-precent/lingecho-voice/pkg/media"
)

// OpusCodec holds one direction's worth of libopus state for a session;
// encoders and decoders are not safe for concurrent use, so a session
// keeps one of each.
type OpusCodec struct {
	encoder *opus.Encoder
	decoder *opus.Decoder
	format  media.StreamFormat
}

// New builds an Opus codec pair for the given format.
func New(format media.StreamFormat) (*OpusCodec, error) {
	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusCodec{encoder: enc, decoder: dec, format: format}, nil
}

// frameSamples is the PCM sample count per channel for one frame at the
// codec's negotiated sample rate and frame duration.
func (c *OpusCodec) frameSamples() int {
	return c.format.SampleRate * int(c.format.FrameDuration.Milliseconds()) / 1000
}

// Encode turns one frame of PCM samples into an Opus packet.
func (c *OpusCodec) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 4000)
	n, err := c.encoder.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return out[:n], nil
}

// Decode turns one Opus packet back into PCM samples.
func (c *OpusCodec) Decode(packet []byte) ([]int16, error) {
	out := make([]int16, c.frameSamples()*c.format.Channels)
	n, err := c.decoder.Decode(packet, out)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return out[:n*c.format.Channels], nil
}
