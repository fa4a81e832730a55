// Package media defines the audio codec contract: a fixed-frame Opus
// pipeline, 16 kHz mono with 60 ms frames in DefaultFormat.
package media

import "time"

// StreamFormat names the wire codec and framing of an audio stream.
type StreamFormat struct {
	Codec         string // always "opus" in this deployment
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// DefaultFormat is the protocol's Opus stream format: 16 kHz, mono,
// 60 ms frames.
var DefaultFormat = StreamFormat{
	Codec:         "opus",
	SampleRate:    16000,
	Channels:      1,
	FrameDuration: 60 * time.Millisecond,
}

// EncoderFunc turns a PCM frame into an encoded frame in the wire codec.
type EncoderFunc func(pcm []int16) ([]byte, error)

// DecoderFunc turns a wire-codec frame back into PCM samples.
type DecoderFunc func(encoded []byte) ([]int16, error)

// CodecConfig configures the encoder/decoder pair for one stream.
type CodecConfig struct {
	Format StreamFormat
}
