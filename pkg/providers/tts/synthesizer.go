// Package tts defines the speech synthesis contract the session drives
// segments through (pacing the resulting audio out via ttsqueue), plus
// vendor adapters registered by name from configuration.
package tts

import "context"

// Handler receives synthesized audio as it is produced; vendors that
// stream audio call it once per chunk, vendors that only return a whole
// clip call it once.
type Handler func(data []byte) error

// Synthesizer turns one text segment into a stream of audio frames in the
// session's negotiated codec.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, handler Handler) error
	Close() error
}

// Config is the opaque per-provider configuration block under the TTS
// selected-module key; vendors type-assert the fields they need.
type Config map[string]interface{}
