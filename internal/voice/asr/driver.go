// Package asr drives recognition for one session: it assembles pre-roll
// plus live frames into one utterance buffer, enforces that at most one
// recognition call is outstanding at a time, and hands the result to the
// caller for intent classification.
package asr

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/asr"
)

// minUtteranceFrames is the §4.3 "fewer than 10 frames" discard
// threshold: an utterance this short is almost certainly a VAD false
// trigger, not recognizable speech, so it never reaches the recognizer.
const minUtteranceFrames = 10

// Driver owns the live utterance buffer and guards against overlapping
// recognition calls: a frame arriving while one is outstanding is
// buffered, not dropped, and folded into the next call.
type Driver struct {
	transcriber asr.Transcriber
	sampleRate  int
	logger      *zap.Logger

	mu     sync.Mutex
	buffer [][]byte
	busy   bool
}

// New builds a driver around a vendor transcriber.
func New(transcriber asr.Transcriber, sampleRate int, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{transcriber: transcriber, sampleRate: sampleRate, logger: logger}
}

// Feed appends a frame (or several pre-roll frames) to the live buffer.
func (d *Driver) Feed(frames ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer = append(d.buffer, frames...)
}

// Finalize recognizes everything buffered since the last call and clears
// the buffer. If a call is already outstanding it returns
// voiceerr.ErrRecognitionEmpty immediately rather than blocking, so the
// caller can decide to retry once the in-flight call completes.
func (d *Driver) Finalize(ctx context.Context) (asr.Result, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return asr.Result{}, voiceerr.ErrRecognitionEmpty
	}
	d.busy = true
	frames := d.buffer
	d.buffer = nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	if len(frames) < minUtteranceFrames {
		return asr.Result{}, voiceerr.ErrRecognitionEmpty
	}

	var joined []byte
	for _, f := range frames {
		joined = append(joined, f...)
	}

	result, err := d.transcriber.Recognize(ctx, joined, d.sampleRate)
	if err != nil {
		return asr.Result{}, err
	}
	if result.Text == "" {
		return asr.Result{}, voiceerr.ErrRecognitionEmpty
	}
	return result, nil
}

// Reset discards the buffered utterance without recognizing it, used when
// a listen.detect frame tells the session the in-progress audio should be
// dropped rather than finalized.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer = nil
}

// Busy reports whether a recognition call is currently outstanding.
func (d *Driver) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}
