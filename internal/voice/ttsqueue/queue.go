// Package ttsqueue paces synthesized audio frames out to the device at
// playback speed. The first preBufferFrames frames of a reply are sent
// immediately so playback starts promptly; after that each frame waits
// until one frame duration has passed since the previous send, a wait
// shortened by ttsPaceSpeedupRatio while the emitter reports a backlog of
// more than preBufferFrames frames. No trailing sleep follows a segment,
// so time saved by the shortened waits is not paid back.
package ttsqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// preBufferFrames is how many frames are sent immediately, with no pacing
// delay, before flow control engages.
const preBufferFrames = 60

// ttsPaceSpeedupRatio is how much faster than real time frames are paced
// once a backlog exists, recovering latency spent on generation.
const ttsPaceSpeedupRatio = 0.20

// AudioFrame is one chunk of already-encoded audio ready to send.
type AudioFrame struct {
	Data []byte
}

// Emitter is the sink frames are paced out to; the session's outbound
// writer satisfies this.
type Emitter interface {
	SendAudio(data []byte) error
	PendingCount() int
}

// Queue paces one segment's frames against frameDuration, reusing the
// same flow-control state across a whole reply so pacing doesn't reset
// between segments of the same turn.
type Queue struct {
	emit          Emitter
	frameDuration time.Duration
	logger        *zap.Logger

	mu           sync.Mutex
	sent         int
	startedAt    time.Time
	lastSendTime time.Time
	interrupted  bool
}

// New builds a queue pacing frames at frameDuration (typically 60ms).
func New(emit Emitter, frameDuration time.Duration, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if frameDuration <= 0 {
		frameDuration = 60 * time.Millisecond
	}
	return &Queue{emit: emit, frameDuration: frameDuration, logger: logger}
}

// Reset clears pacing state for a new reply, called when a fresh turn's
// TTS output begins.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = 0
	q.startedAt = time.Time{}
	q.lastSendTime = time.Time{}
	q.interrupted = false
}

// Interrupt stops pacing further frames; any in-flight Send call returns
// immediately without sending.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
}

// Send paces and delivers one frame, blocking until it is either sent or
// the context is cancelled.
func (q *Queue) Send(ctx context.Context, data []byte) error {
	q.mu.Lock()
	if q.interrupted {
		q.mu.Unlock()
		return nil
	}
	now := time.Now()
	if q.startedAt.IsZero() {
		q.startedAt = now
		q.lastSendTime = now
	}
	idx := q.sent
	q.sent++
	last := q.lastSendTime
	q.mu.Unlock()

	if idx >= preBufferFrames {
		target := q.frameDuration
		if q.emit.PendingCount() > preBufferFrames {
			// backlog building: pace faster to recover lost ground,
			// never below a sane floor to avoid crackling playback.
			target = time.Duration(float64(target) * (1 - ttsPaceSpeedupRatio))
		}
		elapsed := time.Since(last)
		if wait := target - elapsed; wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		q.mu.Lock()
		stopped := q.interrupted
		q.mu.Unlock()
		if stopped {
			return nil
		}
	}

	if err := q.emit.SendAudio(data); err != nil {
		return err
	}
	q.mu.Lock()
	q.lastSendTime = time.Now()
	q.mu.Unlock()
	return nil
}
