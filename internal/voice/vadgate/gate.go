// Package vadgate turns a raw per-frame speech probability into the three
// session-level flags the rest of the pipeline reacts to: whether the user
// currently has voice, when voice last stopped, and whether the connection
// has gone idle long enough to end the conversation. The flag math mirrors
// a continuous-probability VAD: once speech starts, voice_stop stays false
// until silence has held for a fixed duration, at which point exactly one
// stop transition fires.
package vadgate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// preRollFrames is how many frames of audio immediately preceding a
	// detected voice-start are replayed into the ASR buffer, so the first
	// syllable of an utterance is never clipped by detection latency.
	preRollFrames = 5

	// silenceStopDuration is how long speech probability must stay below
	// threshold before voice_stop transitions true.
	silenceStopDuration = 100 * time.Millisecond
)

// Frame is one chunk of audio submitted to the gate, in the session's
// negotiated wire format (opus).
type Frame struct {
	Data []byte
}

// Decision is the outcome of feeding one frame through the gate.
type Decision struct {
	HaveVoice     bool
	VoiceStopNow  bool // true exactly on the frame where stop transitions
	SpeechProb    float64
	PreRoll       [][]byte // non-nil only on the frame where voice starts
}

// Gate holds the per-session VAD state machine: a ring buffer of recent
// frames for pre-roll, the last-voice timestamp used for both the stop
// transition and the idle timeout, and the manual/auto mode switch.
type Gate struct {
	sessionID string
	logger    *zap.Logger

	mu              sync.Mutex
	mode            string // "auto" or "manual"
	manualListening bool
	ring            [][]byte
	haveVoice       bool
	haveVoiceStop   bool
	lastVoiceAt     time.Time
	idleTimeout     time.Duration
}

// New builds a gate for one session, defaulting the idle timeout to 120s
// (the close_connection_no_voice_time configuration key) unless overridden.
func New(sessionID string, idleTimeout time.Duration, logger *zap.Logger) *Gate {
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		sessionID:   sessionID,
		logger:      logger,
		mode:        "auto",
		idleTimeout: idleTimeout,
		lastVoiceAt: time.Now(),
	}
}

// SetMode switches between automatic VAD-driven detection and a mode where
// voice state is driven entirely by explicit listen frames.
func (g *Gate) SetMode(mode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = mode
}

// SetManualListening is called from the listen frame handler in manual
// mode: state=="start" means listening began, state=="stop" means the
// user finished speaking.
func (g *Gate) SetManualListening(listening bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manualListening = listening
	if listening {
		g.lastVoiceAt = time.Now()
	}
}

// Feed pushes one frame of audio through the gate. probe is supplied by
// the caller (the real VAD client's Detect, wired through an adapter) so
// this package carries no HTTP dependency of its own.
func (g *Gate) Feed(ctx context.Context, data []byte, probe func([]byte) (bool, bool, float64, error)) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mode == "manual" {
		g.ring = appendRing(g.ring, data)
		return Decision{HaveVoice: g.manualListening}, nil
	}

	haveVoice, voiceStop, prob, err := probe(data)
	if err != nil {
		return Decision{}, err
	}

	var d Decision
	d.SpeechProb = prob

	wasVoice := g.haveVoice
	if haveVoice {
		g.lastVoiceAt = time.Now()
		g.haveVoice = true
		g.haveVoiceStop = false
		if !wasVoice {
			// voice just started: hand back the pre-roll so the ASR
			// driver can prepend it ahead of this frame.
			d.PreRoll = append([][]byte(nil), g.ring...)
			g.ring = g.ring[:0]
		}
	} else if g.haveVoice && !g.haveVoiceStop && time.Since(g.lastVoiceAt) >= silenceStopDuration {
		g.haveVoiceStop = true
		g.haveVoice = false
		d.VoiceStopNow = true
	}

	d.HaveVoice = g.haveVoice
	if !d.HaveVoice {
		g.ring = appendRing(g.ring, data)
	}
	return d, nil
}

// IdleFor reports how long it has been since voice was last detected,
// used by the session loop to decide whether to send the idle valedictory
// prompt and close the connection.
func (g *Gate) IdleFor() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Since(g.lastVoiceAt)
}

// IdleTimeout returns the configured idle threshold.
func (g *Gate) IdleTimeout() time.Duration {
	return g.idleTimeout
}

func appendRing(ring [][]byte, data []byte) [][]byte {
	ring = append(ring, data)
	if len(ring) > preRollFrames {
		ring = ring[len(ring)-preRollFrames:]
	}
	return ring
}
