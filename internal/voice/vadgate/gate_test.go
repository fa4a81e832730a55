package vadgate

import (
	"context"
	"testing"
	"time"
)

func probeWith(haveVoice bool, prob float64) func([]byte) (bool, bool, float64, error) {
	return func([]byte) (bool, bool, float64, error) {
		return haveVoice, false, prob, nil
	}
}

func TestGateVoiceStartEmitsPreRoll(t *testing.T) {
	g := New("s1", time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := g.Feed(ctx, []byte{byte(i)}, probeWith(false, 0.1))
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		if d.HaveVoice {
			t.Fatalf("frame %d: expected no voice yet", i)
		}
	}

	d, err := g.Feed(ctx, []byte("speech"), probeWith(true, 0.9))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !d.HaveVoice {
		t.Fatal("expected have_voice true on speech onset")
	}
	if len(d.PreRoll) != 3 {
		t.Fatalf("expected 3 pre-roll frames, got %d", len(d.PreRoll))
	}
}

func TestGateVoiceStopRequiresSilenceHold(t *testing.T) {
	g := New("s2", time.Minute, nil)
	ctx := context.Background()

	if _, err := g.Feed(ctx, []byte("a"), probeWith(true, 0.9)); err != nil {
		t.Fatalf("feed: %v", err)
	}

	d, err := g.Feed(ctx, []byte("b"), probeWith(false, 0.1))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if d.VoiceStopNow {
		t.Fatal("voice_stop must not fire before the silence hold elapses")
	}

	g.mu.Lock()
	g.lastVoiceAt = time.Now().Add(-2 * silenceStopDuration)
	g.mu.Unlock()

	d, err = g.Feed(ctx, []byte("c"), probeWith(false, 0.1))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !d.VoiceStopNow {
		t.Fatal("expected voice_stop to fire once silence hold elapses")
	}

	d, err = g.Feed(ctx, []byte("d"), probeWith(false, 0.1))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if d.VoiceStopNow {
		t.Fatal("voice_stop must be a single edge, not sticky")
	}
}

func TestGateManualModeIgnoresProbe(t *testing.T) {
	g := New("s3", time.Minute, nil)
	g.SetMode("manual")
	g.SetManualListening(true)

	d, err := g.Feed(context.Background(), []byte("x"), probeWith(false, 0.0))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if !d.HaveVoice {
		t.Fatal("manual mode should report voice while listening flag is set")
	}
}
