package ttsqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeEmitter struct {
	mu      sync.Mutex
	sent    [][]byte
	pending int
}

func (f *fakeEmitter) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeEmitter) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func TestQueueSendsPreBufferedFramesImmediately(t *testing.T) {
	e := &fakeEmitter{}
	q := New(e, 10*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < preBufferFrames; i++ {
		if err := q.Send(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("pre-buffered frames should not be paced")
	}
	if len(e.sent) != preBufferFrames {
		t.Fatalf("expected %d frames sent, got %d", preBufferFrames, len(e.sent))
	}
}

func TestQueueInterruptStopsSending(t *testing.T) {
	e := &fakeEmitter{}
	q := New(e, 10*time.Millisecond, nil)
	q.Interrupt()

	if err := q.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("send after interrupt should not error: %v", err)
	}
	if len(e.sent) != 0 {
		t.Fatal("expected interrupted queue to drop the frame")
	}
}
