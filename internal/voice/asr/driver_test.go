package asr

import (
	"context"
	"testing"

	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
	providerasr "github.com/code-100-precent/lingecho-voice/pkg/providers/asr"
)

type fakeTranscriber struct {
	result providerasr.Result
	err    error
}

func (f *fakeTranscriber) Recognize(ctx context.Context, audio []byte, sampleRate int) (providerasr.Result, error) {
	return f.result, f.err
}

func (f *fakeTranscriber) Close() error { return nil }

func TestFinalizeEmptyBufferReturnsErrRecognitionEmpty(t *testing.T) {
	d := New(&fakeTranscriber{}, 16000, nil)
	_, err := d.Finalize(context.Background())
	if err != voiceerr.ErrRecognitionEmpty {
		t.Fatalf("expected ErrRecognitionEmpty, got %v", err)
	}
}

func TestFinalizeReturnsRecognizedText(t *testing.T) {
	d := New(&fakeTranscriber{result: providerasr.Result{Text: "你好", IsFinal: true}}, 16000, nil)
	d.Feed(tenFrames()...)
	r, err := d.Finalize(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Text != "你好" {
		t.Fatalf("expected recognized text, got %q", r.Text)
	}
}

// TestFinalizeDiscardsShortBuffer covers §4.3: an utterance buffer under
// 10 frames is discarded rather than handed to the recognizer.
func TestFinalizeDiscardsShortBuffer(t *testing.T) {
	d := New(&fakeTranscriber{result: providerasr.Result{Text: "你好", IsFinal: true}}, 16000, nil)
	d.Feed([]byte("frame1"), []byte("frame2"))
	_, err := d.Finalize(context.Background())
	if err != voiceerr.ErrRecognitionEmpty {
		t.Fatalf("expected short buffer to be discarded with ErrRecognitionEmpty, got %v", err)
	}
}

func tenFrames() [][]byte {
	frames := make([][]byte, minUtteranceFrames)
	for i := range frames {
		frames[i] = []byte("frame")
	}
	return frames
}
