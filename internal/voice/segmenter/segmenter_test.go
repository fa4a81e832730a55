package segmenter

import "testing"

func TestSegmenterFlushesOnTerminator(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)

	s.OnToken("今天天气不错")
	s.OnToken("，适合散步。")

	select {
	case seg := <-ch:
		if seg.IsFinal {
			t.Fatal("terminator flush must not be marked final")
		}
		if seg.Text == "" {
			t.Fatal("expected non-empty segment")
		}
	default:
		t.Fatal("expected a segment to be emitted on terminator")
	}
}

func TestSegmenterStripsQuotesAndEmoji(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("“你好”😀！！")
	s.Flush()

	seg := <-ch
	if seg.Text != "你好" {
		t.Fatalf("expected stripped text, got %q", seg.Text)
	}
}

func TestSegmenterProcessedCharsAccumulates(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("一二三四五六七八。")
	<-ch
	if s.ProcessedChars() == 0 {
		t.Fatal("expected processed chars to accumulate after a flush")
	}
}

// TestSegmenterFindsLatestTerminatorOnly covers §4.7: when a single token
// carries more than one terminator, everything up to the latest one is
// emitted as one segment rather than splitting at the first.
func TestSegmenterFindsLatestTerminatorOnly(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("先这样！再那样。")

	select {
	case seg := <-ch:
		if seg.Text != "先这样！再那样" {
			t.Fatalf("expected the whole span up to the latest terminator, got %q", seg.Text)
		}
	default:
		t.Fatal("expected a segment to be emitted")
	}
	select {
	case seg := <-ch:
		t.Fatalf("expected only one segment, got a second: %+v", seg)
	default:
	}
}

// TestSegmenterAdvancesPastRawSpanNotStrippedSpan covers P5: processedChars
// must track the raw, unstripped span consumed, so quote/emoji stripping
// at emission time never lets the next token re-scan already-consumed text.
func TestSegmenterAdvancesPastRawSpanNotStrippedSpan(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("“你好”。")
	seg := <-ch
	if seg.Text != "你好" {
		t.Fatalf("expected stripped text, got %q", seg.Text)
	}
	if s.ProcessedChars() != len([]rune("“你好”。")) {
		t.Fatalf("expected processedChars to advance past the raw span, got %d", s.ProcessedChars())
	}

	s.OnToken("继续说话。")
	seg2 := <-ch
	if seg2.Text != "继续说话" {
		t.Fatalf("expected second segment to start fresh after the first, got %q", seg2.Text)
	}
}

func TestSegmenterIndexIncreasesAcrossSegments(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("第一句。")
	first := <-ch
	s.OnToken("第二句。")
	second := <-ch
	if first.Index != 1 || second.Index != 2 {
		t.Fatalf("expected strictly increasing indices, got %d then %d", first.Index, second.Index)
	}
}

func TestSegmenterFlushEmitsFinalIndexedRemainder(t *testing.T) {
	ch := make(chan Segment, 4)
	s := New(ch, nil)
	s.OnToken("没有终止符的尾巴")
	s.Flush()

	seg := <-ch
	if !seg.IsFinal {
		t.Fatal("expected the flushed remainder to be marked final")
	}
	if seg.Text != "没有终止符的尾巴" {
		t.Fatalf("expected the remainder text, got %q", seg.Text)
	}
}
