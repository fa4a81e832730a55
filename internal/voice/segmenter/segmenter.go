// Package segmenter turns a stream of LLM output tokens into TTS-ready
// text segments, splitting on sentence-final punctuation so synthesis can
// start well before the model has finished generating.
package segmenter

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// terminators is the exact set of characters that end a segment: the
// full-width Chinese sentence punctuation. ASCII punctuation does not end
// a segment.
var terminators = map[rune]bool{
	'。': true, '？': true, '！': true, '；': true, '：': true,
}

// stripSet is punctuation and symbols removed from a segment before it is
// handed to synthesis, since reading them aloud produces noise.
var stripSet = map[rune]bool{
	'"': true, '\'': true, '‘': true, '’': true, '“': true, '”': true,
	'*': true, '#': true, '`': true, '~': true,
}

// Segment is one unit of text ready for synthesis, carrying a strictly
// increasing 1-based index so the caller can tell which spoken chunk a
// barge-in landed on (§3 Session.first_spoken_idx/last_spoken_idx).
type Segment struct {
	Text      string
	Index     int
	IsFinal   bool
	Timestamp time.Time
}

// Segmenter accumulates the full, unstripped LLM reply as it streams in
// and emits a Segment whenever the latest unprocessed terminator is found,
// per §4.7: full is never mutated once written, and processedChars always
// advances past the raw (unstripped) span just emitted, never past a
// stripped one, so re-scanning on the next token never re-finds the same
// terminator.
type Segmenter struct {
	mu             sync.Mutex
	full           []rune
	processedChars int
	index          int
	out            chan<- Segment
	logger         *zap.Logger
}

// New builds a segmenter that writes completed segments to out.
func New(out chan<- Segment, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{out: out, logger: logger}
}

// OnToken feeds one LLM token into the buffer. If the latest unprocessed
// terminator appears anywhere in the newly extended tail, the span up to
// and including it is stripped and emitted as a segment.
func (s *Segmenter) OnToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.full = append(s.full, []rune(token)...)
	s.emitThroughLatestTerminator(false)
}

// Flush forces out whatever remains unprocessed, marking it final. Call
// once the LLM stream completes or is interrupted.
func (s *Segmenter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitRemainder()
}

// ProcessedChars returns the raw rune count consumed from the reply so
// far, used to compute how much of a barge-in reply was actually spoken.
func (s *Segmenter) ProcessedChars() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processedChars
}

// Reset clears buffered text and the processed-character counter, used
// when a new turn begins.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = nil
	s.processedChars = 0
	s.index = 0
}

// emitThroughLatestTerminator looks for the latest (rightmost) terminator
// in the unprocessed tail and, if found, emits everything up to and
// including it as one segment.
func (s *Segmenter) emitThroughLatestTerminator(final bool) {
	tail := s.full[s.processedChars:]
	pos := -1
	for i := len(tail) - 1; i >= 0; i-- {
		if terminators[tail[i]] {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	raw := tail[:pos+1]
	s.processedChars += len(raw)
	s.emit(raw, final)
}

// emitRemainder flushes whatever is left unprocessed as the final segment
// of a reply, regardless of whether it ends on a terminator.
func (s *Segmenter) emitRemainder() {
	raw := s.full[s.processedChars:]
	s.processedChars = len(s.full)
	s.emit(raw, true)
}

func (s *Segmenter) emit(raw []rune, isFinal bool) {
	text := stripForSpeech(raw)
	if text == "" && !isFinal {
		return
	}
	if text == "" {
		return
	}
	s.index++
	s.out <- Segment{Text: text, Index: s.index, IsFinal: isFinal, Timestamp: time.Now()}
}

// stripForSpeech removes punctuation and symbols that read aloud as
// noise, and trims punctuation, symbols and whitespace from both ends,
// without disturbing the raw buffer those runes were consumed from.
func stripForSpeech(raw []rune) string {
	var b strings.Builder
	for _, r := range raw {
		if stripSet[r] || isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimFunc(b.String(), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
}

// isEmoji excludes the common emoji ranges so the synthesizer never gets
// handed a glyph with no pronunciation.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	default:
		return false
	}
}
