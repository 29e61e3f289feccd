// Package segment splits streamed model text into complete sentences so
// partial output can be pushed to clients as it arrives.
package segment

import "strings"

// DefaultMinLength is the minimum rune count before a split is considered.
const DefaultMinLength = 10

var sentenceEnders = []rune{'。', '！', '？', '；', '\n', '…', '.', '!', '?', ';'}

var commaEnders = []rune{'，', ','}

// LastSentenceEnd returns the rune index of the last sentence boundary in
// text, or -1 when no acceptable boundary exists. A '.' between digits is
// never a boundary; a trailing '.' after a digit is deferred because the
// fraction may continue in the next chunk. When skipComma is false and no
// sentence ender is found, comma positions are tried as a fallback.
func LastSentenceEnd(text string, skipComma bool, minLength int) int {
	runes := []rune(text)
	if len(runes) == 0 || len(runes) < minLength {
		return -1
	}

	for i := len(runes) - 1; i >= minLength; i-- {
		r := runes[i]
		if !isEnder(r, sentenceEnders) {
			continue
		}
		if r == '.' && i > 0 && isDigit(runes[i-1]) {
			if i == len(runes)-1 || isDigit(runes[i+1]) {
				continue
			}
		}
		return i
	}

	if !skipComma {
		for i := len(runes) - 1; i >= minLength; i-- {
			if isEnder(runes[i], commaEnders) {
				return i
			}
		}
	}
	return -1
}

// Segmenter accumulates streamed deltas and emits complete sentences.
type Segmenter struct {
	buf       []rune
	minLength int
	skipComma bool
}

func NewSegmenter(minLength int, skipComma bool) *Segmenter {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Segmenter{minLength: minLength, skipComma: skipComma}
}

// Feed appends delta to the buffer and returns any completed sentences.
func (s *Segmenter) Feed(delta string) []string {
	s.buf = append(s.buf, []rune(delta)...)

	pos := LastSentenceEnd(string(s.buf), s.skipComma, s.minLength)
	if pos <= 0 {
		return nil
	}

	chunk := strings.TrimSpace(string(s.buf[:pos+1]))
	s.buf = append(s.buf[:0:0], s.buf[pos+1:]...)
	if chunk == "" {
		return nil
	}
	return []string{chunk}
}

// Flush returns whatever text remains buffered and resets the segmenter.
func (s *Segmenter) Flush() string {
	rest := strings.TrimSpace(string(s.buf))
	s.buf = nil
	return rest
}

func isEnder(r rune, enders []rune) bool {
	for _, e := range enders {
		if r == e {
			return true
		}
	}
	return false
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
