// Package segment splits streamed reply text into speakable sentences.
//
// A boundary is the first terminal punctuation mark (. ! ? …) followed by
// whitespace, or a line break. A prefix with no letter or digit in it (empty,
// whitespace-only, or bare punctuation) never forms a sentence.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func speakable(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// Boundary reports the end offset (exclusive, in bytes) of the first
// complete sentence in text. The offset includes the terminal mark but not
// the whitespace that follows it; a line break is included.
func Boundary(text string) (int, bool) {
	for i, r := range text {
		end := -1
		switch {
		case r == '\n':
			end = i + 1
		case isTerminal(r):
			next, size := utf8.DecodeRuneInString(text[i+utf8.RuneLen(r):])
			if size > 0 && unicode.IsSpace(next) {
				end = i + utf8.RuneLen(r)
			}
		}
		if end < 0 {
			continue
		}
		if !speakable(text[:end]) {
			continue
		}
		return end, true
	}
	return 0, false
}

// Split returns every complete sentence in text and the unfinished rest.
func Split(text string) (sentences []string, rest string) {
	var b Buffer
	b.Append(text)
	sentences = b.Drain()
	return sentences, b.String()
}

// Buffer accumulates reply deltas and hands out completed sentences.
// After Drain returns, the buffer holds no complete sentence.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	sb strings.Builder
}

// Append adds a delta to the buffer.
func (b *Buffer) Append(delta string) {
	b.sb.WriteString(delta)
}

// Next removes and returns the first completed sentence, trimmed.
func (b *Buffer) Next() (string, bool) {
	text := b.sb.String()
	end, ok := Boundary(text)
	if !ok {
		return "", false
	}
	b.reset(text[end:])
	return strings.TrimSpace(text[:end]), true
}

// Drain removes every completed sentence currently in the buffer.
func (b *Buffer) Drain() []string {
	var out []string
	for {
		s, ok := b.Next()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

// Flush empties the buffer and returns any residual text, trimmed.
// ok is false when the residue is empty or whitespace-only.
func (b *Buffer) Flush() (string, bool) {
	rest := strings.TrimSpace(b.sb.String())
	b.sb.Reset()
	return rest, rest != ""
}

// String returns the unflushed text.
func (b *Buffer) String() string {
	return b.sb.String()
}

// Len returns the number of unflushed bytes.
func (b *Buffer) Len() int {
	return b.sb.Len()
}

func (b *Buffer) reset(rest string) {
	b.sb.Reset()
	b.sb.WriteString(rest)
}
