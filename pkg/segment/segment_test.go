package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/segment"
)

func TestBoundary(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantEnd int
		wantOK  bool
	}{
		{"empty", "", 0, false},
		{"whitespace only", "   \t ", 0, false},
		{"newline only", "\n\n", 0, false},
		{"no terminator", "Sure, one moment", 0, false},
		{"terminator at end", "Hi there.", 0, false},
		{"terminator then space", "Hi there. How", 9, true},
		{"exclamation", "Wow! Nice", 4, true},
		{"question", "Why? Because", 4, true},
		{"ellipsis rune", "Well… maybe", len("Well…"), true},
		{"newline", "Line one\nLine two", 9, true},
		{"decimal not boundary", "Pi is 3.14 roughly", 0, false},
		{"leading newline skipped", "\nHello. World", 7, true},
		{"lone period then space", ". ", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, ok := segment.Boundary(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantEnd, end)
			}
		})
	}
}

func TestBufferAcrossDeltas(t *testing.T) {
	var b segment.Buffer
	var got []string

	for _, d := range []string{"Hi", " there.", " How are you?"} {
		b.Append(d)
		got = append(got, b.Drain()...)
	}
	// "Hi there." completes only once the following space arrives
	assert.Equal(t, []string{"Hi there."}, got)

	rest, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, "How are you?", rest)
	assert.Equal(t, 0, b.Len())
}

func TestBufferMultipleSentencesInOneDelta(t *testing.T) {
	var b segment.Buffer
	b.Append("One. Two! Three? Four")

	assert.Equal(t, []string{"One.", "Two!", "Three?"}, b.Drain())
	assert.Equal(t, " Four", b.String())

	_, ok := b.Next()
	assert.False(t, ok, "drained buffer must hold no complete sentence")
}

func TestBufferFlushResidue(t *testing.T) {
	var b segment.Buffer
	b.Append("Sure, one moment")
	assert.Empty(t, b.Drain())

	rest, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, "Sure, one moment", rest)

	_, ok = b.Flush()
	assert.False(t, ok, "second flush has nothing left")
}

func TestBufferFlushWhitespace(t *testing.T) {
	var b segment.Buffer
	b.Append("Done.\n  ")
	assert.Equal(t, []string{"Done."}, b.Drain())

	_, ok := b.Flush()
	assert.False(t, ok)
}

func TestSplit(t *testing.T) {
	sentences, rest := segment.Split("First line\nSecond. third")
	assert.Equal(t, []string{"First line", "Second."}, sentences)
	assert.Equal(t, " third", rest)
}
