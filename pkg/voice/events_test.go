package voice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-voiceturn/pkg/conversation"
)

func TestEventCallbacks(t *testing.T) {
	var got []Event
	cb := EventCallbacks(func(e Event) { got = append(got, e) })

	cb.transcript("t", "hello")
	cb.noSpeech("t")
	cb.replyStart("t")
	cb.replyChunk("t", "Hi")
	cb.replyEnd("t", "Hi")
	cb.fail("t", errors.New("boom"))
	cb.resumeListening()
	cb.conversationEnded(conversation.Ended{Reason: conversation.ReasonTimeout})

	assert.Equal(t, []Event{
		{Type: EventTranscript, TurnID: "t", Text: "hello"},
		{Type: EventNoSpeech, TurnID: "t"},
		{Type: EventReplyStart, TurnID: "t"},
		{Type: EventReplyChunk, TurnID: "t", Text: "Hi"},
		{Type: EventReplyEnd, TurnID: "t", Text: "Hi"},
		{Type: EventError, TurnID: "t", Text: "boom"},
		{Type: EventResumeListening},
		{Type: EventConversationEnded, Text: "timeout"},
		{Type: EventDeactivate},
	}, got)
}

func TestCallbacksNilSafe(t *testing.T) {
	var cb Callbacks
	assert.NotPanics(t, func() {
		cb.transcript("t", "x")
		cb.replyChunk("t", "x")
		cb.resumeListening()
		cb.conversationEnded(conversation.Ended{})
	})
}

func TestCallbacksMerge(t *testing.T) {
	var order []string
	a := Callbacks{OnResumeListening: func() { order = append(order, "a") }}
	b := Callbacks{
		OnResumeListening: func() { order = append(order, "b") },
		OnReplyChunk:      func(_, text string) { order = append(order, text) },
	}

	m := a.Merge(b)
	m.resumeListening()
	m.replyChunk("t", "chunk")
	assert.Equal(t, []string{"a", "b", "chunk"}, order)
}

func TestTurnError(t *testing.T) {
	base := errors.New("network down")
	err := error(&TurnError{Kind: KindGeneration, TurnID: "t1", Err: base})

	assert.ErrorIs(t, err, base)
	assert.True(t, IsKind(err, KindGeneration))
	assert.False(t, IsKind(err, KindSynthesis))
	assert.Contains(t, err.Error(), "generation failure in turn t1")
	assert.False(t, IsKind(base, KindGeneration))
}
