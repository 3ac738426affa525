package voice

import "github.com/teslashibe/go-voiceturn/pkg/conversation"

// EventType names an outbound pipeline event.
type EventType string

const (
	EventTranscript        EventType = "transcript"
	EventNoSpeech          EventType = "no_speech"
	EventReplyStart        EventType = "reply_start"
	EventReplyChunk        EventType = "reply_chunk"
	EventReplyEnd          EventType = "reply_end"
	EventError             EventType = "error"
	EventResumeListening   EventType = "resume_listening"
	EventConversationEnded EventType = "conversation_ended"
	EventDeactivate        EventType = "deactivate"
)

// Event is the serializable form of a callback invocation.
type Event struct {
	Type   EventType `json:"type"`
	TurnID string    `json:"turn_id,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Callbacks receive pipeline events. Any field may be nil. Callbacks run
// on pipeline goroutines and must not block.
type Callbacks struct {
	// OnTranscript is called with the user's transcript.
	OnTranscript func(turnID, text string)

	// OnNoSpeech is called when the utterance held no usable speech.
	OnNoSpeech func(turnID string)

	// OnReplyStart is called before the first reply chunk.
	OnReplyStart func(turnID string)

	// OnReplyChunk is called with each reply delta, in order.
	OnReplyChunk func(turnID, text string)

	// OnReplyEnd is called with the full reply after the last chunk.
	OnReplyEnd func(turnID, text string)

	// OnError is called when a stage of the turn fails.
	OnError func(turnID string, err error)

	// OnResumeListening tells the capture side to listen for the next
	// utterance.
	OnResumeListening func()

	// OnConversationEnded is called once per ended conversation.
	OnConversationEnded func(e conversation.Ended)

	// OnDeactivate tells the capture side to stop listening until the
	// wake word is heard again.
	OnDeactivate func()
}

// EventCallbacks returns Callbacks that forward every event to fn.
func EventCallbacks(fn func(Event)) Callbacks {
	return Callbacks{
		OnTranscript: func(id, text string) {
			fn(Event{Type: EventTranscript, TurnID: id, Text: text})
		},
		OnNoSpeech: func(id string) {
			fn(Event{Type: EventNoSpeech, TurnID: id})
		},
		OnReplyStart: func(id string) {
			fn(Event{Type: EventReplyStart, TurnID: id})
		},
		OnReplyChunk: func(id, text string) {
			fn(Event{Type: EventReplyChunk, TurnID: id, Text: text})
		},
		OnReplyEnd: func(id, text string) {
			fn(Event{Type: EventReplyEnd, TurnID: id, Text: text})
		},
		OnError: func(id string, err error) {
			fn(Event{Type: EventError, TurnID: id, Text: err.Error()})
		},
		OnResumeListening: func() {
			fn(Event{Type: EventResumeListening})
		},
		OnConversationEnded: func(e conversation.Ended) {
			fn(Event{Type: EventConversationEnded, Text: string(e.Reason)})
		},
		OnDeactivate: func() {
			fn(Event{Type: EventDeactivate})
		},
	}
}

// Merge returns Callbacks that invoke c and then other.
func (c Callbacks) Merge(other Callbacks) Callbacks {
	return Callbacks{
		OnTranscript:        chain2(c.OnTranscript, other.OnTranscript),
		OnNoSpeech:          chain1(c.OnNoSpeech, other.OnNoSpeech),
		OnReplyStart:        chain1(c.OnReplyStart, other.OnReplyStart),
		OnReplyChunk:        chain2(c.OnReplyChunk, other.OnReplyChunk),
		OnReplyEnd:          chain2(c.OnReplyEnd, other.OnReplyEnd),
		OnError:             chain2(c.OnError, other.OnError),
		OnResumeListening:   chain0(c.OnResumeListening, other.OnResumeListening),
		OnConversationEnded: chain1(c.OnConversationEnded, other.OnConversationEnded),
		OnDeactivate:        chain0(c.OnDeactivate, other.OnDeactivate),
	}
}

func chain0(a, b func()) func() {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func() { a(); b() }
}

func chain1[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x T) { a(x); b(x) }
}

func chain2[T, U any](a, b func(T, U)) func(T, U) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x T, y U) { a(x, y); b(x, y) }
}

func (c *Callbacks) transcript(id, text string) {
	if c.OnTranscript != nil {
		c.OnTranscript(id, text)
	}
}

func (c *Callbacks) noSpeech(id string) {
	if c.OnNoSpeech != nil {
		c.OnNoSpeech(id)
	}
}

func (c *Callbacks) replyStart(id string) {
	if c.OnReplyStart != nil {
		c.OnReplyStart(id)
	}
}

func (c *Callbacks) replyChunk(id, text string) {
	if c.OnReplyChunk != nil {
		c.OnReplyChunk(id, text)
	}
}

func (c *Callbacks) replyEnd(id, text string) {
	if c.OnReplyEnd != nil {
		c.OnReplyEnd(id, text)
	}
}

func (c *Callbacks) fail(id string, err error) {
	if c.OnError != nil {
		c.OnError(id, err)
	}
}

func (c *Callbacks) resumeListening() {
	if c.OnResumeListening != nil {
		c.OnResumeListening()
	}
}

func (c *Callbacks) conversationEnded(e conversation.Ended) {
	if c.OnConversationEnded != nil {
		c.OnConversationEnded(e)
	}
	if c.OnDeactivate != nil {
		c.OnDeactivate()
	}
}
