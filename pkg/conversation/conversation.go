// Package conversation holds the state that outlives a single voice turn:
// the running generation context and the conversation lifecycle.
//
// Context is a tagged variant. In ModeHistory it is an ordered list of
// role-tagged messages resent with every request; in ModeToken it is the
// continuation token issued by the generation service. The mode is fixed
// when the Context is created and the two representations are never mixed.
//
// State drives the Idle → Active → Awaiting lifecycle with a single busy
// flag and a single-shot silence timer:
//
//	state := conversation.NewState(conversation.NewContext(conversation.ModeHistory),
//	    conversation.WithSilenceTimeout(15*time.Second),
//	    conversation.WithOnEnded(func(e conversation.Ended) { ... }),
//	)
//	if !state.TryBegin() {
//	    return ErrBusy
//	}
//	defer state.Complete(false)
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/teslashibe/go-voiceturn/pkg/inference"
)

// Mode selects how conversation context is carried between turns.
type Mode int

const (
	// ModeHistory resends prior turns as messages.
	ModeHistory Mode = iota
	// ModeToken continues from the service's previous response ID.
	ModeToken
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeHistory:
		return "history"
	case ModeToken:
		return "token"
	default:
		return "unknown"
	}
}

// ParseMode parses "history" or "token".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "history":
		return ModeHistory, nil
	case "token":
		return ModeToken, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Context is the running generation context for one conversation.
// It is safe for concurrent use.
type Context struct {
	mu       sync.RWMutex
	mode     Mode
	messages []inference.Message
	token    string
	turns    int
}

// NewContext creates an empty context in the given mode.
func NewContext(mode Mode) *Context {
	return &Context{mode: mode}
}

// Mode returns the context's fixed representation.
func (c *Context) Mode() Mode {
	return c.mode
}

// Request builds the generation request for a new user turn. History mode
// sends every prior message followed by the transcript; token mode sends
// only the transcript against the current continuation token.
func (c *Context) Request(transcript, instructions string) *inference.ChatRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	req := &inference.ChatRequest{Instructions: instructions}
	switch c.mode {
	case ModeToken:
		req.PreviousResponseID = c.token
		req.Messages = []inference.Message{inference.NewUserMessage(transcript)}
	default:
		req.Messages = make([]inference.Message, 0, len(c.messages)+1)
		req.Messages = append(req.Messages, c.messages...)
		req.Messages = append(req.Messages, inference.NewUserMessage(transcript))
	}
	return req
}

// Commit records a completed turn. History mode appends the user and
// assistant messages verbatim; token mode replaces the continuation token
// with responseID and requires it to be non-empty.
func (c *Context) Commit(transcript, reply, responseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case ModeToken:
		if responseID == "" {
			return ErrMissingToken
		}
		c.token = responseID
	default:
		c.messages = append(c.messages,
			inference.NewUserMessage(transcript),
			inference.NewAssistantMessage(reply),
		)
	}
	c.turns++
	return nil
}

// Messages returns a copy of the message history. Always empty in token mode.
func (c *Context) Messages() []inference.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]inference.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Token returns the continuation token. Always empty in history mode.
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Turns returns the number of committed turns.
func (c *Context) Turns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns
}

// Empty reports whether no turn has been committed.
func (c *Context) Empty() bool {
	return c.Turns() == 0
}

// Reset discards all messages and the continuation token.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.token = ""
	c.turns = 0
}

// Snapshot is a point-in-time copy of a Context.
type Snapshot struct {
	Mode     string              `json:"mode"`
	Messages []inference.Message `json:"messages,omitempty"`
	Token    string              `json:"token,omitempty"`
	Turns    int                 `json:"turns"`
}

// Snapshot returns a copy suitable for display.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]inference.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		Mode:     c.mode.String(),
		Messages: msgs,
		Token:    c.token,
		Turns:    c.turns,
	}
}
