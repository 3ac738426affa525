package conversation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultSilenceTimeout ends a conversation after this much idle time.
const DefaultSilenceTimeout = 15 * time.Second

// Phase is the conversation lifecycle position.
type Phase int

const (
	// PhaseIdle means no conversation is open.
	PhaseIdle Phase = iota
	// PhaseActive means a turn is in flight.
	PhaseActive
	// PhaseAwaiting means the silence timer is armed.
	PhaseAwaiting
)

// String returns a lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseAwaiting:
		return "awaiting"
	default:
		return "unknown"
	}
}

// EndReason says why a conversation ended.
type EndReason string

const (
	// ReasonTimeout means the silence timer fired.
	ReasonTimeout EndReason = "timeout"
	// ReasonReset means an explicit reset was requested.
	ReasonReset EndReason = "reset"
	// ReasonFailure means a turn failed under the end-on-failure policy.
	ReasonFailure EndReason = "failure"
)

// Ended describes a finished conversation.
type Ended struct {
	ID     string
	Reason EndReason
	Turns  int
}

// State owns the busy flag, the silence timer and the Context of one
// conversation instance. At most one turn holds the busy flag at a time.
type State struct {
	busy atomic.Bool

	mu      sync.Mutex
	phase   Phase
	id      string
	timer   *time.Timer
	gen     uint64
	timeout time.Duration

	ctx     *Context
	onEnded func(Ended)
	logger  *slog.Logger
}

// StateOption configures a State.
type StateOption func(*State)

// WithSilenceTimeout sets how long to wait for the next utterance.
func WithSilenceTimeout(d time.Duration) StateOption {
	return func(s *State) { s.timeout = d }
}

// WithOnEnded sets the callback invoked exactly once per ended conversation.
// It runs outside the state lock.
func WithOnEnded(fn func(Ended)) StateOption {
	return func(s *State) { s.onEnded = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) StateOption {
	return func(s *State) { s.logger = l }
}

// NewState creates an idle State around ctx.
func NewState(ctx *Context, opts ...StateOption) *State {
	s := &State{
		ctx:     ctx,
		timeout: DefaultSilenceTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSilenceTimeout
	}
	s.logger = s.logger.With("component", "conversation.state")
	return s
}

// Context returns the conversation context.
func (s *State) Context() *Context {
	return s.ctx
}

// TryBegin claims the busy flag for a new turn. It returns false without
// side effects when a turn is already in flight. On success the silence
// timer is disarmed before TryBegin returns, so a timer firing concurrently
// cannot end the conversation the new turn belongs to.
func (s *State) TryBegin() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	if s.phase == PhaseIdle {
		s.id = uuid.NewString()
		s.logger.Info("conversation started", "conversation_id", s.id)
	}
	s.phase = PhaseActive
	return true
}

// Complete releases the busy flag at the end of a turn. With end false the
// silence timer is re-armed; with end true the conversation ends at once
// with ReasonFailure.
func (s *State) Complete(end bool) {
	s.mu.Lock()
	var ended *Ended
	if end {
		ended = s.endLocked(ReasonFailure)
	} else {
		s.armLocked()
	}
	s.busy.Store(false)
	s.mu.Unlock()

	s.notify(ended)
}

// End ends the conversation for reason. It is a no-op returning false when
// the conversation is already idle or a turn is in flight.
func (s *State) End(reason EndReason) bool {
	s.mu.Lock()
	if s.busy.Load() {
		s.mu.Unlock()
		return false
	}
	ended := s.endLocked(reason)
	s.mu.Unlock()

	s.notify(ended)
	return ended != nil
}

// Busy reports whether a turn is in flight.
func (s *State) Busy() bool {
	return s.busy.Load()
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ID returns the current conversation ID, empty when idle.
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SilenceTimeout returns the configured timeout.
func (s *State) SilenceTimeout() time.Duration {
	return s.timeout
}

func (s *State) armLocked() {
	s.disarmLocked()
	s.phase = PhaseAwaiting
	gen := s.gen
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
}

// disarmLocked stops the timer and invalidates any callback already running.
func (s *State) disarmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *State) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != PhaseAwaiting || s.busy.Load() {
		s.mu.Unlock()
		return
	}
	ended := s.endLocked(ReasonTimeout)
	s.mu.Unlock()

	s.notify(ended)
}

func (s *State) endLocked(reason EndReason) *Ended {
	s.disarmLocked()
	if s.phase == PhaseIdle {
		return nil
	}
	ended := &Ended{ID: s.id, Reason: reason, Turns: s.ctx.Turns()}
	s.ctx.Reset()
	s.phase = PhaseIdle
	s.id = ""
	s.logger.Info("conversation ended", "conversation_id", ended.ID, "reason", reason, "turns", ended.Turns)
	return ended
}

func (s *State) notify(ended *Ended) {
	if ended != nil && s.onEnded != nil {
		s.onEnded(*ended)
	}
}
