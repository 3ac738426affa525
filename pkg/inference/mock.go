package inference

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// ChatFunc is called when Chat is invoked.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu       sync.Mutex
	calls    []MockCall
	requests []ChatRequest
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Model  string
	Time   time.Time
}

// NewMock creates a mock provider that streams deltas in order and
// answers Chat with their concatenation. Each reply carries a fresh
// response ID ("resp_1", "resp_2", ...).
func NewMock(deltas ...string) *Mock {
	m := &Mock{}
	m.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{
			Message:      NewAssistantMessage(strings.Join(deltas, "")),
			FinishReason: "stop",
			ResponseID:   m.responseID(),
			Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
	m.StreamFunc = func(ctx context.Context, req *ChatRequest) (Stream, error) {
		return NewMockStream(ctx, deltas, 0, m.responseID()), nil
	}
	return m
}

// Chat calls ChatFunc and records the call.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat", req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Stream calls StreamFunc and records the call.
func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.record("Stream", req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	if m.ChatFunc != nil {
		resp, err := m.ChatFunc(ctx, req)
		if err != nil {
			return nil, err
		}
		return BlockStream(resp), nil
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", nil)
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string, req *ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := MockCall{Method: method, Time: time.Now()}
	if req != nil {
		call.Model = req.Model
		cp := *req
		cp.Messages = append([]Message(nil), req.Messages...)
		m.requests = append(m.requests, cp)
	}
	m.calls = append(m.calls, call)
}

func (m *Mock) responseID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "resp_" + strconv.Itoa(len(m.requests))
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// Requests returns copies of every Chat and Stream request received.
func (m *Mock) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ChatRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// LastRequest returns the most recent request, or nil if none.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.requests = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return nil, err
		},
		StreamFunc: func(ctx context.Context, req *ChatRequest) (Stream, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// MockStream replays a fixed list of deltas, optionally pausing before
// each one, then reports Done. A non-nil Err is returned after the
// deltas instead of Done.
type MockStream struct {
	ctx        context.Context
	deltas     []string
	delay      time.Duration
	responseID string
	pos        int
	closed     bool

	// Err, when set, fails the stream after the last delta.
	Err error
}

// NewMockStream creates a stream that yields deltas with delay between them.
func NewMockStream(ctx context.Context, deltas []string, delay time.Duration, responseID string) *MockStream {
	return &MockStream{ctx: ctx, deltas: deltas, delay: delay, responseID: responseID}
}

// Recv returns the next delta.
func (s *MockStream) Recv() (*StreamChunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos < len(s.deltas) {
		if s.delay > 0 {
			select {
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			case <-time.After(s.delay):
			}
		}
		d := s.deltas[s.pos]
		s.pos++
		return &StreamChunk{Delta: d}, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.closed = true
	return &StreamChunk{FinishReason: "stop", ResponseID: s.responseID, Done: true}, nil
}

// Close stops the stream.
func (s *MockStream) Close() error {
	s.closed = true
	return nil
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
