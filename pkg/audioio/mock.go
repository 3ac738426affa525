package audioio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSink is an in-memory sink for testing. Every stream it opens is
// kept so tests can inspect what would have been played.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	// WriteDelay simulates a device that takes time to accept audio.
	WriteDelay time.Duration

	// OpenErr, when set, is returned by Open.
	OpenErr error

	mu      sync.Mutex
	streams []*MockStream
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Open records a new stream.
func (m *MockSink) Open(ctx context.Context) (Stream, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStreamClosed
	}
	st := &MockStream{sink: m}
	m.streams = append(m.streams, st)
	m.logger.Debug("mock stream opened", "index", len(m.streams)-1)
	return st, nil
}

// Streams returns every stream opened so far.
func (m *MockSink) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return string(BackendMock)
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	opened := int64(len(m.streams))
	playing := false
	for _, st := range m.streams {
		if !st.Closed() {
			playing = true
		}
	}
	m.mu.Unlock()

	return SinkStats{
		StreamsOpened:  opened,
		ChunksWritten:  m.chunksWritten.Load(),
		SamplesWritten: m.samplesWritten.Load(),
		Playing:        playing,
		Backend:        m.Name(),
	}
}

// MockStream records the chunks written to it.
type MockStream struct {
	sink *MockSink

	mu      sync.Mutex
	chunks  []AudioChunk
	closed  bool
	aborted bool
}

// Write records the chunk after any configured delay.
func (s *MockStream) Write(ctx context.Context, chunk AudioChunk) error {
	if d := s.sink.WriteDelay; d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.chunks = append(s.chunks, chunk)
	s.sink.chunksWritten.Add(1)
	s.sink.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Close marks the stream closed.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Abort marks the stream closed and aborted.
func (s *MockStream) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.aborted = true
	return nil
}

// Chunks returns the recorded chunks in write order.
func (s *MockStream) Chunks() []AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AudioChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Bytes returns all recorded audio concatenated as PCM16 bytes.
func (s *MockStream) Bytes() []byte {
	var out []byte
	for _, c := range s.Chunks() {
		out = append(out, c.Bytes()...)
	}
	return out
}

// Closed reports whether Close or Abort was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Aborted reports whether Abort was called.
func (s *MockStream) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)
