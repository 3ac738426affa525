package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// APlaySink plays raw PCM through an aplay subprocess, one process per
// stream. The process is owned by the stream and torn down when it closes.
type APlaySink struct {
	cfg    Config
	logger *slog.Logger

	streamsOpened  atomic.Int64
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	playing        atomic.Bool
}

// NewAPlaySink creates a sink for the configured ALSA device.
func NewAPlaySink(cfg Config, logger *slog.Logger) (*APlaySink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Command == "" {
		cfg.Command = "aplay"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath(cfg.Command); err != nil {
		return nil, fmt.Errorf("player %q not found: %w", cfg.Command, err)
	}
	return &APlaySink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.aplay", "device", cfg.Device),
	}, nil
}

// Open starts the player process.
func (s *APlaySink) Open(ctx context.Context) (Stream, error) {
	args := s.cfg.PlayerArgs()
	cmd := exec.Command(s.cfg.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.cfg.Command, err)
	}

	s.streamsOpened.Add(1)
	s.playing.Store(true)
	s.logger.Debug("playback stream opened", "pid", cmd.Process.Pid, "args", args)

	return &aplayStream{
		sink:  s,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan error, 1),
	}, nil
}

// Config returns the output configuration.
func (s *APlaySink) Config() Config {
	return s.cfg
}

// Name returns "aplay".
func (s *APlaySink) Name() string {
	return string(BackendAPlay)
}

// Close releases resources. Open streams are owned by their callers.
func (s *APlaySink) Close() error {
	return nil
}

// Stats returns sink statistics.
func (s *APlaySink) Stats() SinkStats {
	return SinkStats{
		StreamsOpened:  s.streamsOpened.Load(),
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Playing:        s.playing.Load(),
		Backend:        s.Name(),
	}
}

type aplayStream struct {
	sink  *APlaySink
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan error

	mu     sync.Mutex
	closed bool
	waited bool
}

func (st *aplayStream) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return ErrStreamClosed
	}

	cfg := st.sink.cfg
	out := chunk.Convert(cfg.SampleRate, cfg.Channels)
	if _, err := st.stdin.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write to player: %w", err)
	}
	st.sink.chunksWritten.Add(1)
	st.sink.samplesWritten.Add(int64(len(out.Samples)))
	return nil
}

// Close closes stdin so the player drains, then waits for it to exit.
// The player is killed if it outlives DrainTimeout.
func (st *aplayStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.waited {
		return nil
	}
	st.closed = true
	st.stdin.Close()

	go func() { st.done <- st.cmd.Wait() }()

	var err error
	select {
	case err = <-st.done:
	case <-time.After(st.sink.cfg.DrainTimeout):
		st.sink.logger.Warn("player did not drain, killing", "timeout", st.sink.cfg.DrainTimeout)
		st.cmd.Process.Kill()
		err = <-st.done
	}
	st.waited = true
	st.sink.playing.Store(false)
	st.sink.logger.Debug("playback stream closed")
	if err != nil {
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}

func (st *aplayStream) Abort() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.waited {
		return nil
	}
	st.closed = true
	st.stdin.Close()
	st.cmd.Process.Kill()
	st.cmd.Wait()
	st.waited = true
	st.sink.playing.Store(false)
	return nil
}

// Ensure APlaySink implements SinkWithStats.
var _ SinkWithStats = (*APlaySink)(nil)
