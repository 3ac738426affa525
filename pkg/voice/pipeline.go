package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/inference"
	"github.com/teslashibe/go-voiceturn/pkg/segment"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// Deps are the collaborators a Pipeline composes.
type Deps struct {
	STT  stt.Provider
	LLM  inference.Provider
	TTS  tts.Provider
	Sink audioio.Sink

	Callbacks Callbacks
	Metrics   *MetricsCollector
	Logger    *slog.Logger
}

// Utterance is a finished recording handed over by the capture side.
// The pipeline owns the file from then on and deletes it when done.
type Utterance struct {
	// ID identifies the turn. Generated when empty.
	ID string

	// Path is the recording on local storage.
	Path string
}

// TurnResult describes a finished turn.
type TurnResult struct {
	ID         string
	Transcript string
	Reply      string
	Outcome    Outcome

	// Err is the failure that shaped the turn, if any. A non-nil Err does
	// not mean the turn crashed: every failure is recovered within the turn.
	Err error

	// Ended is true when the turn closed the conversation.
	Ended   bool
	Metrics Metrics
}

// Pipeline runs conversation turns one at a time.
type Pipeline struct {
	cfg     Config
	stt     stt.Provider
	llm     inference.Provider
	tts     tts.Provider
	sink    audioio.Sink
	cb      Callbacks
	metrics *MetricsCollector
	state   *conversation.State
	logger  *slog.Logger

	mu   sync.RWMutex
	last TurnResult
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.STT == nil || deps.LLM == nil || deps.TTS == nil || deps.Sink == nil {
		return nil, errors.New("voice: STT, LLM, TTS and Sink are required")
	}
	if cfg.Apology == "" {
		cfg.Apology = DefaultApology
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetricsCollector()
	}

	p := &Pipeline{
		cfg:     cfg,
		stt:     deps.STT,
		llm:     deps.LLM,
		tts:     deps.TTS,
		sink:    deps.Sink,
		cb:      deps.Callbacks,
		metrics: metrics,
		logger:  logger.With("component", "voice.pipeline"),
	}
	p.state = conversation.NewState(conversation.NewContext(cfg.ContextMode),
		conversation.WithSilenceTimeout(cfg.SilenceTimeout),
		conversation.WithOnEnded(p.cb.conversationEnded),
		conversation.WithLogger(logger),
	)
	return p, nil
}

// RunTurn runs one turn to completion. It returns ErrBusy at once, after
// deleting the recording, when another turn is in flight.
func (p *Pipeline) RunTurn(ctx context.Context, u Utterance) (*TurnResult, error) {
	if !p.begin(&u) {
		return nil, ErrBusy
	}
	return p.run(ctx, u), nil
}

// Submit accepts an utterance and runs its turn in the background. It
// returns the turn ID, or ErrBusy when another turn is in flight. The
// turn runs on a context detached from ctx's cancellation.
func (p *Pipeline) Submit(ctx context.Context, u Utterance) (string, error) {
	if !p.begin(&u) {
		return "", ErrBusy
	}
	go p.run(context.WithoutCancel(ctx), u)
	return u.ID, nil
}

// Reset ends the conversation as if the silence timer had fired. It
// returns ErrBusy while a turn is in flight and false when there was no
// conversation to end.
func (p *Pipeline) Reset() (bool, error) {
	if p.state.Busy() {
		return false, ErrBusy
	}
	return p.state.End(conversation.ReasonReset), nil
}

// State returns the conversation state.
func (p *Pipeline) State() *conversation.State {
	return p.state
}

// Metrics returns the metrics collector.
func (p *Pipeline) Metrics() *MetricsCollector {
	return p.metrics
}

// Last returns the most recent finished turn.
func (p *Pipeline) Last() TurnResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// begin claims the pipeline for u, assigning a turn ID. A rejected
// utterance is deleted.
func (p *Pipeline) begin(u *Utterance) bool {
	if !p.state.TryBegin() {
		p.logger.Debug("utterance rejected, turn in flight", "path", u.Path)
		p.discard(u.Path)
		p.metrics.MarkBusy()
		return false
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	p.metrics.MarkAccepted(u.ID)
	return true
}

// run executes an accepted turn. The busy flag and the recording are
// released on every path.
func (p *Pipeline) run(ctx context.Context, u Utterance) *TurnResult {
	res := &TurnResult{ID: u.ID}
	logger := p.logger.With("turn_id", u.ID, "conversation_id", p.state.ID())

	defer func() {
		p.discard(u.Path)
		res.Metrics = p.metrics.MarkDone(res.Outcome)

		p.mu.Lock()
		p.last = *res
		p.mu.Unlock()

		p.state.Complete(res.Ended)
		if !res.Ended {
			p.cb.resumeListening()
		}
		logger.Info("turn finished",
			"outcome", res.Outcome,
			"latency", res.Metrics.FormatLatency(),
			"sentences", res.Metrics.Sentences,
			"skipped", res.Metrics.Skipped,
		)
	}()

	transcript, err := p.transcribe(ctx, u)
	p.metrics.MarkTranscript()
	if err != nil {
		res.Err = &TurnError{Kind: KindTranscription, TurnID: u.ID, Err: err}
		res.Ended = p.cfg.EndOnFailure
		logger.Warn("transcription failed, treating as no speech", "error", err)
		p.cb.fail(u.ID, res.Err)
	}
	if transcript == "" {
		res.Outcome = OutcomeEmptyInput
		p.cb.noSpeech(u.ID)
		return res
	}
	res.Transcript = transcript
	p.cb.transcript(u.ID, transcript)
	logger.Debug("transcript", "text", transcript)

	req := p.state.Context().Request(transcript, p.cfg.SystemPrompt)
	stream, err := inference.Open(ctx, p.llm, req, p.cfg.Streaming)
	if err != nil {
		stream = failedStream{err: err}
	}

	t, err := p.speak(ctx, u.ID, stream)
	res.Reply = t.reply.String()

	switch {
	case t.genErr != nil:
		res.Outcome = OutcomeError
		res.Err = &TurnError{Kind: KindGeneration, TurnID: u.ID, Err: t.genErr}
		res.Ended = p.cfg.EndOnFailure
		logger.Error("generation failed, apology spoken", "error", t.genErr)
		p.cb.fail(u.ID, res.Err)
	case err != nil:
		res.Outcome = OutcomeError
		res.Err = &TurnError{Kind: KindPlayback, TurnID: u.ID, Err: err}
		logger.Error("playback failed", "error", err)
		p.cb.fail(u.ID, res.Err)
	default:
		res.Outcome = OutcomeSuccess
	}

	if t.genErr == nil {
		if err := p.state.Context().Commit(transcript, res.Reply, t.responseID); err != nil {
			logger.Warn("context not updated", "error", err)
		}
	}
	return res
}

func (p *Pipeline) transcribe(ctx context.Context, u Utterance) (string, error) {
	audio, err := stt.LoadFile(u.Path)
	if err != nil {
		return "", err
	}
	tr, err := p.stt.Transcribe(ctx, audio)
	if err != nil {
		return "", err
	}
	if tr.Empty() {
		return "", nil
	}
	return strings.TrimSpace(tr.Text), nil
}

// turn carries what the producer learned about the reply.
type turn struct {
	id         string
	reply      strings.Builder
	responseID string
	genErr     error
	started    bool
}

// speak consumes the reply stream and plays it sentence by sentence. The
// producer forwards deltas and queues completed sentences; the consumer
// synthesizes them in queue order into one sink stream. The returned
// error is a playback failure; generation failures are recorded on the
// turn and answered with the apology.
func (p *Pipeline) speak(ctx context.Context, id string, stream inference.Stream) (*turn, error) {
	t := &turn{id: id}
	sentences := make(chan string, p.cfg.QueueDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(sentences)
		defer stream.Close()
		return p.produce(gctx, t, stream, sentences)
	})
	g.Go(func() error {
		return p.consume(gctx, id, sentences)
	})
	err := g.Wait()

	if t.started {
		p.cb.replyEnd(id, t.reply.String())
	}
	return t, err
}

func (p *Pipeline) produce(ctx context.Context, t *turn, stream inference.Stream, out chan<- string) error {
	send := func(s string) error {
		select {
		case out <- s:
			p.metrics.IncrementSentences()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var buf segment.Buffer
	for {
		chunk, err := stream.Recv()
		if err != nil {
			t.genErr = err
			break
		}
		if chunk.Done {
			t.responseID = chunk.ResponseID
			break
		}
		if chunk.Delta == "" {
			continue
		}

		p.metrics.MarkFirstToken()
		if !t.started {
			t.started = true
			p.cb.replyStart(t.id)
		}
		p.cb.replyChunk(t.id, chunk.Delta)
		t.reply.WriteString(chunk.Delta)

		buf.Append(chunk.Delta)
		for _, s := range buf.Drain() {
			if err := send(s); err != nil {
				return err
			}
		}
	}

	if t.genErr != nil {
		return send(p.cfg.Apology)
	}
	if rest, ok := buf.Flush(); ok {
		return send(rest)
	}
	return nil
}

// consume synthesizes sentences in order. The sink stream is opened on
// the first audio and closed after the last sentence.
func (p *Pipeline) consume(ctx context.Context, id string, in <-chan string) (err error) {
	var out audioio.Stream
	defer func() {
		if out == nil {
			return
		}
		if err != nil {
			out.Abort()
			return
		}
		err = out.Close()
	}()

	for sentence := range in {
		audio, synthErr := p.tts.Stream(ctx, sentence)
		if synthErr != nil {
			p.skip(id, sentence, synthErr)
			continue
		}

		format := audio.Format()
		if !format.Encoding.IsPCM() {
			audio.Close()
			p.skip(id, sentence, fmt.Errorf("unsupported audio encoding %s", format.Encoding))
			continue
		}

		for {
			data, readErr := audio.Read()
			if readErr != nil {
				p.skip(id, sentence, readErr)
				break
			}
			if data == nil {
				break
			}
			if len(data) == 0 {
				continue
			}
			if out == nil {
				if out, err = p.sink.Open(ctx); err != nil {
					audio.Close()
					return fmt.Errorf("open sink: %w", err)
				}
			}
			p.metrics.MarkFirstAudio()
			if err = out.Write(ctx, audioio.ChunkFromBytes(data, format.SampleRate, format.Channels)); err != nil {
				audio.Close()
				return fmt.Errorf("write sink: %w", err)
			}
		}
		audio.Close()
	}
	return nil
}

func (p *Pipeline) skip(id, sentence string, err error) {
	p.metrics.IncrementSkipped()
	p.logger.Warn("sentence skipped",
		"turn_id", id,
		"error", &TurnError{Kind: KindSynthesis, TurnID: id, Err: err},
		"chars", len(sentence),
	)
}

// discard deletes a recording. A missing file is not an error.
func (p *Pipeline) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("failed to delete utterance", "path", path, "error", err)
	}
}

// failedStream reports a generation failure that happened at open time
// through the same path as one that happens mid-stream.
type failedStream struct {
	err error
}

func (s failedStream) Recv() (*inference.StreamChunk, error) { return nil, s.err }
func (s failedStream) Close() error                          { return nil }
