package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/inference"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

type harness struct {
	cfg    Config
	stt    *stt.Mock
	llm    inference.Provider
	tts    tts.Provider
	sink   *audioio.MockSink
	events *eventLog
	p      *Pipeline
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) count(t EventType) int {
	n := 0
	for _, et := range l.types() {
		if et == t {
			n++
		}
	}
	return n
}

func (l *eventLog) texts(t EventType) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e.Text)
		}
	}
	return out
}

func newHarness(t *testing.T, transcript string, llm inference.Provider, synth tts.Provider, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		cfg:    DefaultConfig(),
		stt:    stt.NewMock(transcript),
		llm:    llm,
		tts:    synth,
		sink:   audioio.NewMockSink(audioio.DefaultConfig(), nil),
		events: &eventLog{},
	}
	h.cfg.SilenceTimeout = time.Hour
	for _, m := range mutate {
		m(&h.cfg)
	}
	p, err := New(h.cfg, Deps{
		STT:       h.stt,
		LLM:       h.llm,
		TTS:       h.tts,
		Sink:      h.sink,
		Callbacks: EventCallbacks(h.events.add),
	})
	require.NoError(t, err)
	h.p = p
	return h
}

func utterance(t *testing.T) Utterance {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utt.wav")
	require.NoError(t, os.WriteFile(path, audioio.EncodeWAV(make([]byte, 320), 16000, 1), 0o600))
	return Utterance{Path: path}
}

func requireDeleted(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist), "utterance %s should be deleted", path)
}

func played(sink *audioio.MockSink) []byte {
	var out []byte
	for _, st := range sink.Streams() {
		out = append(out, st.Bytes()...)
	}
	return out
}

func concat(texts ...string) []byte {
	var out []byte
	for _, s := range texts {
		out = append(out, tts.MockAudio(s)...)
	}
	return out
}

func TestRunTurnPlaysSentencesInOrder(t *testing.T) {
	// The first sentence synthesizes slower than the second.
	synth := tts.WithLatencyFunc(tts.NewMock(), func(text string) time.Duration {
		if text == "Hi there." {
			return 40 * time.Millisecond
		}
		return 0
	})
	h := newHarness(t, "hello", inference.NewMock("Hi", " there.", " How are you?"), synth)
	u := utterance(t)

	res, err := h.p.RunTurn(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, "hello", res.Transcript)
	assert.Equal(t, "Hi there. How are you?", res.Reply)
	assert.Equal(t, []string{"Hi there.", "How are you?"}, synth.Texts())

	streams := h.sink.Streams()
	require.Len(t, streams, 1, "one sink stream per turn")
	assert.True(t, streams[0].Closed())
	assert.False(t, streams[0].Aborted())
	assert.Equal(t, concat("Hi there.", "How are you?"), played(h.sink))

	assert.Equal(t, []EventType{
		EventTranscript,
		EventReplyStart,
		EventReplyChunk, EventReplyChunk, EventReplyChunk,
		EventReplyEnd,
		EventResumeListening,
	}, h.events.types())
	assert.Equal(t, []string{"Hi", " there.", " How are you?"}, h.events.texts(EventReplyChunk))

	requireDeleted(t, u.Path)
	assert.Equal(t, conversation.PhaseAwaiting, h.p.State().Phase())
	assert.False(t, h.p.State().Busy())
	assert.Equal(t, 2, res.Metrics.Sentences)
	assert.Equal(t, res.ID, h.p.Last().ID)
}

// gatedStream yields its first delta at once and holds the rest until
// release is closed.
type gatedStream struct {
	ctx     context.Context
	release <-chan struct{}
	deltas  []string
	pos     int
}

func (s *gatedStream) Recv() (*inference.StreamChunk, error) {
	if s.pos == 1 {
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-s.release:
		}
	}
	if s.pos < len(s.deltas) {
		d := s.deltas[s.pos]
		s.pos++
		return &inference.StreamChunk{Delta: d}, nil
	}
	return &inference.StreamChunk{FinishReason: "stop", Done: true}, nil
}

func (s *gatedStream) Close() error { return nil }

func TestRunTurnPlaysBeforeGenerationFinishes(t *testing.T) {
	release := make(chan struct{})
	llm := inference.NewMock()
	llm.StreamFunc = func(ctx context.Context, req *inference.ChatRequest) (inference.Stream, error) {
		return &gatedStream{ctx: ctx, release: release, deltas: []string{"Hi there. ", "See you soon."}}, nil
	}
	synth := tts.NewMock()
	h := newHarness(t, "hello", llm, synth)
	u := utterance(t)

	done := make(chan *TurnResult, 1)
	go func() {
		res, err := h.p.RunTurn(context.Background(), u)
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool {
		streams := h.sink.Streams()
		return len(streams) == 1 && len(streams[0].Bytes()) > 0
	}, 2*time.Second, 5*time.Millisecond, "first sentence should play while generation is still open")
	assert.Equal(t, concat("Hi there."), h.sink.Streams()[0].Bytes())
	assert.Empty(t, done, "turn must still be generating")

	close(release)
	var res *TurnResult
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish after generation resumed")
	}

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "Hi there. See you soon.", res.Reply)
	streams := h.sink.Streams()
	require.Len(t, streams, 1, "second sentence plays on the same stream")
	assert.Equal(t, concat("Hi there.", "See you soon."), streams[0].Bytes())
	assert.True(t, streams[0].Closed())
}

func TestRunTurnFlushesResidualText(t *testing.T) {
	synth := tts.NewMock()
	h := newHarness(t, "can you wait", inference.NewMock("Sure, one", " moment"), synth)

	res, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"Sure, one moment"}, synth.Texts())
	assert.Equal(t, 1, synth.CallCount("Stream"))
	assert.Equal(t, concat("Sure, one moment"), played(h.sink))
}

func TestRunTurnMultipleSentencesInOneDelta(t *testing.T) {
	synth := tts.NewMock()
	h := newHarness(t, "count", inference.NewMock("One. Two! Three? ", "Four"), synth)

	_, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, synth.Texts())
}

func TestRunTurnContextFidelity(t *testing.T) {
	llm := inference.NewMock("hi", " there!")
	// The service would report a different final text for a block request;
	// the streamed deltas are what must be recorded.
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("Hi there! (edited)")}, nil
	}
	h := newHarness(t, "hello", llm, tts.NewMock())

	_, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	msgs := h.p.State().Context().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, inference.NewUserMessage("hello"), msgs[0])
	assert.Equal(t, inference.NewAssistantMessage("hi there!"), msgs[1])
}

func TestRunTurnSendsHistoryAndSystemPrompt(t *testing.T) {
	llm := inference.NewMock("Okay.")
	h := newHarness(t, "hello", llm, tts.NewMock(), func(c *Config) {
		c.SystemPrompt = "You are a robot."
	})

	for range 2 {
		_, err := h.p.RunTurn(context.Background(), utterance(t))
		require.NoError(t, err)
	}

	req := llm.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "You are a robot.", req.Instructions)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, inference.RoleUser, req.Messages[0].Role)
	assert.Equal(t, inference.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "hello", req.Messages[2].Content)
	assert.Len(t, h.p.State().Context().Messages(), 4, "system prompt is never stored")
}

func TestRunTurnTokenMode(t *testing.T) {
	llm := inference.NewMock("Noted.")
	h := newHarness(t, "remember teal", llm, tts.NewMock(), func(c *Config) {
		c.ContextMode = conversation.ModeToken
	})

	_, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)
	assert.Equal(t, "resp_1", h.p.State().Context().Token())
	assert.Empty(t, h.p.State().Context().Messages())

	_, err = h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	req := llm.LastRequest()
	assert.Equal(t, "resp_1", req.PreviousResponseID)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "resp_2", h.p.State().Context().Token())
}

func TestRunTurnNonStreaming(t *testing.T) {
	llm := inference.NewMock("First part. ", "Second part.")
	synth := tts.NewMock()
	h := newHarness(t, "hello", llm, synth, func(c *Config) { c.Streaming = false })

	res, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	assert.Equal(t, 1, llm.CallCount("Chat"))
	assert.Zero(t, llm.CallCount("Stream"))
	assert.Equal(t, []string{"First part. Second part."}, h.events.texts(EventReplyChunk))
	assert.Equal(t, []string{"First part.", "Second part."}, synth.Texts())
	assert.Equal(t, "First part. Second part.", res.Reply)
}

func TestRunTurnEmptyTranscript(t *testing.T) {
	llm := inference.NewMock("unused")
	h := newHarness(t, "   ", llm, tts.NewMock())
	u := utterance(t)

	res, err := h.p.RunTurn(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, OutcomeEmptyInput, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Empty(t, llm.Calls(), "generation must not be contacted")
	assert.Empty(t, h.sink.Streams())
	assert.Equal(t, []EventType{EventNoSpeech, EventResumeListening}, h.events.types())
	requireDeleted(t, u.Path)
	assert.Equal(t, conversation.PhaseAwaiting, h.p.State().Phase())
}

func TestRunTurnTranscriptionFailure(t *testing.T) {
	t.Run("keeps listening by default", func(t *testing.T) {
		llm := inference.NewMock("unused")
		h := newHarness(t, "", llm, tts.NewMock())
		h.stt.TranscribeFunc = func(ctx context.Context, a stt.Audio) (*stt.Transcript, error) {
			return nil, errors.New("network down")
		}

		res, err := h.p.RunTurn(context.Background(), utterance(t))
		require.NoError(t, err)

		assert.Equal(t, OutcomeEmptyInput, res.Outcome)
		assert.True(t, IsKind(res.Err, KindTranscription))
		assert.False(t, res.Ended)
		assert.Empty(t, llm.Calls())
		assert.Equal(t, []EventType{EventError, EventNoSpeech, EventResumeListening}, h.events.types())
		assert.Zero(t, h.events.count(EventConversationEnded))
	})

	t.Run("ends conversation when configured", func(t *testing.T) {
		h := newHarness(t, "", inference.NewMock("unused"), tts.NewMock(), func(c *Config) {
			c.EndOnFailure = true
		})
		h.stt.TranscribeFunc = func(ctx context.Context, a stt.Audio) (*stt.Transcript, error) {
			return nil, errors.New("network down")
		}

		res, err := h.p.RunTurn(context.Background(), utterance(t))
		require.NoError(t, err)

		assert.True(t, res.Ended)
		assert.Equal(t, 1, h.events.count(EventError))
		assert.Equal(t, 1, h.events.count(EventConversationEnded))
		assert.Equal(t, 1, h.events.count(EventDeactivate))
		assert.Zero(t, h.events.count(EventResumeListening))
		assert.Equal(t, []string{string(conversation.ReasonFailure)}, h.events.texts(EventConversationEnded))
		assert.Equal(t, conversation.PhaseIdle, h.p.State().Phase())
	})
}

func TestRunTurnMissingFile(t *testing.T) {
	llm := inference.NewMock("unused")
	h := newHarness(t, "hello", llm, tts.NewMock())

	res, err := h.p.RunTurn(context.Background(), Utterance{Path: filepath.Join(t.TempDir(), "gone.wav")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyInput, res.Outcome)
	assert.True(t, IsKind(res.Err, KindTranscription))
	assert.Zero(t, h.stt.CallCount("Transcribe"))
}

func TestRunTurnGenerationFailureSpeaksApology(t *testing.T) {
	synth := tts.NewMock()
	h := newHarness(t, "hello", inference.WithError(errors.New("503 overloaded")), synth)
	u := utterance(t)

	res, err := h.p.RunTurn(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.True(t, IsKind(res.Err, KindGeneration))
	assert.Equal(t, []string{DefaultApology}, synth.Texts())
	assert.Equal(t, concat(DefaultApology), played(h.sink))
	assert.Equal(t, 1, h.events.count(EventError))
	assert.Zero(t, h.events.count(EventReplyStart))
	assert.Equal(t, 1, h.events.count(EventResumeListening))
	assert.True(t, h.p.State().Context().Empty(), "failed turns are not recorded")
	requireDeleted(t, u.Path)
}

func TestRunTurnGenerationFailsMidStream(t *testing.T) {
	llm := inference.NewMock()
	llm.StreamFunc = func(ctx context.Context, req *inference.ChatRequest) (inference.Stream, error) {
		s := inference.NewMockStream(ctx, []string{"Partial sentence. And the", " rest"}, 0, "")
		s.Err = errors.New("connection reset")
		return s, nil
	}
	synth := tts.NewMock()
	h := newHarness(t, "hello", llm, synth, func(c *Config) { c.Apology = "Oops." })

	res, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	assert.True(t, IsKind(res.Err, KindGeneration))
	assert.Equal(t, []string{"Partial sentence.", "Oops."}, synth.Texts())
	assert.Equal(t, 1, h.events.count(EventReplyEnd))
	assert.True(t, h.p.State().Context().Empty())
}

func TestRunTurnSkipsFailedSentence(t *testing.T) {
	synth := tts.NewMock()
	base := synth.SynthesizeFunc
	synth.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		if text == "Bad one." {
			return nil, &tts.APIError{StatusCode: 500, Message: "boom"}
		}
		return base(ctx, text)
	}
	h := newHarness(t, "hello", inference.NewMock("Good one. ", "Bad one. ", "Last one."), synth)

	res, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, concat("Good one.", "Last one."), played(h.sink))
	assert.Equal(t, 3, res.Metrics.Sentences)
	assert.Equal(t, 1, res.Metrics.Skipped)
	assert.Len(t, h.p.State().Context().Messages(), 2)
}

func deprecatedModel(m *tts.Mock) *tts.Mock {
	m.SynthesizeFunc = func(ctx context.Context, text string) (*tts.AudioResult, error) {
		return nil, &tts.APIError{StatusCode: 400, Message: "The model tts-old has been deprecated"}
	}
	return m
}

func TestRunTurnSynthesisFallback(t *testing.T) {
	t.Run("alternate succeeds", func(t *testing.T) {
		primary := deprecatedModel(tts.NewMock())
		alternate := tts.NewMock()
		h := newHarness(t, "hello", inference.NewMock("Hello."), tts.NewFallback(primary, alternate, nil))

		_, err := h.p.RunTurn(context.Background(), utterance(t))
		require.NoError(t, err)

		assert.Equal(t, 1, primary.CallCount("Stream"))
		assert.Equal(t, 1, alternate.CallCount("Stream"))
		assert.Equal(t, concat("Hello."), played(h.sink))
	})

	t.Run("alternate fails too", func(t *testing.T) {
		primary := deprecatedModel(tts.NewMock())
		alternate := tts.WithError(errors.New("also down"))
		h := newHarness(t, "hello", inference.NewMock("Hello."), tts.NewFallback(primary, alternate, nil))

		res, err := h.p.RunTurn(context.Background(), utterance(t))
		require.NoError(t, err)

		assert.Equal(t, 1, primary.CallCount("Stream"))
		assert.Equal(t, 1, alternate.CallCount("Stream"))
		assert.Equal(t, 1, res.Metrics.Skipped)
		assert.Empty(t, h.sink.Streams(), "nothing to play")
	})
}

func TestRunTurnRejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	llm := inference.NewMock()
	llm.StreamFunc = func(ctx context.Context, req *inference.ChatRequest) (inference.Stream, error) {
		close(started)
		<-release
		return inference.NewMockStream(ctx, []string{"Done."}, 0, ""), nil
	}
	h := newHarness(t, "first", llm, tts.NewMock())
	require.NoError(t, h.p.State().Context().Commit("earlier", "reply", ""))

	done := make(chan *TurnResult)
	go func() {
		res, _ := h.p.RunTurn(context.Background(), utterance(t))
		done <- res
	}()
	<-started

	second := utterance(t)
	res, err := h.p.RunTurn(context.Background(), second)
	require.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, res)
	requireDeleted(t, second.Path)
	assert.Len(t, h.p.State().Context().Messages(), 2, "rejection leaves context untouched")

	_, err = h.p.Submit(context.Background(), utterance(t))
	require.ErrorIs(t, err, ErrBusy)

	ok, err := h.p.Reset()
	require.ErrorIs(t, err, ErrBusy)
	assert.False(t, ok)

	close(release)
	first := <-done
	assert.Equal(t, OutcomeSuccess, first.Outcome)
	assert.Len(t, h.p.State().Context().Messages(), 4)
	assert.Zero(t, h.events.count(EventError), "busy is not an application error")
}

func TestSubmitRunsInBackground(t *testing.T) {
	h := newHarness(t, "hello", inference.NewMock("Hi."), tts.NewMock())
	u := utterance(t)
	u.ID = "turn-1"

	id, err := h.p.Submit(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "turn-1", id)

	require.Eventually(t, func() bool {
		return h.events.count(EventResumeListening) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "turn-1", h.p.Last().ID)
	requireDeleted(t, u.Path)
}

func TestSilenceTimeoutEndsConversation(t *testing.T) {
	h := newHarness(t, "hello", inference.NewMock("Hi."), tts.NewMock(), func(c *Config) {
		c.SilenceTimeout = 30 * time.Millisecond
	})

	_, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)
	require.False(t, h.p.State().Context().Empty())

	require.Eventually(t, func() bool {
		return h.events.count(EventConversationEnded) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, h.events.count(EventConversationEnded))
	assert.Equal(t, 1, h.events.count(EventDeactivate))
	assert.True(t, h.p.State().Context().Empty())
	assert.Equal(t, conversation.PhaseIdle, h.p.State().Phase())
}

func TestUtteranceBeforeTimeoutKeepsConversation(t *testing.T) {
	h := newHarness(t, "hello", inference.NewMock("Hi."), tts.NewMock(), func(c *Config) {
		c.SilenceTimeout = 80 * time.Millisecond
	})

	_, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, h.events.count(EventConversationEnded))
	assert.Len(t, h.p.State().Context().Messages(), 4)
}

func TestReset(t *testing.T) {
	h := newHarness(t, "hello", inference.NewMock("Hi."), tts.NewMock())

	ok, err := h.p.Reset()
	require.NoError(t, err)
	assert.False(t, ok, "nothing to reset")

	_, err = h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	ok, err = h.p.Reset()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, h.p.State().Context().Empty())
	assert.Equal(t, []string{string(conversation.ReasonReset)}, h.events.texts(EventConversationEnded))
}

func TestRunTurnPlaybackFailure(t *testing.T) {
	h := newHarness(t, "hello", inference.NewMock("Hi."), tts.NewMock())
	h.sink.OpenErr = errors.New("device busy")

	res, err := h.p.RunTurn(context.Background(), utterance(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.True(t, IsKind(res.Err, KindPlayback))
	assert.Equal(t, 1, h.events.count(EventError))
	assert.Len(t, h.p.State().Context().Messages(), 2, "the reply was generated and is kept")
}

func TestNewValidates(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.SilenceTimeout = 0
	_, err = New(cfg, Deps{
		STT:  stt.NewMock(""),
		LLM:  inference.NewMock(),
		TTS:  tts.NewMock(),
		Sink: audioio.NewMockSink(audioio.DefaultConfig(), nil),
	})
	require.Error(t, err)
}
