package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/internal/config"
	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

func TestServeFlags(t *testing.T) {
	cases := []struct {
		name   string
		args   []string
		listen string
	}{
		{name: "default", args: []string{}, listen: ""},
		{name: "listen override", args: []string{"--listen", ":9090"}, listen: ":9090"},
		{name: "short listen", args: []string{"-l", "127.0.0.1:7000"}, listen: "127.0.0.1:7000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &ServeCmd{}
			parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
			_, err := parser.ParseArgs(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.listen, cmd.Listen)
		})
	}
}

func TestTurnFileRequired(t *testing.T) {
	cmd := &TurnCmd{}
	parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(nil)

	var ferr *flags.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, flags.ErrRequired, ferr.Type)
}

func TestCopyToTemp(t *testing.T) {
	src := filepath.Join(t.TempDir(), "utt.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o600))

	dst, err := copyToTemp(src)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(dst) })

	assert.NotEqual(t, src, dst)
	assert.Equal(t, ".wav", filepath.Ext(dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)

	_, err = copyToTemp(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestBuildRuntime(t *testing.T) {
	for _, mode := range []string{config.ContextHistory, config.ContextToken} {
		t.Run(mode, func(t *testing.T) {
			cfg := config.Default()
			cfg.OpenAIAPIKey = "sk-test"
			cfg.Generation.ContextMode = mode
			cfg.Playback.Backend = "mock"
			require.NoError(t, cfg.Validate())

			rt, err := build(context.Background(), cfg, log.Discard())
			require.NoError(t, err)
			defer rt.Close()

			p, err := rt.pipeline(cfg, voice.Callbacks{}, log.Discard())
			require.NoError(t, err)
			assert.Equal(t, mode, p.State().Context().Mode().String())
		})
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.Playback.Backend = "pulse"

	_, err := build(context.Background(), cfg, log.Discard())
	assert.ErrorContains(t, err, "playback")
}

func TestGoogleVoices(t *testing.T) {
	tests := []struct {
		name      string
		sc        config.Synthesis
		primary   string
		alternate string
	}{
		{"defaults", config.Default().Synthesis, "", ""},
		{"model names the voice", config.Synthesis{
			Model: "en-GB-Neural2-A", FallbackModel: config.DefaultSynthesisFallback, Voice: config.DefaultVoice,
		}, "en-GB-Neural2-A", ""},
		{"voice when model unset", config.Synthesis{
			Model: config.DefaultSynthesisModel, Voice: "en-US-Standard-C",
		}, "en-US-Standard-C", ""},
		{"model wins over voice", config.Synthesis{
			Model: "en-GB-Neural2-A", Voice: "en-US-Standard-C",
		}, "en-GB-Neural2-A", ""},
		{"fallback voice", config.Synthesis{
			Model: "en-US-Chirp3-HD-Achernar", FallbackModel: "en-US-Neural2-F",
		}, "en-US-Chirp3-HD-Achernar", "en-US-Neural2-F"},
		{"fallback same as primary", config.Synthesis{
			Model: "en-US-Neural2-F", FallbackModel: "en-US-Neural2-F",
		}, "en-US-Neural2-F", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, alternate := googleVoices(tt.sc)
			assert.Equal(t, tt.primary, primary)
			assert.Equal(t, tt.alternate, alternate)
		})
	}
}

func TestBuildGoogleSynthesis(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.GoogleAPIKey = "g-test"
	cfg.Synthesis.Provider = config.ProviderGoogle
	cfg.Synthesis.Model = "en-GB-Neural2-A"
	require.NoError(t, cfg.Validate())

	synth, err := buildTTS(context.Background(), cfg, log.Discard())
	require.NoError(t, err)
	defer synth.Close()
}

func TestConsoleCallbacks(t *testing.T) {
	var buf bytes.Buffer
	cb := consoleCallbacks(&buf)
	cb.OnTranscript("t", "hello")
	cb.OnReplyStart("t")
	cb.OnReplyChunk("t", "Hi")
	cb.OnReplyChunk("t", " there.")
	cb.OnReplyEnd("t", "Hi there.")

	assert.Equal(t, "you: hello\nassistant: Hi there.\n", buf.String())
}
