package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// TurnCmd runs a single turn against a recording on disk.
// Usage: voiceturn turn -f config.yaml --file utterance.wav
type TurnCmd struct {
	File string `long:"file" description:"WAV recording of the user's utterance" required:"true"`
}

func (t *TurnCmd) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := build(ctx, cfg, log.L())
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.pipeline(cfg, consoleCallbacks(os.Stdout), log.L())
	if err != nil {
		return err
	}

	// The pipeline deletes the recording it is handed.
	path, err := copyToTemp(t.File)
	if err != nil {
		return err
	}

	res, err := p.RunTurn(ctx, voice.Utterance{Path: path})
	if err != nil {
		return err
	}
	fmt.Printf("[%s] %s\n", res.Outcome, res.Metrics.FormatLatency())
	if res.Outcome == voice.OutcomeError {
		return res.Err
	}
	return nil
}

// consoleCallbacks prints the conversation to w as it happens.
func consoleCallbacks(w io.Writer) voice.Callbacks {
	return voice.Callbacks{
		OnTranscript: func(_, text string) { fmt.Fprintf(w, "you: %s\n", text) },
		OnNoSpeech:   func(string) { fmt.Fprintln(w, "(no speech)") },
		OnReplyStart: func(string) { fmt.Fprint(w, "assistant: ") },
		OnReplyChunk: func(_, text string) { fmt.Fprint(w, text) },
		OnReplyEnd:   func(_, _ string) { fmt.Fprintln(w) },
		OnError:      func(_ string, err error) { fmt.Fprintf(w, "error: %v\n", err) },
	}
}

// copyToTemp copies src to a new temporary file and returns its path.
func copyToTemp(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp("", "voiceturn-*"+filepath.Ext(src))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
