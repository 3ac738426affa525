package stt

import (
	"context"
	"log/slog"
)

// Fallback calls a primary provider and, only when the primary rejects its
// model, makes exactly one call to an alternate. It never retries.
type Fallback struct {
	primary   Provider
	alternate Provider
	logger    *slog.Logger
}

// NewFallback wraps primary with a single alternate. A nil alternate
// makes the Fallback a pass-through with input validation.
func NewFallback(primary, alternate Provider, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary:   primary,
		alternate: alternate,
		logger:    logger.With("component", "stt.fallback"),
	}
}

// Transcribe validates audio, calls the primary and falls back once.
func (f *Fallback) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	t, err := f.primary.Transcribe(ctx, audio)
	if err == nil || f.alternate == nil || !IsModelRejected(err) {
		return t, err
	}
	f.logger.Warn("primary model rejected, using alternate", "error", err)

	t, altErr := f.alternate.Transcribe(ctx, audio)
	if altErr != nil {
		return nil, &FallbackError{Primary: err, Alternate: altErr}
	}
	return t, nil
}

// Health reports the primary's health.
func (f *Fallback) Health(ctx context.Context) error {
	return f.primary.Health(ctx)
}

// Close closes both providers.
func (f *Fallback) Close() error {
	err := f.primary.Close()
	if f.alternate != nil {
		if altErr := f.alternate.Close(); altErr != nil && err == nil {
			err = altErr
		}
	}
	return err
}

// Verify Fallback implements Provider at compile time.
var _ Provider = (*Fallback)(nil)
