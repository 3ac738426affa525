package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Fallback implements Provider by calling a primary provider and, only when
// the primary rejects its model, making exactly one call to an alternate.
// Any other failure is returned as is; Fallback never retries.
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
		logger:    logger.With("component", "tts.fallback"),
	}
}

// Synthesize validates text, calls the primary and falls back once.
func (f *Fallback) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	result, err := f.primary.Synthesize(ctx, text)
	if err == nil || !f.shouldFallback(err) {
		return result, err
	}
	f.logger.Warn("primary model rejected, using alternate", "error", err, "chars", len(text))

	result, altErr := f.alternate.Synthesize(ctx, text)
	if altErr != nil {
		return nil, &FallbackError{Primary: err, Alternate: altErr}
	}
	return result, nil
}

// Stream validates text, opens a primary stream and falls back once.
func (f *Fallback) Stream(ctx context.Context, text string) (AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	stream, err := f.primary.Stream(ctx, text)
	if err == nil || !f.shouldFallback(err) {
		return stream, err
	}
	f.logger.Warn("primary model rejected, streaming from alternate", "error", err, "chars", len(text))

	stream, altErr := f.alternate.Stream(ctx, text)
	if altErr != nil {
		return nil, &FallbackError{Primary: err, Alternate: altErr}
	}
	return stream, nil
}

func (f *Fallback) shouldFallback(err error) bool {
	return f.alternate != nil && IsModelRejected(err)
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

// FallbackError records both failures when the alternate also failed.
type FallbackError struct {
	Primary   error
	Alternate error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	return fmt.Sprintf("tts fallback: primary: %v; alternate: %v", e.Primary, e.Alternate)
}

// Unwrap returns both errors so errors.Is/As see either.
func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Alternate}
}

// Verify Fallback implements Provider at compile time.
var _ Provider = (*Fallback)(nil)
