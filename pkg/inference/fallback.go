package inference

import (
	"context"
	"log/slog"
)

// Fallback implements Provider by calling the wrapped provider with the
// request's model and, only when that model is rejected, repeating the
// call exactly once with the fallback model. Any other failure is
// returned as is; Fallback never retries.
type Fallback struct {
	provider      Provider
	fallbackModel string
	logger        *slog.Logger
}

// NewFallback wraps provider with a single fallback model. An empty
// fallbackModel makes the Fallback a pass-through.
func NewFallback(provider Provider, fallbackModel string, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		provider:      provider,
		fallbackModel: fallbackModel,
		logger:        logger.With("component", "inference.fallback"),
	}
}

// Chat generates a reply, falling back once on model rejection.
func (f *Fallback) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := f.provider.Chat(ctx, req)
	if err == nil || !f.shouldFallback(req, err) {
		return resp, err
	}
	f.logger.Warn("model rejected, using fallback model", "error", err, "fallback_model", f.fallbackModel)

	resp, altErr := f.provider.Chat(ctx, f.alternate(req))
	if altErr != nil {
		return nil, &FallbackError{Primary: err, Alternate: altErr}
	}
	return resp, nil
}

// Stream opens a reply stream, falling back once on model rejection.
// Rejection is only observable when the stream is opened; failures
// after the first delta are returned to the caller unchanged.
func (f *Fallback) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	stream, err := f.provider.Stream(ctx, req)
	if err == nil || !f.shouldFallback(req, err) {
		return stream, err
	}
	f.logger.Warn("model rejected, streaming from fallback model", "error", err, "fallback_model", f.fallbackModel)

	stream, altErr := f.provider.Stream(ctx, f.alternate(req))
	if altErr != nil {
		return nil, &FallbackError{Primary: err, Alternate: altErr}
	}
	return stream, nil
}

func (f *Fallback) shouldFallback(req *ChatRequest, err error) bool {
	return f.fallbackModel != "" && req.Model != f.fallbackModel && IsModelRejected(err)
}

func (f *Fallback) alternate(req *ChatRequest) *ChatRequest {
	alt := *req
	alt.Model = f.fallbackModel
	return &alt
}

// Health reports the wrapped provider's health.
func (f *Fallback) Health(ctx context.Context) error {
	return f.provider.Health(ctx)
}

// Close closes the wrapped provider.
func (f *Fallback) Close() error {
	return f.provider.Close()
}

// Verify Fallback implements Provider at compile time.
var _ Provider = (*Fallback)(nil)
