package stt

import (
	"log/slog"
	"time"
)

// OpenAI transcription models.
const (
	ModelMiniTranscribe = "gpt-4o-mini-transcribe"
	ModelTranscribe     = "gpt-4o-transcribe"
	ModelWhisper1       = "whisper-1"
)

// Config holds STT provider configuration.
type Config struct {
	APIKey  string
	BaseURL string

	ModelID  string
	Language string
	// Prompt biases recognition toward expected vocabulary.
	Prompt string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring STT providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(c *Config) { c.ModelID = model }
}

// WithLanguage sets the expected language (ISO-639-1 for OpenAI, BCP-47 for Google).
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithPrompt sets a recognition prompt.
func WithPrompt(prompt string) Option {
	return func(c *Config) { c.Prompt = prompt }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		ModelID: ModelMiniTranscribe,
		Timeout: 60 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.ModelID == "" {
		return ErrNoModel
	}
	return nil
}
