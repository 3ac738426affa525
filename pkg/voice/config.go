package voice

import (
	"errors"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/conversation"
)

// DefaultApology is spoken when a reply cannot be generated.
const DefaultApology = "Sorry, I ran into a technical problem."

// Config holds the turn pipeline's tunable behaviour.
type Config struct {
	// ContextMode selects history or continuation-token context. Fixed for
	// the pipeline's lifetime.
	ContextMode conversation.Mode

	// SystemPrompt is sent with every generation request and never stored
	// in the conversation context.
	SystemPrompt string

	// Streaming requests incremental deltas. When false the reply arrives
	// as one block and is handled as a single delta.
	Streaming bool

	// SilenceTimeout ends the conversation when no utterance follows a turn.
	SilenceTimeout time.Duration

	// EndOnFailure ends the conversation after a transcription or
	// generation failure instead of waiting for the next utterance.
	EndOnFailure bool

	// Apology is spoken in place of a reply that failed to generate.
	Apology string

	// QueueDepth bounds how many sentences may wait for synthesis.
	QueueDepth int
}

// DefaultConfig returns the non-destructive defaults.
func DefaultConfig() Config {
	return Config{
		ContextMode:    conversation.ModeHistory,
		Streaming:      true,
		SilenceTimeout: conversation.DefaultSilenceTimeout,
		Apology:        DefaultApology,
		QueueDepth:     8,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SilenceTimeout <= 0 {
		return errors.New("voice: silence timeout must be positive")
	}
	if c.QueueDepth < 0 {
		return errors.New("voice: queue depth must not be negative")
	}
	return nil
}
