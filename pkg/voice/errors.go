package voice

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when an utterance arrives while a turn is in flight.
// The utterance is discarded, not queued.
var ErrBusy = errors.New("voice: turn in progress")

// Kind classifies a turn failure.
type Kind string

const (
	// KindTranscription means the transcription service failed. The turn
	// continues as if no speech was heard.
	KindTranscription Kind = "transcription"
	// KindGeneration means the reply could not be generated. An apology
	// is spoken instead.
	KindGeneration Kind = "generation"
	// KindSynthesis means one sentence could not be synthesized and was
	// skipped.
	KindSynthesis Kind = "synthesis"
	// KindPlayback means the audio device failed during the turn.
	KindPlayback Kind = "playback"
)

// TurnError wraps a failure with the stage that produced it.
type TurnError struct {
	Kind   Kind
	TurnID string
	Err    error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	return fmt.Sprintf("voice: %s failure in turn %s: %v", e.Kind, e.TurnID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a TurnError of kind k.
func IsKind(err error, k Kind) bool {
	var te *TurnError
	return errors.As(err, &te) && te.Kind == k
}
