package audioio

import (
	"context"
	"errors"
	"io"
)

// ErrStreamClosed is returned when writing to a closed stream.
var ErrStreamClosed = errors.New("audioio: stream closed")

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Open starts a playback stream for one utterance.
	// The stream stays open across any number of writes so consecutive
	// sentences play without a start gap.
	Open(ctx context.Context) (Stream, error)

	// Config returns the output configuration.
	Config() Config

	// Name returns the backend name (e.g., "aplay", "mock").
	Name() string

	// Close releases all resources.
	io.Closer
}

// Stream is an open playback stream.
type Stream interface {
	// Write sends an audio chunk to the device, converting its rate and
	// channel count to the device's. It blocks while the device buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Close marks end of utterance and waits for buffered audio to play.
	// It is safe to call Close multiple times.
	Close() error

	// Abort stops playback immediately, discarding buffered audio.
	Abort() error
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	StreamsOpened  int64  `json:"streams_opened"`
	ChunksWritten  int64  `json:"chunks_written"`
	SamplesWritten int64  `json:"samples_written"`
	Playing        bool   `json:"playing"`
	Backend        string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
