// Package stt provides a unified interface for speech-to-text providers.
//
// A Provider turns one finished recording into a transcript. OpenAI
// transcription (multipart upload) and Google Cloud Speech are supported.
// Fallback wraps a primary provider with exactly one alternate attempt when
// the primary model is rejected.
package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// Provider defines the STT provider interface.
type Provider interface {
	// Transcribe returns the best-effort transcript of a finished recording.
	// A recording with no speech yields an empty Text and no error.
	Transcribe(ctx context.Context, audio Audio) (*Transcript, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Audio is a finished recording.
type Audio struct {
	// Data is the encoded recording (WAV, MP3, ...) or raw PCM16.
	Data []byte

	// Filename carries the container type to the service, e.g. "rec.wav".
	Filename string

	// SampleRate and Channels describe raw PCM16 data. They are ignored
	// for self-describing containers.
	SampleRate int
	Channels   int
}

// LoadFile reads a recording from disk.
func LoadFile(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, fmt.Errorf("read recording: %w", err)
	}
	return Audio{Data: data, Filename: filepath.Base(path)}, nil
}

// Format returns the lower-case container extension, "pcm" for raw audio.
func (a Audio) Format() string {
	if audioio.IsWAV(a.Data) {
		return "wav"
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(a.Filename)), ".")
	if ext == "" || ext == "raw" {
		return "pcm"
	}
	return ext
}

// upload returns bytes and a filename the service accepts. Raw PCM is
// wrapped in a WAV header.
func (a Audio) upload() ([]byte, string) {
	if a.Format() != "pcm" {
		name := a.Filename
		if name == "" {
			name = "audio." + a.Format()
		}
		return a.Data, name
	}
	rate, ch := a.SampleRate, a.Channels
	if rate == 0 {
		rate = 16000
	}
	if ch == 0 {
		ch = 1
	}
	return audioio.EncodeWAV(a.Data, rate, ch), "audio.wav"
}

// Transcript is the result of a transcription.
type Transcript struct {
	// Text is the transcript, trimmed. Empty means no speech was found.
	Text string

	// Language is the detected or configured language, if known.
	Language string

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64

	// Model is the model that produced the transcript.
	Model string
}

// Empty reports whether the transcript holds no speech.
func (t *Transcript) Empty() bool {
	return t == nil || strings.TrimSpace(t.Text) == ""
}

func since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
