// Package tts provides a unified interface for text-to-speech providers.
//
// Providers return raw PCM16 audio so replies can be written straight to a
// playback device sentence by sentence. OpenAI speech and Google Cloud
// Text-to-Speech are supported, and a Fallback wraps a primary provider
// with exactly one alternate attempt when the primary model is rejected.
//
// Example usage:
//
//	primary, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithModel(tts.ModelMiniTTS),
//	    tts.WithVoice(tts.VoiceAlloy),
//	)
//	alternate, _ := tts.NewOpenAI(tts.WithAPIKey(key), tts.WithModel(tts.ModelTTS1))
//	provider := tts.NewFallback(primary, alternate, nil)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world.")
//	// result.Audio holds 24kHz mono PCM16
package tts

import (
	"context"
	"strings"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio, returning chunks as they arrive.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk.
	// Returns nil when the stream is complete (not an error).
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request latency in milliseconds.
	LatencyMs int64

	// Model is the model or voice that actually produced the audio.
	Model string
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCM16 returns a mono 16-bit PCM format at the given rate.
func PCM16(sampleRate int) AudioFormat {
	return AudioFormat{
		Encoding:   EncodingFromSampleRate(sampleRate),
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// BytesPerSecond returns the PCM byte rate, or 0 for compressed formats.
func (f AudioFormat) BytesPerSecond() int {
	if f.BitDepth == 0 || f.Channels == 0 {
		return 0
	}
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// DurationOf returns the playback duration of n bytes in this format.
func (f AudioFormat) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Encoding represents audio encoding types.
type Encoding string

const (
	// PCM formats (raw little-endian mono PCM16)
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000" // OpenAI speech "pcm" output
	EncodingPCM44 Encoding = "pcm_44100"

	// Compressed formats
	EncodingMP3 Encoding = "mp3_44100_128"
)

// IsPCM reports whether the encoding is raw PCM16.
func (e Encoding) IsPCM() bool {
	return strings.HasPrefix(string(e), "pcm_")
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// EncodingFromSampleRate maps a PCM sample rate to its encoding name.
func EncodingFromSampleRate(rate int) Encoding {
	switch rate {
	case 16000:
		return EncodingPCM16
	case 22050:
		return EncodingPCM22
	case 44100:
		return EncodingPCM44
	default:
		return EncodingPCM24
	}
}
