package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const providerGoogle = "google"

// Google voice options. For Google the voice name plays the role of the
// model identifier, so ModelID selects the voice and VoiceID is ignored.
const (
	GoogleVoiceChirpHD    = "en-US-Chirp3-HD-Achernar"
	GoogleVoiceNeural2    = "en-US-Neural2-F"
	GoogleVoiceStandard   = "en-US-Standard-C"
	googleDefaultLanguage = "en-US"
)

// Google implements Provider for Google Cloud Text-to-Speech.
// Audio is requested as LINEAR16 at the configured sample rate.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud Text-to-Speech provider.
// With an API key it authenticates by key; without one it uses
// application default credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.ModelID = GoogleVoiceNeural2
	cfg.Apply(opts...)
	if cfg.ModelID == "" {
		return nil, ErrNoModel
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = languageFromVoice(cfg.ModelID)
	}

	clientOpts := []option.ClientOption{}
	switch {
	case cfg.BaseURL != "":
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL), option.WithoutAuthentication())
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		ts, err := google.DefaultTokenSource(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("default credentials: %w", err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google", "voice", cfg.ModelID),
	}, nil
}

// Synthesize converts text to PCM16 audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.ModelID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(g.config.SampleRate),
		},
	}

	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, googleError(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	rate := g.config.SampleRate
	if pcm, info, err := audioio.ParseWAV(audio); err == nil {
		audio = pcm
		if info.SampleRate > 0 {
			rate = info.SampleRate
		}
	}
	format := PCM16(rate)
	latency := time.Since(start).Milliseconds()

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  format.DurationOf(len(audio)),
		CharCount: len(text),
		LatencyMs: latency,
		Model:     g.config.ModelID,
	}, nil
}

// Stream synthesizes the whole fragment and returns it as one chunk.
// The REST API has no streaming synthesis.
func (g *Google) Stream(ctx context.Context, text string) (AudioStream, error) {
	result, err := g.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	_, err := g.service.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do()
	if err != nil {
		return googleError(err)
	}
	return nil
}

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

// googleError converts a googleapi error into an APIError.
func googleError(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return WrapError(providerGoogle, err)
	}
	code := ""
	if len(gErr.Errors) > 0 {
		code = gErr.Errors[0].Reason
	}
	return &APIError{
		StatusCode: gErr.Code,
		Message:    gErr.Message,
		Code:       code,
		Provider:   providerGoogle,
	}
}

// languageFromVoice derives "en-US" from "en-US-Neural2-F".
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 {
		return googleDefaultLanguage
	}
	return parts[0] + "-" + parts[1]
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
