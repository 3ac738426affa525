package stt

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
	"google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const providerGoogle = "google"

// Google recognition models.
const (
	GoogleModelLatestShort = "latest_short"
	GoogleModelLatestLong  = "latest_long"
	GoogleModelCommand     = "command_and_search"
)

// Google implements Provider for Google Cloud Speech-to-Text (v1 REST).
type Google struct {
	config  *Config
	service *speech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud Speech provider. With an API key it
// authenticates by key; without one it uses application default credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.ModelID = GoogleModelLatestShort
	cfg.Language = "en-US"
	cfg.Apply(opts...)
	if cfg.ModelID == "" {
		return nil, ErrNoModel
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.BaseURL != "":
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL), option.WithoutAuthentication())
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		ts, err := google.DefaultTokenSource(ctx, speech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("default credentials: %w", err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "stt.google", "model", cfg.ModelID),
	}, nil
}

// Transcribe sends the recording inline and joins the top alternatives.
func (g *Google) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyAudio
	}
	start := time.Now()

	rc := &speech.RecognitionConfig{
		LanguageCode:               g.config.Language,
		Model:                      g.config.ModelID,
		EnableAutomaticPunctuation: true,
	}
	data := audio.Data
	switch audio.Format() {
	case "wav":
		// LINEAR16 WAV: the service reads rate and channels from the header
		if pcm, info, err := audioio.ParseWAV(audio.Data); err == nil {
			data = pcm
			rc.Encoding = "LINEAR16"
			rc.SampleRateHertz = int64(info.SampleRate)
			rc.AudioChannelCount = int64(info.Channels)
		}
	case "pcm":
		rc.Encoding = "LINEAR16"
		rc.SampleRateHertz = int64(max(audio.SampleRate, 16000))
	case "flac":
		rc.Encoding = "FLAC"
	case "mp3":
		rc.Encoding = "MP3"
	case "ogg", "opus":
		rc.Encoding = "OGG_OPUS"
	}

	req := &speech.RecognizeRequest{
		Config: rc,
		Audio:  &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(data)},
	}
	resp, err := g.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return nil, googleError(err)
	}

	var parts []string
	lang := g.config.Language
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		if r.LanguageCode != "" {
			lang = r.LanguageCode
		}
	}

	t := &Transcript{
		Text:      strings.TrimSpace(strings.Join(parts, " ")),
		Language:  lang,
		LatencyMs: since(start),
		Model:     g.config.ModelID,
	}
	g.logger.Debug("transcribed", "chars", len(t.Text), "results", len(resp.Results), "latency_ms", t.LatencyMs)
	return t, nil
}

// Health reports whether the service client was created. The REST API has
// no cheap authenticated no-op call.
func (g *Google) Health(ctx context.Context) error {
	if g.service == nil {
		return WrapError(providerGoogle, ErrProviderUnavailable)
	}
	return nil
}

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

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

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
