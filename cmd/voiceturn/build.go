package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-voiceturn/internal/config"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/inference"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// runtime holds everything built from a Config.
type runtime struct {
	stt  stt.Provider
	llm  inference.Provider
	tts  tts.Provider
	sink audioio.Sink
	prom *voice.PromMetrics
}

// Close releases provider resources.
func (r *runtime) Close() {
	r.stt.Close()
	r.llm.Close()
	r.tts.Close()
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	transcriber, err := buildSTT(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	generator, err := buildLLM(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	synth, err := buildTTS(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	sinkCfg := audioio.DefaultConfig()
	sinkCfg.Backend = audioio.Backend(cfg.Playback.Backend)
	sinkCfg.Device = cfg.Playback.Device
	sinkCfg.SampleRate = cfg.Playback.SampleRate
	sink, err := audioio.NewSink(sinkCfg, logger.With("component", "audioio"))
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}

	return &runtime{
		stt:  transcriber,
		llm:  generator,
		tts:  synth,
		sink: sink,
		prom: voice.NewPromMetrics(),
	}, nil
}

// pipeline creates the turn pipeline over r with cb attached.
func (r *runtime) pipeline(cfg config.Config, cb voice.Callbacks, logger *slog.Logger) (*voice.Pipeline, error) {
	mode, err := conversation.ParseMode(cfg.Generation.ContextMode)
	if err != nil {
		return nil, err
	}
	vc := voice.DefaultConfig()
	vc.ContextMode = mode
	vc.SystemPrompt = cfg.Generation.SystemPrompt
	vc.Streaming = cfg.Generation.StreamingEnabled()
	vc.SilenceTimeout = cfg.Conversation.SilenceTimeout
	vc.EndOnFailure = cfg.Conversation.EndOnFailure
	vc.Apology = cfg.Conversation.Apology

	metrics := voice.NewMetricsCollector()
	r.prom.Attach(metrics)

	return voice.New(vc, voice.Deps{
		STT:       r.stt,
		LLM:       r.llm,
		TTS:       r.tts,
		Sink:      r.sink,
		Callbacks: cb,
		Metrics:   metrics,
		Logger:    logger,
	})
}

func buildSTT(ctx context.Context, cfg config.Config, logger *slog.Logger) (stt.Provider, error) {
	tc := cfg.Transcription
	l := logger.With("component", "stt")

	switch tc.Provider {
	case config.ProviderGoogle:
		opts := []stt.Option{stt.WithAPIKey(cfg.GoogleAPIKey), stt.WithLogger(l)}
		if tc.Language != "" {
			opts = append(opts, stt.WithLanguage(tc.Language))
		}
		// OpenAI model names are the config defaults; Google keeps its own.
		if tc.Model != config.DefaultTranscriptionModel {
			opts = append(opts, stt.WithModel(tc.Model))
		}
		primary, err := stt.NewGoogle(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return stt.NewFallback(primary, nil, logger), nil

	default:
		newOpenAI := func(model string) (stt.Provider, error) {
			opts := []stt.Option{stt.WithAPIKey(cfg.OpenAIAPIKey), stt.WithModel(model), stt.WithLogger(l)}
			if tc.Language != "" {
				opts = append(opts, stt.WithLanguage(tc.Language))
			}
			return stt.NewOpenAI(opts...)
		}
		primary, err := newOpenAI(tc.Model)
		if err != nil {
			return nil, err
		}
		var alternate stt.Provider
		if tc.FallbackModel != "" && tc.FallbackModel != tc.Model {
			if alternate, err = newOpenAI(tc.FallbackModel); err != nil {
				return nil, err
			}
		}
		return stt.NewFallback(primary, alternate, logger), nil
	}
}

func buildLLM(cfg config.Config, logger *slog.Logger) (inference.Provider, error) {
	gc := cfg.Generation
	opts := []inference.Option{
		inference.WithAPIKey(cfg.OpenAIAPIKey),
		inference.WithModel(gc.Model),
		inference.WithLogger(logger.With("component", "inference")),
	}
	if gc.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(gc.BaseURL))
	}

	var (
		provider inference.Provider
		err      error
	)
	if gc.ContextMode == config.ContextToken {
		// The server keeps the conversation; responses must be stored.
		provider, err = inference.NewResponsesClient(append(opts, inference.WithStore(true))...)
	} else {
		provider, err = inference.NewClient(opts...)
	}
	if err != nil {
		return nil, err
	}
	return inference.NewFallback(provider, gc.FallbackModel, logger), nil
}

func buildTTS(ctx context.Context, cfg config.Config, logger *slog.Logger) (tts.Provider, error) {
	sc := cfg.Synthesis
	l := logger.With("component", "tts")

	switch sc.Provider {
	case config.ProviderGoogle:
		newGoogle := func(voiceName string) (tts.Provider, error) {
			opts := []tts.Option{
				tts.WithAPIKey(cfg.GoogleAPIKey),
				tts.WithSampleRate(cfg.Playback.SampleRate),
				tts.WithLogger(l),
			}
			if voiceName != "" {
				opts = append(opts, tts.WithModel(voiceName))
			}
			return tts.NewGoogle(ctx, opts...)
		}
		primaryVoice, alternateVoice := googleVoices(sc)
		primary, err := newGoogle(primaryVoice)
		if err != nil {
			return nil, err
		}
		var alternate tts.Provider
		if alternateVoice != "" {
			if alternate, err = newGoogle(alternateVoice); err != nil {
				return nil, err
			}
		}
		return tts.NewFallback(primary, alternate, logger), nil

	default:
		newOpenAI := func(model string) (tts.Provider, error) {
			opts := []tts.Option{
				tts.WithAPIKey(cfg.OpenAIAPIKey),
				tts.WithModel(model),
				tts.WithVoice(sc.Voice),
				tts.WithLogger(l),
			}
			if sc.Instructions != "" {
				opts = append(opts, tts.WithInstructions(sc.Instructions))
			}
			return tts.NewOpenAI(opts...)
		}
		primary, err := newOpenAI(sc.Model)
		if err != nil {
			return nil, err
		}
		var alternate tts.Provider
		if sc.FallbackModel != "" && sc.FallbackModel != sc.Model {
			if alternate, err = newOpenAI(sc.FallbackModel); err != nil {
				return nil, err
			}
		}
		return tts.NewFallback(primary, alternate, logger), nil
	}
}

// googleVoices maps synthesis settings onto Google voice names. Google
// selects audio by voice name, so synthesis.model names the voice and
// synthesis.fallback_model the alternate voice. The OpenAI defaults mean
// unset; synthesis.voice is honored when synthesis.model is unset. An
// empty primary keeps the provider's default voice.
func googleVoices(sc config.Synthesis) (primary, alternate string) {
	switch {
	case sc.Model != "" && sc.Model != config.DefaultSynthesisModel:
		primary = sc.Model
	case sc.Voice != "" && sc.Voice != config.DefaultVoice:
		primary = sc.Voice
	}
	if sc.FallbackModel != "" && sc.FallbackModel != config.DefaultSynthesisFallback && sc.FallbackModel != primary {
		alternate = sc.FallbackModel
	}
	return primary, alternate
}
