// Package config loads go-voiceturn configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultGenerationModel         = "gpt-4o-mini"
	DefaultGenerationFallbackModel = "gpt-4.1-mini"
	DefaultTranscriptionModel      = "gpt-4o-mini-transcribe"
	DefaultTranscriptionFallback   = "whisper-1"
	DefaultSynthesisModel          = "gpt-4o-mini-tts"
	DefaultSynthesisFallback       = "tts-1"
	DefaultVoice                   = "alloy"
	DefaultPlaybackDevice          = "default"
	DefaultSampleRate              = 24000
	DefaultSilenceTimeout          = 15 * time.Second
	DefaultListen                  = ":8080"
	DefaultApology                 = "Sorry, I ran into a technical problem."
)

// Provider names accepted for transcription and synthesis.
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// Context modes for generation.
const (
	ContextHistory = "history"
	ContextToken   = "token"
)

// Config is the full process configuration.
type Config struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	GoogleAPIKey string `yaml:"google_api_key"`

	Generation    Generation    `yaml:"generation"`
	Transcription Transcription `yaml:"transcription"`
	Synthesis     Synthesis     `yaml:"synthesis"`
	Playback      Playback      `yaml:"playback"`
	Conversation  Conversation  `yaml:"conversation"`
	Capture       Capture       `yaml:"capture"`

	Listen string `yaml:"listen"`
	Debug  bool   `yaml:"debug"`
}

// Generation configures the reply model.
type Generation struct {
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	ContextMode   string `yaml:"context_mode"`
	SystemPrompt  string `yaml:"system_prompt"`
	// Streaming is a pointer so an absent key keeps the default of true.
	Streaming *bool  `yaml:"streaming"`
	BaseURL   string `yaml:"base_url"`
}

// Transcription configures speech-to-text.
type Transcription struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	Language      string `yaml:"language"`
}

// Synthesis configures text-to-speech.
type Synthesis struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	Voice         string `yaml:"voice"`
	Instructions  string `yaml:"instructions"`
}

// Playback configures the audio output device.
type Playback struct {
	Backend    string `yaml:"backend"`
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
}

// Conversation configures turn and lifetime policy.
type Conversation struct {
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	EndOnFailure   bool          `yaml:"end_on_failure"`
	Apology        string        `yaml:"apology"`
}

// Capture configures the capture collaborator bridge.
type Capture struct {
	// SpoolDir receives inline recordings and bounds recording paths sent
	// over the network. Recordings outside it are refused.
	SpoolDir string `yaml:"spool_dir"`
}

// Default returns a Config with every default applied.
func Default() Config {
	streaming := true
	return Config{
		Generation: Generation{
			Model:         DefaultGenerationModel,
			FallbackModel: DefaultGenerationFallbackModel,
			ContextMode:   ContextHistory,
			Streaming:     &streaming,
		},
		Transcription: Transcription{
			Provider:      ProviderOpenAI,
			Model:         DefaultTranscriptionModel,
			FallbackModel: DefaultTranscriptionFallback,
		},
		Synthesis: Synthesis{
			Provider:      ProviderOpenAI,
			Model:         DefaultSynthesisModel,
			FallbackModel: DefaultSynthesisFallback,
			Voice:         DefaultVoice,
		},
		Playback: Playback{
			Backend:    "aplay",
			Device:     DefaultPlaybackDevice,
			SampleRate: DefaultSampleRate,
		},
		Conversation: Conversation{
			SilenceTimeout: DefaultSilenceTimeout,
			Apology:        DefaultApology,
		},
		Capture: Capture{
			SpoolDir: DefaultSpoolDir(),
		},
		Listen: DefaultListen,
	}
}

// DefaultSpoolDir is the spool directory used when none is configured.
func DefaultSpoolDir() string {
	return filepath.Join(os.TempDir(), "voiceturn")
}

// Load reads path (if non-empty), overlays it on the defaults and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.GoogleAPIKey = v
	}
	if v := os.Getenv("VOICETURN_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("VOICETURN_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// fillDefaults restores defaults for keys a YAML file set to empty values.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Generation.Model == "" {
		c.Generation.Model = d.Generation.Model
	}
	if c.Generation.ContextMode == "" {
		c.Generation.ContextMode = d.Generation.ContextMode
	}
	if c.Generation.Streaming == nil {
		c.Generation.Streaming = d.Generation.Streaming
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = d.Transcription.Provider
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = d.Transcription.Model
	}
	if c.Synthesis.Provider == "" {
		c.Synthesis.Provider = d.Synthesis.Provider
	}
	if c.Synthesis.Model == "" {
		c.Synthesis.Model = d.Synthesis.Model
	}
	if c.Synthesis.Voice == "" {
		c.Synthesis.Voice = d.Synthesis.Voice
	}
	if c.Playback.Backend == "" {
		c.Playback.Backend = d.Playback.Backend
	}
	if c.Playback.Device == "" {
		c.Playback.Device = d.Playback.Device
	}
	if c.Playback.SampleRate == 0 {
		c.Playback.SampleRate = d.Playback.SampleRate
	}
	if c.Conversation.SilenceTimeout == 0 {
		c.Conversation.SilenceTimeout = d.Conversation.SilenceTimeout
	}
	if c.Conversation.Apology == "" {
		c.Conversation.Apology = d.Conversation.Apology
	}
	if c.Capture.SpoolDir == "" {
		c.Capture.SpoolDir = d.Capture.SpoolDir
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
}

// StreamingEnabled reports whether generation should stream deltas.
func (g Generation) StreamingEnabled() bool {
	return g.Streaming == nil || *g.Streaming
}

// LogLevel returns the slog level name implied by the debug flag.
func (c Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return "info"
}

// Validate checks the configuration for missing or invalid values.
func (c Config) Validate() error {
	var errs []error

	// Generation always speaks the OpenAI wire format; a custom base URL may not need a key.
	if c.OpenAIAPIKey == "" && c.Generation.BaseURL == "" {
		errs = append(errs, errors.New("openai_api_key is required (or set OPENAI_API_KEY)"))
	}

	switch c.Generation.ContextMode {
	case ContextHistory, ContextToken:
	default:
		errs = append(errs, fmt.Errorf("generation.context_mode must be %q or %q, got %q",
			ContextHistory, ContextToken, c.Generation.ContextMode))
	}
	for name, p := range map[string]string{
		"transcription.provider": c.Transcription.Provider,
		"synthesis.provider":     c.Synthesis.Provider,
	} {
		if p != ProviderOpenAI && p != ProviderGoogle {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", name, ProviderOpenAI, ProviderGoogle, p))
		}
	}
	if c.Conversation.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("conversation.silence_timeout must be positive, got %v", c.Conversation.SilenceTimeout))
	}
	if c.Capture.SpoolDir == "" {
		errs = append(errs, errors.New("capture.spool_dir is required"))
	}
	if c.Playback.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate must be positive, got %d", c.Playback.SampleRate))
	}

	return errors.Join(errs...)
}
