package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"

	// openAIPCMRate is the fixed rate of response_format "pcm".
	openAIPCMRate = 24000

	streamChunkSize = 4800 // 100ms of 24kHz PCM16
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceNova    = "nova"
	VoiceOnyx    = "onyx"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelMiniTTS = "gpt-4o-mini-tts" // steerable via instructions
	ModelTTS1    = "tts-1"
	ModelTTS1HD  = "tts-1-hd"
)

// OpenAI implements Provider for the OpenAI speech endpoint.
// Audio is requested as raw 24kHz mono PCM16.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceAlloy
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.openai", "model", cfg.ModelID),
		baseURL: baseURL,
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	resp, err := o.post(ctx, text)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start).Milliseconds()
	format := o.outputFormat()

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  format.DurationOf(len(audio)),
		CharCount: len(text),
		LatencyMs: latency,
		Model:     o.config.ModelID,
	}, nil
}

// Stream converts text to audio and returns PCM chunks as the response
// body arrives.
func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	resp, err := o.post(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bodyStream{
		body:   resp.Body,
		format: o.outputFormat(),
		buf:    make([]byte, streamChunkSize),
	}, nil
}

func (o *OpenAI) post(ctx context.Context, text string) (*http.Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm",
	}
	if o.config.Instructions != "" && o.config.ModelID == ModelMiniTTS {
		payload["instructions"] = o.config.Instructions
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseOpenAIError(resp)
	}
	return resp, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseOpenAIError(resp)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// Model returns the configured model.
func (o *OpenAI) Model() string {
	return o.config.ModelID
}

// parseOpenAIError reads and parses an error response.
func parseOpenAIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

func (o *OpenAI) outputFormat() AudioFormat {
	return PCM16(openAIPCMRate)
}

// bodyStream reads an HTTP response body in PCM chunks of whole samples.
type bodyStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    []byte
	carry  int // odd trailing byte held at buf[0]
	closed bool
}

// Read returns the next audio chunk, or nil at end of stream.
func (s *bodyStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	for {
		n, err := s.body.Read(s.buf[s.carry:])
		total := s.carry + n
		if whole := total - total%2; whole > 0 {
			chunk := make([]byte, whole)
			copy(chunk, s.buf[:whole])
			s.carry = total - whole
			if s.carry > 0 {
				s.buf[0] = s.buf[whole]
			}
			return chunk, nil
		}
		s.carry = total
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("read stream: %w", err))
		}
	}
}

// Close releases the response body.
func (s *bodyStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// Format returns the audio format.
func (s *bodyStream) Format() AudioFormat {
	return s.format
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

// Read returns the whole buffer once, then nil.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	chunk := s.data[s.offset:]
	s.offset = len(s.data)
	return chunk, nil
}

// Close releases resources.
func (s *bufferStream) Close() error {
	return nil
}

// Format returns the audio format.
func (s *bufferStream) Format() AudioFormat {
	return s.format
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
