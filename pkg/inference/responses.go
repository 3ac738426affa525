package inference

import (
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

const providerResponses = "responses"

// ResponsesClient is the Responses API provider. Context travels as a
// continuation token: each reply carries a response ID that the next
// request passes as previous_response_id, so only the new user turn is
// sent over the wire.
type ResponsesClient struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// NewResponsesClient creates a new Responses API client.
func NewResponsesClient(opts ...Option) (*ResponsesClient, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ResponsesClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "inference.responses"),
	}, nil
}

// Model returns the default model.
func (c *ResponsesClient) Model() string {
	return c.config.Model
}

// Chat creates a response in one block.
func (c *ResponsesClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	resp, err := postJSON(ctx, c.http, c.baseURL+"/responses", c.apiKey, c.buildPayload(req, false), providerResponses)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp, providerResponses)
	}

	var result responseObject
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerResponses, fmt.Errorf("decode response: %w", err))
	}
	if result.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: result.Error.Message, Code: result.Error.Code, Provider: providerResponses}
	}

	c.logger.Debug("response completed", "id", result.ID, "model", result.Model, "latency_ms", time.Since(start).Milliseconds())

	return &ChatResponse{
		Message:      NewAssistantMessage(result.text()),
		FinishReason: result.Status,
		ResponseID:   result.ID,
		Usage: Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		Model:     result.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream creates a streaming response. The final chunk carries the
// response ID for the next turn.
func (c *ResponsesClient) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	resp, err := postJSON(ctx, c.stream, c.baseURL+"/responses", c.apiKey, c.buildPayload(req, true), providerResponses)
	if err != nil {
		return nil, WrapError(providerResponses, fmt.Errorf("stream request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(resp, providerResponses)
	}

	return &responsesStream{sse: newSSEReader(resp.Body)}, nil
}

// Health checks API connectivity.
func (c *ResponsesClient) Health(ctx context.Context) error {
	return health(ctx, c.http, c.baseURL, c.apiKey, providerResponses)
}

// Close releases resources.
func (c *ResponsesClient) Close() error {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

func (c *ResponsesClient) buildPayload(req *ChatRequest, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	input := make([]map[string]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		input = append(input, map[string]any{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}

	payload := map[string]any{
		"model": model,
		"input": input,
		"store": c.config.Store,
	}
	if stream {
		payload["stream"] = true
	}
	if req.Instructions != "" {
		payload["instructions"] = req.Instructions
	}
	if req.PreviousResponseID != "" {
		payload["previous_response_id"] = req.PreviousResponseID
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		payload["max_output_tokens"] = maxTokens
	}

	temp := req.Temperature
	if temp == 0 {
		temp = c.config.Temperature
	}
	if temp > 0 {
		payload["temperature"] = temp
	}
	return payload
}

// responsesStream implements Stream for Responses API SSE events.
type responsesStream struct {
	sse  *sseReader
	id   string
	done bool
}

// Recv returns the next text delta. Lifecycle events other than text
// deltas are consumed silently; response.completed ends the stream.
func (s *responsesStream) Recv() (*StreamChunk, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	for {
		data, err := s.sse.next()
		if err == io.EOF {
			s.done = true
			return nil, WrapError(providerResponses, ErrStreamTruncated)
		}
		if err != nil {
			return nil, WrapError(providerResponses, fmt.Errorf("read stream: %w", err))
		}

		var event responseEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Response != nil && event.Response.ID != "" {
			s.id = event.Response.ID
		}

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta == "" {
				continue
			}
			return &StreamChunk{Delta: event.Delta}, nil
		case "response.completed", "response.incomplete":
			s.done = true
			chunk := &StreamChunk{ResponseID: s.id, Done: true}
			if event.Response != nil {
				chunk.FinishReason = event.Response.Status
			}
			return chunk, nil
		case "response.failed":
			s.done = true
			if event.Response != nil && event.Response.Error != nil {
				return nil, &APIError{Message: event.Response.Error.Message, Code: event.Response.Error.Code, Provider: providerResponses}
			}
			return nil, WrapError(providerResponses, fmt.Errorf("response failed"))
		case "error":
			s.done = true
			return nil, &APIError{Message: event.Message, Code: event.Code, Provider: providerResponses}
		}
	}
}

// Close stops the stream.
func (s *responsesStream) Close() error {
	s.done = true
	return s.sse.close()
}

type responseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type responseObject struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Status string         `json:"status"`
	Error  *responseError `json:"error"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// text concatenates every output_text part of every message item.
func (r *responseObject) text() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String()
}

type responseEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta"`
	Message  string          `json:"message"`
	Code     string          `json:"code"`
	Response *responseObject `json:"response"`
}

// Verify ResponsesClient implements Provider at compile time.
var _ Provider = (*ResponsesClient)(nil)
