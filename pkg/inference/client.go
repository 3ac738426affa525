package inference

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

const providerClient = "client"

// Client is the Chat Completions provider. Context travels as message
// history in every request. Works with any OpenAI-compatible API
// (OpenAI, Ollama, vLLM, Groq, etc.).
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// NewClient creates a new Chat Completions client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.config.Model
}

// Chat generates a chat completion in one block.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	model := c.model(req)

	resp, err := c.post(ctx, c.http, "/chat/completions", c.buildChatPayload(req, model, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp, providerClient)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, WrapError(providerClient, ErrEmptyReply)
	}

	choice := result.Choices[0]
	c.logger.Debug("chat completed", "model", result.Model, "latency_ms", time.Since(start).Milliseconds())

	return &ChatResponse{
		Message:      NewAssistantMessage(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		Model:     result.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks API connectivity.
func (c *Client) Health(ctx context.Context) error {
	return health(ctx, c.http, c.baseURL, c.apiKey, providerClient)
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

func (c *Client) model(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.config.Model
}

// buildChatPayload constructs the API request payload. Instructions become
// a leading system message and are never part of the caller's history.
func (c *Client) buildChatPayload(req *ChatRequest, model string, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, map[string]any{
			"role":    string(RoleSystem),
			"content": req.Instructions,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, map[string]any{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if stream {
		payload["stream"] = true
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
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

// post makes a single JSON POST request. Failed requests are not retried.
func (c *Client) post(ctx context.Context, client *http.Client, path string, payload any) (*http.Response, error) {
	return postJSON(ctx, client, c.baseURL+path, c.apiKey, payload, providerClient)
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload any, provider string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(provider, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, WrapError(provider, err)
	}
	return resp, nil
}

func health(ctx context.Context, client *http.Client, baseURL, apiKey, provider string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return WrapError(provider, fmt.Errorf("create request: %w", err))
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return WrapError(provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp, provider)
	}
	return nil
}

// parseError reads and parses an OpenAI-style error response.
func parseError(resp *http.Response, provider string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}

// API response types
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Verify Client implements Provider at compile time.
var _ Provider = (*Client)(nil)
