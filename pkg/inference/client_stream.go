package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Stream returns a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	model := c.model(req)

	resp, err := c.post(ctx, c.stream, "/chat/completions", c.buildChatPayload(req, model, true))
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("stream request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(resp, providerClient)
	}

	return &clientStream{sse: newSSEReader(resp.Body)}, nil
}

// clientStream implements Stream for Chat Completions SSE responses.
type clientStream struct {
	sse    *sseReader
	finish string
	done   bool
}

// Recv returns the next stream chunk. Events that carry no text are
// skipped, so every non-final chunk has a non-empty Delta.
func (s *clientStream) Recv() (*StreamChunk, error) {
	if s.done {
		return nil, ErrStreamClosed
	}
	for {
		data, err := s.sse.next()
		if err == io.EOF {
			s.done = true
			return nil, WrapError(providerClient, ErrStreamTruncated)
		}
		if err != nil {
			return nil, WrapError(providerClient, fmt.Errorf("read stream: %w", err))
		}
		if data == "[DONE]" {
			s.done = true
			return &StreamChunk{FinishReason: s.finish, Done: true}, nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed events
			continue
		}
		if event.Error != nil {
			return nil, &APIError{Message: event.Error.Message, Code: event.Error.Code, Provider: providerClient}
		}
		if len(event.Choices) == 0 {
			continue
		}

		choice := event.Choices[0]
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		return &StreamChunk{Delta: choice.Delta.Content}, nil
	}
}

// Close stops the stream.
func (s *clientStream) Close() error {
	s.done = true
	return s.sse.close()
}

// streamEvent is the Chat Completions SSE event format.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// sseReader yields the data payload of each server-sent event line.
type sseReader struct {
	reader *bufio.Reader
	body   io.ReadCloser
	once   sync.Once
}

func newSSEReader(body io.ReadCloser) *sseReader {
	return &sseReader{reader: bufio.NewReader(body), body: body}
}

// next returns the next "data:" payload, or io.EOF at end of body.
func (r *sseReader) next() (string, error) {
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}

		line = strings.TrimSpace(line)
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return strings.TrimSpace(data), nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
	}
}

func (r *sseReader) close() error {
	var err error
	r.once.Do(func() { err = r.body.Close() })
	return err
}
