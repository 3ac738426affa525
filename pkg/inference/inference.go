// Package inference provides a unified interface for reply generation.
//
// Two OpenAI-compatible backends are supported and normalized into the same
// Stream of text deltas, so callers never branch on transport shape:
//   - Client speaks Chat Completions and carries context as message history.
//   - ResponsesClient speaks the Responses API and carries context as a
//     continuation token (previous_response_id).
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	stream, _ := client.Stream(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{inference.NewUserMessage("Hello!")},
//	})
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil || chunk.Done {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package inference

import "context"

// Provider is the unified generation interface.
type Provider interface {
	// Chat generates a complete reply in one block.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream generates a reply as an ordered sequence of text deltas.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming response.
type Stream interface {
	// Recv returns the next chunk. The final chunk has Done set.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length, ...).
	FinishReason string

	// ResponseID is the continuation token, set on the final chunk by
	// backends that issue one.
	ResponseID string

	// Done is true when the stream is complete.
	Done bool
}

// ChatRequest for reply generation.
type ChatRequest struct {
	// Messages is the conversation history ending with the new user turn.
	// With a continuation token only the new turn is needed.
	Messages []Message

	// Instructions is a system prompt sent alongside the messages.
	Instructions string

	// PreviousResponseID continues a server-side conversation.
	PreviousResponseID string

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64
}

// ChatResponse from a one-block generation.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// ResponseID is the continuation token, if the backend issues one.
	ResponseID string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// BlockStream presents a one-block response as a Stream: one delta
// carrying the whole text, then Done.
func BlockStream(resp *ChatResponse) Stream {
	return &blockStream{resp: resp}
}

type blockStream struct {
	resp *ChatResponse
	sent bool
	done bool
}

func (b *blockStream) Recv() (*StreamChunk, error) {
	if b.done {
		return nil, ErrStreamClosed
	}
	if !b.sent && b.resp.Message.Content != "" {
		b.sent = true
		return &StreamChunk{Delta: b.resp.Message.Content}, nil
	}
	b.done = true
	return &StreamChunk{
		FinishReason: b.resp.FinishReason,
		ResponseID:   b.resp.ResponseID,
		Done:         true,
	}, nil
}

func (b *blockStream) Close() error {
	b.done = true
	return nil
}

// Open returns a delta stream from p, streaming when stream is true and
// otherwise wrapping a one-block Chat reply with BlockStream.
func Open(ctx context.Context, p Provider, req *ChatRequest, stream bool) (Stream, error) {
	if stream {
		return p.Stream(ctx, req)
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return BlockStream(resp), nil
}
