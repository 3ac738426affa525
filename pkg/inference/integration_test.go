//go:build integration

package inference_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/inference"
)

// Run with: go test -tags=integration -v ./pkg/inference/...
func TestResponsesContinuationIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	client, err := inference.NewResponsesClient(inference.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("NewResponsesClient: %v", err)
	}
	provider := inference.NewFallback(client, "gpt-4.1-mini", nil)
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	first, err := provider.Chat(ctx, &inference.ChatRequest{
		Messages: []inference.Message{inference.NewUserMessage("My favourite colour is teal. Reply with OK.")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if first.ResponseID == "" {
		t.Fatal("expected a response ID")
	}

	stream, err := provider.Stream(ctx, &inference.ChatRequest{
		PreviousResponseID: first.ResponseID,
		Messages:           []inference.Message{inference.NewUserMessage("What is my favourite colour? One word.")},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if chunk.Done {
			break
		}
		sb.WriteString(chunk.Delta)
	}
	if !strings.Contains(strings.ToLower(sb.String()), "teal") {
		t.Errorf("continuation lost context: %q", sb.String())
	}
}
