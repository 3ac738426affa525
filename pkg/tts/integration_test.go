//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// TestOpenAIIntegration tests the real OpenAI speech endpoint.
// Run with: go test -tags=integration -v ./pkg/tts/...
func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	primary, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	alternate, err := tts.NewOpenAI(tts.WithAPIKey(apiKey), tts.WithModel(tts.ModelTTS1))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	provider := tts.NewFallback(primary, alternate, nil)
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "Hello from the integration test.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Fatal("expected audio")
	}
	t.Logf("got %d bytes (%v) in %dms", len(result.Audio), result.Duration, result.LatencyMs)
}
