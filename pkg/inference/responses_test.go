package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponsesStream(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("Expected /responses, got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&payload)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response.created\ndata: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_abc\",\"status\":\"in_progress\"}}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"Sure\"}\n\n")
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\", why not.\"}\n\n")
		fmt.Fprint(w, "event: response.output_text.done\ndata: {\"type\":\"response.output_text.done\",\"text\":\"Sure, why not.\"}\n\n")
		fmt.Fprint(w, "event: response.completed\ndata: {\"type\":\"response.completed\",\"response\":{\"id\":\"resp_abc\",\"status\":\"completed\"}}\n\n")
	}))
	defer server.Close()

	client, err := NewResponsesClient(WithBaseURL(server.URL), WithAPIKey("k"))
	if err != nil {
		t.Fatalf("NewResponsesClient failed: %v", err)
	}
	defer client.Close()

	stream, err := client.Stream(context.Background(), &ChatRequest{
		Instructions:       "Be brief.",
		PreviousResponseID: "resp_prev",
		Messages:           []Message{NewUserMessage("Can you?")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	text, last := drain(t, stream)

	if text != "Sure, why not." {
		t.Errorf("Unexpected text %q", text)
	}
	if last.ResponseID != "resp_abc" {
		t.Errorf("Expected resp_abc, got %q", last.ResponseID)
	}
	if last.FinishReason != "completed" {
		t.Errorf("Expected completed, got %q", last.FinishReason)
	}

	if payload["previous_response_id"] != "resp_prev" {
		t.Errorf("Expected previous_response_id, got %v", payload["previous_response_id"])
	}
	if payload["instructions"] != "Be brief." {
		t.Errorf("Expected instructions, got %v", payload["instructions"])
	}
	if payload["stream"] != true || payload["store"] != true {
		t.Errorf("Expected stream and store, got %v", payload)
	}
	input, _ := payload["input"].([]any)
	if len(input) != 1 {
		t.Errorf("Expected only the new turn in input, got %v", payload["input"])
	}
}

func TestResponsesStreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"Par\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.failed\",\"response\":{\"id\":\"resp_f\",\"status\":\"failed\",\"error\":{\"code\":\"server_error\",\"message\":\"boom\"}}}\n\n")
	}))
	defer server.Close()

	client, _ := NewResponsesClient(WithBaseURL(server.URL))
	stream, err := client.Stream(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if chunk, err := stream.Recv(); err != nil || chunk.Delta != "Par" {
		t.Fatalf("Expected first delta, got %+v %v", chunk, err)
	}
	_, err = stream.Recv()
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Code != "server_error" {
		t.Errorf("Expected server_error APIError, got %v", err)
	}
}

func TestResponsesStreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_t\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"Half a\"}\n\n")
	}))
	defer server.Close()

	client, _ := NewResponsesClient(WithBaseURL(server.URL))
	stream, err := client.Stream(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if chunk, err := stream.Recv(); err != nil || chunk.Delta != "Half a" {
		t.Fatalf("Expected delta, got %+v %v", chunk, err)
	}
	if _, err := stream.Recv(); !errors.Is(err, ErrStreamTruncated) {
		t.Errorf("Expected ErrStreamTruncated, got %v", err)
	}
}

func TestResponsesChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if _, ok := payload["stream"]; ok {
			t.Error("Chat must not request streaming")
		}
		fmt.Fprint(w, `{"id":"resp_1","model":"gpt-4o-mini","status":"completed","output":[{"type":"reasoning","content":[]},{"type":"message","content":[{"type":"output_text","text":"Hello "},{"type":"output_text","text":"again."}]}],"usage":{"input_tokens":7,"output_tokens":3,"total_tokens":10}}`)
	}))
	defer server.Close()

	client, _ := NewResponsesClient(WithBaseURL(server.URL))
	resp, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "Hello again." {
		t.Errorf("Unexpected content %q", resp.Message.Content)
	}
	if resp.ResponseID != "resp_1" {
		t.Errorf("Expected resp_1, got %q", resp.ResponseID)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("Expected 10 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestResponsesModelRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"The requested model 'old' has been deprecated.","code":null}}`)
	}))
	defer server.Close()

	client, _ := NewResponsesClient(WithBaseURL(server.URL))
	_, err := client.Stream(context.Background(), &ChatRequest{Model: "old"})
	if !IsModelRejected(err) {
		t.Errorf("Expected model rejection, got %v", err)
	}
}
