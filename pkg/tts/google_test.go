package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

func TestLanguageFromVoice(t *testing.T) {
	if got := languageFromVoice("de-DE-Neural2-B"); got != "de-DE" {
		t.Errorf("languageFromVoice = %q", got)
	}
	if got := languageFromVoice("weird"); got != "en-US" {
		t.Errorf("languageFromVoice = %q", got)
	}
}

func TestGoogleSynthesize(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	var req struct {
		Input       struct{ Text string }
		Voice       struct{ Name, LanguageCode string }
		AudioConfig struct {
			AudioEncoding   string
			SampleRateHertz int
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/text:synthesize") {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString(audioio.EncodeWAV(pcm, 24000, 1)),
		})
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), WithBaseURL(srv.URL+"/"), WithModel("de-DE-Neural2-B"), WithLanguage(""))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	result, err := g.Synthesize(context.Background(), "Hallo.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != string(pcm) {
		t.Errorf("audio = %v", result.Audio)
	}
	if result.Format.SampleRate != 24000 || result.Model != "de-DE-Neural2-B" {
		t.Errorf("result = %+v", result)
	}
	if req.Input.Text != "Hallo." || req.Voice.Name != "de-DE-Neural2-B" || req.Voice.LanguageCode != "de-DE" {
		t.Errorf("request = %+v", req)
	}
	if req.AudioConfig.AudioEncoding != "LINEAR16" {
		t.Errorf("encoding = %q", req.AudioConfig.AudioEncoding)
	}
}

func TestGoogleErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Voice 'xx-XX-Nope' does not exist.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), WithBaseURL(srv.URL+"/"), WithModel("xx-XX-Nope"))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	_, err = g.Synthesize(context.Background(), "Hi.")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || !apiErr.IsModelRejected() {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
