package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/providers"
	"reelsmith/internal/services"
)

func TestTextToSpeechWritesAudio(t *testing.T) {
	var gotPath, gotKey string
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	dir := t.TempDir()
	client := New(config.ElevenLabs{APIKey: "xi", ModelID: "eleven_turbo_v2"}, WithBaseURL(server.URL))
	handle, err := client.Submit(context.Background(), providers.Request{Mode: providers.ModeSpeech, Text: "Hello there.", WorkDir: dir})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotPath != "/text-to-speech/"+DefaultVoiceID || gotKey != "xi" {
		t.Fatalf("unexpected request path=%s key=%s", gotPath, gotKey)
	}
	if body["text"] != "Hello there." || body["model_id"] != "eleven_turbo_v2" {
		t.Fatalf("unexpected body %v", body)
	}

	outputs, err := providers.Await(context.Background(), client, handle, providers.Policy{}, nil)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !strings.HasSuffix(outputs[0].LocalPath, ".mp3") || filepath.Dir(outputs[0].LocalPath) != dir {
		t.Fatalf("unexpected output %+v", outputs[0])
	}
	data, _ := os.ReadFile(outputs[0].LocalPath)
	if string(data) != "ID3-audio" {
		t.Fatalf("unexpected audio %q", data)
	}
}

func TestSpeechToSpeechSendsMultipart(t *testing.T) {
	source := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(source, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-speech/voice-9" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file.Close()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("converted"))
	}))
	defer server.Close()

	client := New(config.ElevenLabs{APIKey: "xi"}, WithBaseURL(server.URL))
	handle, err := client.Submit(context.Background(), providers.Request{VoiceID: "voice-9", Audio: []string{source}, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasSuffix(handle.Outputs[0].LocalPath, ".wav") {
		t.Fatalf("expected wav output, got %+v", handle.Outputs[0])
	}
}

func TestSubmitErrors(t *testing.T) {
	if _, err := New(config.ElevenLabs{}).Submit(context.Background(), providers.Request{Text: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := New(config.ElevenLabs{APIKey: "k"}).Submit(context.Background(), providers.Request{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	defer server.Close()
	_, err := New(config.ElevenLabs{APIKey: "k"}, WithBaseURL(server.URL)).Submit(context.Background(), providers.Request{Text: "x", WorkDir: t.TempDir()})
	var httpErr *providers.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 HTTPError, got %v", err)
	}
}
