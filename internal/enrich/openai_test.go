package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider failed: %v", err)
	}
	return p
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestOpenAIProvider_Transcribe(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q, want /audio/transcriptions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm failed: %v", err)
		}
		if got := r.FormValue("model"); got != DefaultTranscribeModel {
			t.Errorf("model = %q, want %q", got, DefaultTranscribeModel)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer file.Close()

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello diary"})
	})

	text, err := p.Transcribe(context.Background(), []byte("audio-bytes"), "audio/mp4")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello diary" {
		t.Errorf("text = %q, want %q", text, "hello diary")
	}
}

func TestOpenAIProvider_ChatEndpoints(t *testing.T) {
	var lastSystem string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		var payload struct {
			Model    string        `json:"model"`
			Messages []chatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != DefaultChatModel {
			t.Errorf("model = %q, want %q", payload.Model, DefaultChatModel)
		}
		if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" {
			t.Fatalf("unexpected messages: %+v", payload.Messages)
		}
		lastSystem = payload.Messages[0].Content

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "happiness"}},
			},
		})
	})

	ctx := context.Background()

	if _, err := p.Summarize(ctx, "transcript"); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if !strings.Contains(lastSystem, "Summarize") {
		t.Errorf("summarize system prompt = %q", lastSystem)
	}

	label, err := p.Classify(ctx, "transcript")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if label != "happiness" {
		t.Errorf("label = %q, want happiness", label)
	}
	if !strings.Contains(lastSystem, "Classify") {
		t.Errorf("classify system prompt = %q", lastSystem)
	}
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := p.Summarize(context.Background(), "transcript")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not mention status", err)
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	if _, err := p.Classify(context.Background(), "transcript"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
