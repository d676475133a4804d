package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Default OpenAI settings. The transcription model is fixed to whisper-1;
// summarization and classification share one chat model.
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultTranscribeModel  = "whisper-1"
	DefaultChatModel        = "gpt-4o-mini"
	defaultProviderTimeout  = 2 * time.Minute
	maxProviderResponseSize = 1 << 20 // 1MB, plenty for a transcript
)

const (
	summarizePrompt = "Summarize the following voice diary entry in two or three sentences, written in the first person. Reply with the summary only."

	classifyPrompt = "Classify the dominant emotion of the following voice diary entry. Reply with exactly one word from this list: anger, sadness, happiness, neutral."
)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // Default: DefaultOpenAIBaseURL
	TranscribeModel string // Default: DefaultTranscribeModel
	ChatModel       string // Default: DefaultChatModel
	Timeout         time.Duration
}

// OpenAIProvider implements Provider against the OpenAI HTTP API:
// /audio/transcriptions for transcription, /chat/completions for
// summarization and classification.
type OpenAIProvider struct {
	httpClient      *http.Client
	apiKey          string
	baseURL         string
	transcribeModel string
	chatModel       string
}

// NewOpenAIProvider creates an OpenAI-backed enrichment provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}

	return &OpenAIProvider{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		transcribeModel: cfg.TranscribeModel,
		chatModel:       cfg.ChatModel,
	}, nil
}

// Transcribe sends the audio as multipart form data to the
// transcription endpoint and returns the recognized text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.m4a")
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	if err := writer.WriteField("model", p.transcribeModel); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := p.send(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode transcription response: %v", ErrProvider, err)
	}
	return parsed.Text, nil
}

// Summarize asks the chat model for a short first-person summary.
func (p *OpenAIProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	return p.chat(ctx, summarizePrompt, transcript)
}

// Classify asks the chat model for a single emotion label. Validation
// against the closed label set happens in the pipeline.
func (p *OpenAIProvider) Classify(ctx context.Context, transcript string) (string, error) {
	return p.chat(ctx, classifyPrompt, transcript)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *OpenAIProvider) chat(ctx context.Context, system, user string) (string, error) {
	payload := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{
		Model: p.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := p.send(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", ErrProvider, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", ErrProvider)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) send(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
