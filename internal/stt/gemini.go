package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeminiSTTConfig holds configuration for the Gemini STT backend.
type GeminiSTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://generativelanguage.googleapis.com/v1beta"
}

// GeminiSTT transcribes audio by sending it inline to Gemini generateContent.
type GeminiSTT struct {
	cfg        GeminiSTTConfig
	httpClient *http.Client
}

var geminiMIMETypes = map[string]string{
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"webm": "audio/webm",
}

func NewGeminiSTT(cfg GeminiSTTConfig) *GeminiSTT {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GeminiSTT{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (g *GeminiSTT) Name() string { return "gemini" }

func (g *GeminiSTT) SupportedModels() []string {
	return []string{
		"gemini-2.5-flash-lite",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
	}
}

func (g *GeminiSTT) DefaultModel() string { return "gemini-2.5-flash-lite" }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// transcriptionPrompt forces transcript-only output.
func transcriptionPrompt(noisyRoom bool) string {
	prompt := "Transcribe the audio to English. " +
		"Return only the transcript text. " +
		"Do not add punctuation commentary, metadata, or any other text. " +
		"If the audio is silent or contains no speech, return an empty string."
	if noisyRoom {
		prompt += " The audio may contain background noise; " +
			"focus on the primary speaker and be robust to noise."
	}
	return prompt
}

func mimeType(format string) string {
	format = strings.ToLower(format)
	if m, ok := geminiMIMETypes[format]; ok {
		return m
	}
	return "audio/" + format
}

func (g *GeminiSTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error) {
	model, err := ValidateModel(g, req.Model)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	text, err := g.generate(ctx, model, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		slog.Error("gemini transcription failed", "model", model, "latency_ms", latency, "audio_format", req.Format, "error", err)
		return nil, &TranscriptionError{Provider: g.Name(), Model: model, Err: err}
	}

	slog.Info("transcription completed",
		"provider", g.Name(), "model", model, "latency_ms", latency,
		"audio_format", req.Format, "transcript_length", len(text))

	return &TranscriptionResult{
		Text:      text,
		LatencyMs: latency,
		Provider:  g.Name(),
		Model:     model,
	}, nil
}

func (g *GeminiSTT) generate(ctx context.Context, model string, req TranscriptionRequest) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: transcriptionPrompt(req.NoisyRoom)},
				{InlineData: &geminiInlineData{
					MIMEType: mimeType(req.Format),
					Data:     base64.StdEncoding.EncodeToString(req.Audio),
				}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{Temperature: 0, MaxOutputTokens: 8192},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate content failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
