package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
}

// OpenAISTT transcribes audio with OpenAI's speech-to-text models.
type OpenAISTT struct {
	client *openai.Client
}

var openAIFormats = map[string]string{
	"m4a":  "m4a",
	"mp4":  "mp4",
	"wav":  "wav",
	"mp3":  "mp3",
	"mpeg": "mp3",
	"mpga": "mp3",
	"webm": "webm",
	"ogg":  "ogg",
	"flac": "flac",
}

func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAISTT{client: openai.NewClientWithConfig(oc)}
}

func (o *OpenAISTT) Name() string { return "openai" }

func (o *OpenAISTT) SupportedModels() []string {
	return []string{
		"gpt-4o-mini-transcribe",
		"gpt-4o-transcribe",
		"gpt-audio-mini-2025-10-06",
		"whisper-1",
	}
}

func (o *OpenAISTT) DefaultModel() string { return "gpt-4o-mini-transcribe" }

func (o *OpenAISTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error) {
	model, err := ValidateModel(o, req.Model)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	ext, ok := openAIFormats[strings.ToLower(req.Format)]
	if !ok {
		ext = strings.ToLower(req.Format)
	}

	areq := openai.AudioRequest{
		Model:    model,
		FilePath: "audio." + ext,
		Reader:   bytes.NewReader(req.Audio),
		Format:   openai.AudioResponseFormatJSON,
	}
	// English is left to auto-detection.
	if req.Language != "" && req.Language != "en" {
		areq.Language = req.Language
	}
	if req.NoisyRoom {
		areq.Prompt = noisyRoomHint
	}

	resp, err := o.client.CreateTranscription(ctx, areq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		slog.Error("openai transcription failed", "model", model, "latency_ms", latency, "audio_format", req.Format, "error", err)
		return nil, &TranscriptionError{Provider: o.Name(), Model: model, Err: fmt.Errorf("create transcription: %w", err)}
	}

	text := strings.TrimSpace(resp.Text)
	slog.Info("transcription completed",
		"provider", o.Name(), "model", model, "latency_ms", latency,
		"audio_format", req.Format, "transcript_length", len(text))

	return &TranscriptionResult{
		Text:      text,
		LatencyMs: latency,
		Provider:  o.Name(),
		Model:     model,
	}, nil
}
