package stt

import (
	"context"
	"fmt"
	"strings"
)

// TranscriptionRequest holds one audio upload to transcribe.
type TranscriptionRequest struct {
	Audio     []byte
	Format    string // lowercase extension, e.g. "m4a"
	Model     string // empty selects the provider default
	Language  string
	NoisyRoom bool
}

// TranscriptionResult holds the transcript and which backend produced it.
type TranscriptionResult struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latency_ms"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// Provider is the interface for batch speech-to-text backends.
type Provider interface {
	Name() string
	SupportedModels() []string
	DefaultModel() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)
}

// TranscriptionError reports a failure attributed to a provider and model.
type TranscriptionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ValidateModel returns the model to use: the provider default when model is
// empty, model itself when supported, and an error otherwise.
func ValidateModel(p Provider, model string) (string, error) {
	if model == "" {
		return p.DefaultModel(), nil
	}
	for _, m := range p.SupportedModels() {
		if m == model {
			return model, nil
		}
	}
	return "", &TranscriptionError{
		Provider: p.Name(),
		Model:    model,
		Err:      fmt.Errorf("model not supported, supported models: %s", strings.Join(p.SupportedModels(), ", ")),
	}
}

const noisyRoomHint = "The audio may contain background noise. Focus on the primary speaker and transcribe clearly."
