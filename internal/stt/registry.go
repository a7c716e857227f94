package stt

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nikhilbhutani/sayflow/internal/config"
)

// ErrProviderNotFound is returned by Registry.Get for unregistered names.
var ErrProviderNotFound = errors.New("transcription provider not registered")

// Registry holds the providers available to batch transcription.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

type ProviderInfo struct {
	Name            string   `json:"name"`
	SupportedModels []string `json:"supported_models"`
	DefaultModel    string   `json:"default_model"`
}

func NewRegistry(defaultName string, providers ...Provider) *Registry {
	r := &Registry{
		providers:   make(map[string]Provider, len(providers)),
		defaultName: defaultName,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig registers every provider that has an API key.
func NewRegistryFromConfig(cfg config.STTConfig) *Registry {
	var providers []Provider
	if cfg.GeminiKey != "" {
		providers = append(providers, NewGeminiSTT(GeminiSTTConfig{APIKey: cfg.GeminiKey, BaseURL: cfg.GeminiBaseURL}))
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAISTT(OpenAISTTConfig{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL}))
	}
	r := NewRegistry(cfg.DefaultProvider, providers...)
	slog.Info("initialized transcription providers", "providers", r.Names(), "default", cfg.DefaultProvider)
	return r
}

// Get returns the named provider, or the default provider when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrProviderNotFound, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Default names the provider used when a request does not pick one.
func (r *Registry) Default() string {
	return r.defaultName
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Info() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, name := range r.Names() {
		p := r.providers[name]
		out = append(out, ProviderInfo{
			Name:            p.Name(),
			SupportedModels: p.SupportedModels(),
			DefaultModel:    p.DefaultModel(),
		})
	}
	return out
}
