package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/sayflow/internal/auth"
	"github.com/nikhilbhutani/sayflow/internal/cache"
	"github.com/nikhilbhutani/sayflow/internal/models"
	"github.com/nikhilbhutani/sayflow/internal/stt"
	"github.com/nikhilbhutani/sayflow/internal/usage"
)

var allowedFormats = map[string]bool{
	"m4a": true, "mp4": true, "wav": true, "mp3": true,
	"aac": true, "ogg": true, "flac": true, "webm": true,
}

const (
	idempotencyTTL    = 24 * time.Hour
	multipartOverhead = 1 << 20
	maxFormMemory     = 32 << 20
)

type TranscriptionStore interface {
	CheckIdempotency(ctx context.Context, userID uuid.UUID, key string) (*models.TranscriptionRequest, error)
	RecordTranscription(ctx context.Context, rec models.TranscriptionRequest) (*models.TranscriptionRequest, error)
}

type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type ProviderRegistry interface {
	Get(name string) (stt.Provider, error)
}

type TranscriptionLimits struct {
	MaxAudioBytes   int64
	MaxAudioSeconds int
}

type TimingInfo struct {
	ProviderLatencyMs int64 `json:"provider_latency_ms"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
}

type TranscriptionResponse struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	DurationMs int        `json:"duration_ms"`
	Language   string     `json:"language"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	CreatedAt  time.Time  `json:"created_at"`
	RequestID  string     `json:"request_id"`
	Timing     TimingInfo `json:"timing"`
}

type TranscriptionHandler struct {
	store     TranscriptionStore
	cache     ResponseCache
	providers ProviderRegistry
	limits    TranscriptionLimits
}

// NewTranscriptionHandler accepts a nil cache; replays then come from the store only.
func NewTranscriptionHandler(store TranscriptionStore, c ResponseCache, providers ProviderRegistry, limits TranscriptionLimits) *TranscriptionHandler {
	return &TranscriptionHandler{
		store:     store,
		cache:     c,
		providers: providers,
		limits:    limits,
	}
}

func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	user := auth.UserFromContext(ctx)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}

	var clientRequestID *string
	requestID := r.Header.Get("X-Client-Request-Id")
	if requestID != "" {
		clientRequestID = &requestID
	} else {
		requestID = uuid.NewString()
	}
	logger := slog.With("request_id", requestID, "user_id", user.ID)

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxAudioBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	durationMs, err := strconv.Atoi(r.FormValue("duration_ms"))
	if err != nil || durationMs <= 0 {
		writeError(w, http.StatusBadRequest, "duration_ms must be a positive integer")
		return
	}

	rawFormat := r.FormValue("audio_format")
	format := strings.ToLower(rawFormat)
	if !allowedFormats[format] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported audio format: %s. Allowed: %s", rawFormat, allowedFormatList()))
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	noisyRoom := false
	if v := r.FormValue("noisy_room"); v != "" {
		noisyRoom, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "noisy_room must be a boolean")
			return
		}
	}

	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "usage storage unavailable")
		return
	}

	if existing, ok := h.replay(ctx, logger, user.ID, idemKey); ok {
		existing.RequestID = requestID
		logger.Info("returning cached transcription for idempotency key")
		writeJSON(w, http.StatusOK, existing)
		return
	}

	audio, err := readAudio(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if int64(len(audio)) > h.limits.MaxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "Audio file is empty")
		return
	}

	if durationMs > h.limits.MaxAudioSeconds*1000 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Audio duration exceeds maximum of %d seconds", h.limits.MaxAudioSeconds))
		return
	}

	provider, err := h.providers.Get(r.FormValue("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, err := stt.ValidateModel(provider, r.FormValue("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := provider.Transcribe(ctx, stt.TranscriptionRequest{
		Audio:     audio,
		Format:    format,
		Model:     model,
		Language:  language,
		NoisyRoom: noisyRoom,
	})
	if err != nil {
		logger.Error("transcription failed", "provider", provider.Name(), "model", model, "error", err)
		writeError(w, http.StatusBadGateway, "Transcription service failed. Please retry.")
		return
	}

	totalLatency := time.Since(start).Milliseconds()
	resp := TranscriptionResponse{
		Text:       result.Text,
		DurationMs: durationMs,
		Language:   language,
		Provider:   result.Provider,
		Model:      result.Model,
		RequestID:  requestID,
		Timing: TimingInfo{
			ProviderLatencyMs: result.LatencyMs,
			TotalLatencyMs:    totalLatency,
		},
	}

	rec, err := h.store.RecordTranscription(ctx, models.TranscriptionRequest{
		UserID:            user.ID,
		IdempotencyKey:    idemKey,
		ClientRequestID:   clientRequestID,
		DurationMs:        durationMs,
		AudioFormat:       format,
		Language:          language,
		NoisyRoom:         noisyRoom,
		Provider:          result.Provider,
		Model:             result.Model,
		TranscriptText:    result.Text,
		ProviderLatencyMs: result.LatencyMs,
		TotalLatencyMs:    totalLatency,
		Status:            models.TranscriptionStatusSuccess,
	})
	if err != nil {
		// The transcript is still returned; only the usage record is lost.
		logger.Error("failed to record usage", "error", err)
		resp.ID = uuid.NewString()
		resp.CreatedAt = time.Now().UTC()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.ID = rec.ID.String()
	resp.CreatedAt = rec.CreatedAt
	h.remember(ctx, logger, user.ID, idemKey, resp)

	logger.Info("transcription completed",
		"duration_ms", durationMs, "provider", result.Provider, "model", result.Model, "status", models.TranscriptionStatusSuccess)
	writeJSON(w, http.StatusOK, resp)
}

// replay looks for an earlier response under the same idempotency key, first
// in the cache and then in the store.
func (h *TranscriptionHandler) replay(ctx context.Context, logger *slog.Logger, userID uuid.UUID, key string) (TranscriptionResponse, bool) {
	var cached TranscriptionResponse
	if h.cache != nil {
		err := h.cache.Get(ctx, cache.IdempotencyKey(userID.String(), key), &cached)
		if err == nil {
			return cached, true
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.Warn("idempotency cache lookup failed", "error", err)
		}
	}

	existing, err := h.store.CheckIdempotency(ctx, userID, key)
	if err != nil {
		if !errors.Is(err, usage.ErrNotFound) {
			logger.Error("failed to check idempotency", "error", err)
		}
		return TranscriptionResponse{}, false
	}

	resp := responseFromRecord(existing)
	h.remember(ctx, logger, userID, key, resp)
	return resp, true
}

func (h *TranscriptionHandler) remember(ctx context.Context, logger *slog.Logger, userID uuid.UUID, key string, resp TranscriptionResponse) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, cache.IdempotencyKey(userID.String(), key), resp, idempotencyTTL); err != nil {
		logger.Warn("failed to cache transcription response", "error", err)
	}
}

func (h *TranscriptionHandler) tooLargeMessage() string {
	return fmt.Sprintf("Audio file too large. Maximum size: %dMB", h.limits.MaxAudioBytes/(1024*1024))
}

func responseFromRecord(rec *models.TranscriptionRequest) TranscriptionResponse {
	return TranscriptionResponse{
		ID:         rec.ID.String(),
		Text:       rec.TranscriptText,
		DurationMs: rec.DurationMs,
		Language:   rec.Language,
		Provider:   rec.Provider,
		Model:      rec.Model,
		CreatedAt:  rec.CreatedAt,
		Timing: TimingInfo{
			ProviderLatencyMs: rec.ProviderLatencyMs,
			TotalLatencyMs:    rec.TotalLatencyMs,
		},
	}
}

func readAudio(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("audio")
	if err != nil {
		return nil, errors.New("audio file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}

func allowedFormatList() string {
	out := make([]string, 0, len(allowedFormats))
	for f := range allowedFormats {
		out = append(out, f)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
