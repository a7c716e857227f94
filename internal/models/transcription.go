package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptionRequest is one persisted batch transcription, keyed by
// (user_id, idempotency_key).
type TranscriptionRequest struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	IdempotencyKey    string    `json:"idempotency_key" db:"idempotency_key"`
	ClientRequestID   *string   `json:"client_request_id,omitempty" db:"client_request_id"`
	DurationMs        int       `json:"duration_ms" db:"duration_ms"`
	AudioFormat       string    `json:"audio_format" db:"audio_format"`
	Language          string    `json:"language" db:"language"`
	NoisyRoom         bool      `json:"noisy_room" db:"noisy_room"`
	Provider          string    `json:"provider" db:"provider"`
	Model             string    `json:"model" db:"model"`
	TranscriptText    string    `json:"transcript_text" db:"transcript_text"`
	WordCount         int       `json:"word_count" db:"word_count"`
	ProviderLatencyMs int64     `json:"provider_latency_ms" db:"provider_latency_ms"`
	TotalLatencyMs    int64     `json:"total_latency_ms" db:"total_latency_ms"`
	Status            string    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

const TranscriptionStatusSuccess = "success"

// RealtimeSession is the usage record for one finished streaming session.
// Transcript text is never stored, only its length.
type RealtimeSession struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Model           string     `json:"model" db:"model"`
	ConnectionModel string     `json:"connection_model" db:"connection_model"`
	Language        string     `json:"language" db:"language"`
	DurationMs      int64      `json:"duration_ms" db:"duration_ms"`
	TranscriptChars int        `json:"transcript_chars" db:"transcript_chars"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         time.Time  `json:"ended_at" db:"ended_at"`
}

// UsageStats summarizes a user's batch transcription activity over a range.
type UsageStats struct {
	Range          string     `json:"range"`
	Minutes        float64    `json:"minutes_transcribed"`
	Words          int        `json:"words_transcribed_est"`
	Requests       int        `json:"requests"`
	LastActivityAt *time.Time `json:"last_activity_at"`
}
