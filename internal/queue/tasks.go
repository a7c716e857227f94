package queue

import "time"

const (
	TypeRealtimeUsageRecord = "usage:realtime_session"
)

// RealtimeUsagePayload describes a finished realtime session. It carries the
// transcript length only, never the text.
type RealtimeUsagePayload struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id,omitempty"`
	Model           string    `json:"model"`
	ConnectionModel string    `json:"connection_model"`
	Language        string    `json:"language"`
	DurationMs      int64     `json:"duration_ms"`
	TranscriptChars int       `json:"transcript_chars"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}
