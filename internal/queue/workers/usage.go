package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/sayflow/internal/models"
	"github.com/nikhilbhutani/sayflow/internal/queue"
)

type SessionRecorder interface {
	RecordRealtimeSession(ctx context.Context, rec models.RealtimeSession) error
}

// UsageWorker persists realtime session usage.
type UsageWorker struct {
	recorder SessionRecorder
}

func NewUsageWorker(r SessionRecorder) *UsageWorker {
	return &UsageWorker{recorder: r}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RealtimeUsagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return fmt.Errorf("parse session ID: %v: %w", err, asynq.SkipRetry)
	}

	var userID *uuid.UUID
	if payload.UserID != "" {
		id, err := uuid.Parse(payload.UserID)
		if err != nil {
			return fmt.Errorf("parse user ID: %v: %w", err, asynq.SkipRetry)
		}
		userID = &id
	}

	err = w.recorder.RecordRealtimeSession(ctx, models.RealtimeSession{
		ID:              sessionID,
		UserID:          userID,
		Model:           payload.Model,
		ConnectionModel: payload.ConnectionModel,
		Language:        payload.Language,
		DurationMs:      payload.DurationMs,
		TranscriptChars: payload.TranscriptChars,
		StartedAt:       payload.StartedAt,
		EndedAt:         payload.EndedAt,
	})
	if err != nil {
		return fmt.Errorf("record realtime session: %w", err)
	}

	slog.Info("realtime session recorded", "session_id", sessionID, "duration_ms", payload.DurationMs)
	return nil
}
