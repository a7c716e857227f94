package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/sayflow/internal/models"
)

var ErrNotFound = errors.New("usage record not found")

// Service persists transcription usage in Postgres.
type Service struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db, now: time.Now}
}

const transcriptionColumns = `id, user_id, idempotency_key, client_request_id, duration_ms, audio_format,
	language, noisy_room, provider, model, transcript_text, word_count,
	provider_latency_ms, total_latency_ms, status, created_at`

func scanTranscription(row pgx.Row) (*models.TranscriptionRequest, error) {
	var t models.TranscriptionRequest
	err := row.Scan(&t.ID, &t.UserID, &t.IdempotencyKey, &t.ClientRequestID, &t.DurationMs, &t.AudioFormat,
		&t.Language, &t.NoisyRoom, &t.Provider, &t.Model, &t.TranscriptText, &t.WordCount,
		&t.ProviderLatencyMs, &t.TotalLatencyMs, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CheckIdempotency returns the stored transcription for (userID, key), or
// ErrNotFound.
func (s *Service) CheckIdempotency(ctx context.Context, userID uuid.UUID, key string) (*models.TranscriptionRequest, error) {
	t, err := scanTranscription(s.db.QueryRow(ctx,
		`SELECT `+transcriptionColumns+`
		 FROM transcription_requests WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency: %w", err)
	}
	return t, nil
}

// RecordTranscription inserts a successful transcription. A concurrent insert
// with the same idempotency key wins; its row is returned instead.
func (s *Service) RecordTranscription(ctx context.Context, rec models.TranscriptionRequest) (*models.TranscriptionRequest, error) {
	if rec.Status == "" {
		rec.Status = models.TranscriptionStatusSuccess
	}
	rec.WordCount = CountWords(rec.TranscriptText)

	t, err := scanTranscription(s.db.QueryRow(ctx,
		`INSERT INTO transcription_requests (user_id, idempotency_key, client_request_id, duration_ms, audio_format,
			language, noisy_room, provider, model, transcript_text, word_count, provider_latency_ms, total_latency_ms, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (user_id, idempotency_key) DO NOTHING
		 RETURNING `+transcriptionColumns,
		rec.UserID, rec.IdempotencyKey, rec.ClientRequestID, rec.DurationMs, rec.AudioFormat,
		rec.Language, rec.NoisyRoom, rec.Provider, rec.Model, rec.TranscriptText, rec.WordCount,
		rec.ProviderLatencyMs, rec.TotalLatencyMs, rec.Status,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return s.CheckIdempotency(ctx, rec.UserID, rec.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert transcription: %w", err)
	}

	slog.Info("recorded transcription", "user_id", t.UserID, "duration_ms", t.DurationMs)
	return t, nil
}

// RecordRealtimeSession is safe to retry; duplicates by id are ignored.
func (s *Service) RecordRealtimeSession(ctx context.Context, rec models.RealtimeSession) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO realtime_sessions (id, user_id, model, connection_model, language, duration_ms, transcript_chars, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Model, rec.ConnectionModel, rec.Language,
		rec.DurationMs, rec.TranscriptChars, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert realtime session: %w", err)
	}
	return nil
}

// Stats aggregates successful batch transcriptions for userID over r.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID, r Range) (*models.UsageStats, error) {
	since := r.Since(s.now())

	var (
		totalMs  int64
		words    int
		requests int
		last     *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration_ms), 0), COALESCE(SUM(word_count), 0), COUNT(*), MAX(created_at)
		 FROM transcription_requests
		 WHERE user_id = $1 AND status = $2 AND created_at >= $3`,
		userID, models.TranscriptionStatusSuccess, since,
	).Scan(&totalMs, &words, &requests, &last)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	if r == "" {
		r = RangeToday
	}
	return &models.UsageStats{
		Range:          string(r),
		Minutes:        Minutes(totalMs),
		Words:          words,
		Requests:       requests,
		LastActivityAt: last,
	}, nil
}
