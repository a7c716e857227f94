package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nikhilbhutani/sayflow/internal/auth"
	"github.com/nikhilbhutani/sayflow/internal/queue"
	"github.com/nikhilbhutani/sayflow/internal/realtime"
)

type UsageEnqueuer interface {
	EnqueueRealtimeUsage(ctx context.Context, payload queue.RealtimeUsagePayload) error
}

type RealtimeHandler struct {
	upgrader websocket.Upgrader
	dialer   realtime.Dialer
	cfg      realtime.Config
	usage    UsageEnqueuer
}

// NewRealtimeHandler accepts a nil usage enqueuer; session usage is then only
// logged.
func NewRealtimeHandler(dialer realtime.Dialer, cfg realtime.Config, usage UsageEnqueuer, allowedOrigins []string) *RealtimeHandler {
	return &RealtimeHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		dialer: dialer,
		cfg:    cfg,
		usage:  usage,
	}
}

// Transcribe upgrades the request and runs one realtime session on it.
func (h *RealtimeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := realtime.Options{
		Model:    q.Get("model"),
		Language: q.Get("language"),
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := realtime.NewWSConn(ws)
	client.SetReadLimit(h.clientReadLimit())
	sess := realtime.NewSession(client, h.dialer, h.cfg, opts, slog.Default())
	slog.Info("realtime transcription websocket connected",
		"session_id", sess.ID(), "model", sess.Model(), "user_id", auth.UserIDFromContext(r.Context()))

	runErr := sess.Run(r.Context())

	if err := client.Close(); err != nil {
		slog.Debug("error closing client connection", "session_id", sess.ID(), "error", err)
	}
	sess.Wait()
	slog.Info("realtime transcription session ended", "session_id", sess.ID())

	if runErr != nil {
		return
	}
	h.recordUsage(r.Context(), sess)
}

func (h *RealtimeHandler) recordUsage(ctx context.Context, sess *realtime.Session) {
	ended := time.Now()
	payload := queue.RealtimeUsagePayload{
		SessionID:       sess.ID(),
		Model:           sess.Model(),
		ConnectionModel: sess.ConnectionModel(),
		Language:        sess.Language(),
		DurationMs:      ended.Sub(sess.StartedAt()).Milliseconds(),
		TranscriptChars: len(sess.Transcript()),
		StartedAt:       sess.StartedAt(),
		EndedAt:         ended,
	}
	if user := auth.UserFromContext(ctx); user != nil {
		payload.UserID = user.ID.String()
	}

	if h.usage == nil {
		slog.Info("realtime session usage", "session_id", payload.SessionID, "duration_ms", payload.DurationMs)
		return
	}

	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.usage.EnqueueRealtimeUsage(enqCtx, payload); err != nil {
		slog.Error("failed to enqueue realtime usage", "session_id", payload.SessionID, "error", err)
	}
}

func (h *RealtimeHandler) clientReadLimit() int64 {
	if h.cfg.MaxClientMessageBytes > 0 {
		return h.cfg.MaxClientMessageBytes
	}
	return realtime.DefaultMaxClientMessageBytes
}

// originChecker allows requests without an Origin header (desktop clients)
// and, when a list is configured, browser origins on that list.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 || set["*"] {
			return true
		}
		return set[origin]
	}
}
