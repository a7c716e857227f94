package queue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
)

func TestHandlersRegistry_Dispatch(t *testing.T) {
	r := NewHandlersRegistry()

	var got string
	r.Register(TypeRealtimeUsageRecord, asynq.HandlerFunc(func(_ context.Context, t *asynq.Task) error {
		got = string(t.Payload())
		return nil
	}))

	err := r.Mux().ProcessTask(context.Background(), asynq.NewTask(TypeRealtimeUsageRecord, []byte(`{"x":1}`)))
	if err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if got != `{"x":1}` {
		t.Errorf("handler saw %q", got)
	}
}

func TestHandlersRegistry_PropagatesErrors(t *testing.T) {
	r := NewHandlersRegistry()
	boom := errors.New("boom")
	r.Register(TypeRealtimeUsageRecord, asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return boom
	}))

	err := r.Mux().ProcessTask(context.Background(), asynq.NewTask(TypeRealtimeUsageRecord, nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestHandlersRegistry_UnknownType(t *testing.T) {
	err := NewHandlersRegistry().Mux().ProcessTask(context.Background(), asynq.NewTask("unknown", nil))
	if err == nil {
		t.Error("expected error for unregistered task type")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Info("worker ", "started")
	l.Warn("slow")
	if out := buf.String(); !strings.Contains(out, "msg=\"worker started\"") || !strings.Contains(out, "level=WARN") {
		t.Errorf("unexpected log output: %s", out)
	}
}
