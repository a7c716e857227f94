package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nikhilbhutani/sayflow/internal/auth"
	"github.com/nikhilbhutani/sayflow/internal/models"
	"github.com/nikhilbhutani/sayflow/internal/queue"
	"github.com/nikhilbhutani/sayflow/internal/realtime"
)

type upstreamConn struct {
	in        chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	sent []string
}

func newUpstreamConn() *upstreamConn {
	return &upstreamConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (u *upstreamConn) Send(b []byte) error {
	select {
	case <-u.closed:
		return realtime.ErrClosed
	default:
	}
	u.mu.Lock()
	u.sent = append(u.sent, string(b))
	u.mu.Unlock()
	return nil
}

func (u *upstreamConn) Receive() ([]byte, error) {
	select {
	case b := <-u.in:
		return b, nil
	case <-u.closed:
		return nil, realtime.ErrClosed
	}
}

func (u *upstreamConn) Close() error {
	u.closeOnce.Do(func() { close(u.closed) })
	return nil
}

type stubDialer struct {
	conn realtime.Conn
	err  error
}

func (d stubDialer) Dial(context.Context, string, http.Header) (realtime.Conn, error) {
	return d.conn, d.err
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.RealtimeUsagePayload
}

func (r *recordingEnqueuer) EnqueueRealtimeUsage(_ context.Context, p queue.RealtimeUsagePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func serveRealtime(t *testing.T, h *RealtimeHandler, user *models.User) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != nil {
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		h.Transcribe(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialClient(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime/transcribe" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readOutbound(t *testing.T, ws *websocket.Conn) realtime.OutboundMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.OutboundMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRealtime_ConnectFailure(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewRealtimeHandler(stubDialer{err: errors.New("refused")}, realtime.Config{APIKey: "sk"}, enq, nil)
	ws := dialClient(t, serveRealtime(t, h, nil), "")

	msg := readOutbound(t, ws)
	if msg.Type != realtime.MsgError || msg.Error != "Failed to connect to OpenAI Realtime API" {
		t.Fatalf("unexpected message %+v", msg)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection")
	}
	if enq.count() != 0 {
		t.Error("failed sessions must not record usage")
	}
}

func TestRealtime_SessionLifecycle(t *testing.T) {
	up := newUpstreamConn()
	enq := &recordingEnqueuer{}
	user := &models.User{ID: uuid.New()}
	h := NewRealtimeHandler(stubDialer{conn: up}, realtime.Config{APIKey: "sk"}, enq, nil)
	ws := dialClient(t, serveRealtime(t, h, user), "?model=gpt-4o-transcribe&language=fr")

	up.in <- []byte(`{"type":"session.created"}`)
	up.in <- []byte(`{"type":"session.updated"}`)
	if msg := readOutbound(t, ws); msg.Type != realtime.MsgSessionReady {
		t.Fatalf("expected session_ready, got %+v", msg)
	}

	up.in <- []byte(`{"type":"conversation.item.input_audio_transcription.delta","delta":"bonjour"}`)
	msg := readOutbound(t, ws)
	if msg.Type != realtime.MsgTranscriptDelta || msg.Delta != "bonjour" || msg.Transcript == nil || *msg.Transcript != "bonjour" {
		t.Fatalf("unexpected delta %+v", msg)
	}

	if err := ws.WriteJSON(map[string]string{"type": "audio_chunk", "data": "AAAA"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitUntil(t, "audio forwarded", func() bool {
		up.mu.Lock()
		defer up.mu.Unlock()
		for _, s := range up.sent {
			if strings.Contains(s, `"input_audio_buffer.append"`) {
				return true
			}
		}
		return false
	})

	if err := ws.WriteJSON(map[string]string{"type": "cancel"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitUntil(t, "usage enqueued", func() bool { return enq.count() == 1 })

	p := enq.payloads[0]
	if p.UserID != user.ID.String() || p.Model != "gpt-4o-transcribe" || p.ConnectionModel != "gpt-4o-realtime-preview" {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Language != "fr" || p.TranscriptChars != len("bonjour") {
		t.Errorf("unexpected payload %+v", p)
	}
	if _, err := uuid.Parse(p.SessionID); err != nil {
		t.Errorf("session id %q is not a uuid", p.SessionID)
	}

	var update map[string]any
	up.mu.Lock()
	first := up.sent[0]
	up.mu.Unlock()
	if err := json.Unmarshal([]byte(first), &update); err != nil || update["type"] != "session.update" {
		t.Errorf("first upstream command should be session.update, got %s", first)
	}
}

func TestRealtime_OversizedClientFrameEndsSession(t *testing.T) {
	up := newUpstreamConn()
	enq := &recordingEnqueuer{}
	cfg := realtime.Config{APIKey: "sk", MaxClientMessageBytes: 4 * 1024}
	h := NewRealtimeHandler(stubDialer{conn: up}, cfg, enq, nil)
	ws := dialClient(t, serveRealtime(t, h, nil), "")

	up.in <- []byte(`{"type":"session.created"}`)
	up.in <- []byte(`{"type":"session.updated"}`)
	if msg := readOutbound(t, ws); msg.Type != realtime.MsgSessionReady {
		t.Fatalf("expected session_ready, got %+v", msg)
	}

	big := map[string]string{"type": "audio_chunk", "data": strings.Repeat("A", 64*1024)}
	if err := ws.WriteJSON(big); err != nil {
		t.Fatalf("write: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Errorf("expected close 1009, got %v", err)
	}
	waitUntil(t, "session end", func() bool { return enq.count() == 1 })

	up.mu.Lock()
	defer up.mu.Unlock()
	for _, s := range up.sent {
		if strings.Contains(s, `"input_audio_buffer.append"`) {
			t.Fatal("oversized frame must not reach upstream")
		}
	}
}

func TestRealtimeHandler_ClientReadLimitDefault(t *testing.T) {
	h := NewRealtimeHandler(stubDialer{}, realtime.Config{}, nil, nil)
	if got := h.clientReadLimit(); got != realtime.DefaultMaxClientMessageBytes {
		t.Errorf("expected default limit, got %d", got)
	}
	h = NewRealtimeHandler(stubDialer{}, realtime.Config{MaxClientMessageBytes: 2048}, nil, nil)
	if got := h.clientReadLimit(); got != 2048 {
		t.Errorf("expected configured limit, got %d", got)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if !check(req) {
		t.Error("requests without Origin should pass")
	}
	req.Header.Set("Origin", "https://app.example.com")
	if !check(req) {
		t.Error("listed origin should pass")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Error("unlisted origin should be rejected")
	}

	if !originChecker(nil)(req) {
		t.Error("empty list should allow any origin")
	}
}
