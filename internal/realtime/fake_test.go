package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Messages pushed with push are returned by
// Receive in order; hangup makes Receive report ErrClosed once they are drained.
type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	sent       [][]byte
	closeCount int
	closeErr   error
	sendErr    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), msg...))
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCount++
	err := c.closeErr
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return err
}

func (c *fakeConn) push(msgs ...string) {
	for _, m := range msgs {
		c.in <- []byte(m)
	}
}

func (c *fakeConn) hangup() {
	close(c.in)
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// messages decodes everything sent through the conn so far.
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("sent message is not JSON: %q: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeDialer struct {
	conn Conn
	err  error

	mu     sync.Mutex
	calls  int
	url    string
	header http.Header
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.url = url
	d.header = header.Clone()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}
