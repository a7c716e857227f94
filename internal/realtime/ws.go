package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// WSConn adapts a gorilla websocket to Conn. Writes are serialised because
// both relay loops may write to the upstream side.
type WSConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws, done: make(chan struct{})}
}

// SetReadLimit caps the size of a single incoming frame. A larger frame fails
// the pending Receive and closes the socket with status 1009.
func (c *WSConn) SetReadLimit(n int64) {
	c.ws.SetReadLimit(n)
}

func (c *WSConn) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		if isClosedErr(err) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *WSConn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if isClosedErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, fmt.Errorf("read message: %w", err)
	}
	return data, nil
}

// Close sends a normal closure frame and releases the socket. Safe to call
// more than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// startKeepalive pings the peer every interval and fails the next read if no
// pong arrives within interval+timeout. Must be called before the first Receive.
func (c *WSConn) startKeepalive(interval, timeout time.Duration) {
	extend := func() {
		_ = c.ws.SetReadDeadline(time.Now().Add(interval + timeout))
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	go c.ping(interval, timeout)
}

func (c *WSConn) ping(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				return
			}
		}
	}
}

func isClosedErr(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, websocket.ErrCloseSent)
}

// WSDialer dials upstream websocket endpoints with gorilla/websocket.
type WSDialer struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial upstream (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial upstream: %w", err)
	}

	c := NewWSConn(ws)
	if d.PingInterval > 0 {
		c.startKeepalive(d.PingInterval, d.PingTimeout)
	}
	return c, nil
}
