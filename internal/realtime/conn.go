package realtime

import (
	"context"
	"errors"
	"net/http"
)

// ErrClosed is returned by Conn.Receive once the peer has closed the stream.
var ErrClosed = errors.New("realtime: connection closed")

// Conn is a message-framed duplex stream. Receive blocks until the next text
// message arrives; Send may be called concurrently with Receive.
type Conn interface {
	Send(msg []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}
