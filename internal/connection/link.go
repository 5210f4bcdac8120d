package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLinkClosed is returned when sending on a link whose connection has ended.
var ErrLinkClosed = errors.New("connection: link closed")

// Link is the gateway side of one controller connection.
// Writes are serialised by writeMu; pings use WriteControl, which gorilla
// allows concurrently with other writes.
type Link struct {
	deviceID     string
	conn         *websocket.Conn
	writeTimeout time.Duration
	connectedAt  time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newLink(deviceID string, conn *websocket.Conn, writeTimeout time.Duration) *Link {
	return &Link{
		deviceID:     deviceID,
		conn:         conn,
		writeTimeout: writeTimeout,
		connectedAt:  time.Now().UTC(),
		done:         make(chan struct{}),
	}
}

// DeviceID returns the id the controller connected with.
func (l *Link) DeviceID() string { return l.deviceID }

// Send writes command as a single text frame. The write deadline is the
// earlier of the configured write timeout and ctx's deadline.
func (l *Link) Send(ctx context.Context, command string) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(l.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	//nolint:errcheck // Best-effort deadline; write error caught below
	l.conn.SetWriteDeadline(deadline)
	if err := l.conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		return fmt.Errorf("writing to %s: %w", l.deviceID, err)
	}
	return nil
}

func (l *Link) ping(timeout time.Duration) error {
	return l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// close ends the connection. Safe to call more than once.
func (l *Link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// closed reports whether close has been called.
func (l *Link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
