package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
	"github.com/maxsfamily/stripgate/internal/infrastructure/logging"
)

// ErrManagerClosed is returned by Serve after Close has been called.
var ErrManagerClosed = errors.New("connection: manager closed")

// Registrar is the part of the device registry the manager needs.
type Registrar interface {
	Register(d *device.Device) error
	Release(id string, link device.Link) bool
}

// Manager accepts controller connections and owns their links.
type Manager struct {
	cfg      config.WebSocketConfig
	registry Registrar
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	links  map[*Link]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a connection manager that registers devices in registry.
func NewManager(cfg config.WebSocketConfig, registry Registrar, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With("component", "connection"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Controllers are not browsers; the API key is checked before upgrade.
				return true
			},
		},
		links: make(map[*Link]struct{}),
	}
}

// Serve upgrades the request and runs the connection for deviceID until the
// peer disconnects or Close is called. Authentication must already have
// happened. It blocks for the lifetime of the connection.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, deviceID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		return fmt.Errorf("upgrading connection for %s: %w", deviceID, err)
	}

	link := newLink(deviceID, conn, m.writeTimeout())
	if !m.track(link) {
		// Close ran during the upgrade and will not see this link.
		link.close()
		return ErrManagerClosed
	}
	defer m.untrack(link)

	if err := m.registry.Register(device.NewStrip(deviceID, link)); err != nil {
		link.close()
		return fmt.Errorf("registering %s: %w", deviceID, err)
	}
	m.logger.Info("device connected", "device_id", deviceID, "remote_addr", r.RemoteAddr)

	go m.keepalive(link)
	m.readLoop(link)
	link.close()

	if m.registry.Release(deviceID, link) {
		m.logger.Info("device disconnected", "device_id", deviceID,
			"connected_for", time.Since(link.connectedAt).Round(time.Second).String())
	} else {
		m.logger.Debug("superseded connection closed", "device_id", deviceID)
	}
	return nil
}

// readLoop consumes inbound frames until the connection fails.
func (m *Manager) readLoop(link *Link) {
	conn := link.conn
	if m.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(m.cfg.MaxMessageSize))
	}

	wait := m.pingInterval() + m.pongTimeout()
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case link.closed():
				m.logger.Debug("websocket closed locally", "device_id", link.deviceID)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				m.logger.Warn("websocket read error", "device_id", link.deviceID, "error", err)
			default:
				m.logger.Debug("websocket closed", "device_id", link.deviceID, "error", err)
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(wait))
		m.logger.Debug("message from device", "device_id", link.deviceID, "message", string(message))
	}
}

// keepalive pings the controller until the link closes.
func (m *Manager) keepalive(link *Link) {
	ticker := time.NewTicker(m.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-link.done:
			return
		case <-ticker.C:
			if err := link.ping(m.pongTimeout()); err != nil {
				m.logger.Debug("ping failed", "device_id", link.deviceID, "error", err)
				link.close()
				return
			}
		}
	}
}

// Send implements device.Sender. A failed write closes the link, which ends
// its read loop; the registry releases the entry. Sends are not retried.
func (m *Manager) Send(ctx context.Context, id string, link device.Link, command string) error {
	err := link.Send(ctx, command)
	if err == nil {
		return nil
	}
	if l, ok := link.(*Link); ok {
		l.close()
	}
	m.logger.Warn("send to device failed", "device_id", id, "error", err)
	return err
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// Close closes every open connection and waits for their handlers to return.
// Later calls to Serve fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	links := make([]*Link, 0, len(m.links))
	for l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		l.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame
		l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		l.close()
	}
	m.wg.Wait()
	m.logger.Info("connections closed", "count", len(links))
}

// track adds l to the open links. It reports false once Close has started.
func (m *Manager) track(l *Link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.links[l] = struct{}{}
	return true
}

func (m *Manager) untrack(l *Link) {
	m.mu.Lock()
	delete(m.links, l)
	m.mu.Unlock()
}

func (m *Manager) pingInterval() time.Duration {
	return time.Duration(m.cfg.PingInterval) * time.Second
}

func (m *Manager) pongTimeout() time.Duration {
	return time.Duration(m.cfg.PongTimeout) * time.Second
}

func (m *Manager) writeTimeout() time.Duration {
	if m.cfg.WriteTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.cfg.WriteTimeout) * time.Second
}
