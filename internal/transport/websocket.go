// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "trap/internal/log"
)

const (
	writeTimeout = 2 * time.Second
	pingPeriod   = 30 * time.Second
	queueSize    = 256
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// WebSocketTransport broadcasts every Send as JSON to the clients connected
// on /ws. A client that connects after a detection is sent the most recent
// notable message first.
type WebSocketTransport struct {
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	queue    chan any
	done     chan struct{}
	stopped  sync.Once

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	notable any
}

// NewWebSocketTransport listens on addr and starts serving. Use port 0 to
// pick a free port; Addr reports the one chosen.
func NewWebSocketTransport(addr string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	t := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			// Dashboards are served from anywhere on the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		listener: ln,
		queue:    make(chan any, queueSize),
		done:     make(chan struct{}),
		clients:  make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.serveClient)
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		applog.Infof("WebSocket: Serving on ws://%s/ws", ln.Addr())
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocket: Server stopped: %v", err)
		}
	}()
	go t.pump()

	return t, nil
}

// Addr returns the listening address.
func (t *WebSocketTransport) Addr() net.Addr { return t.listener.Addr() }

// Clients returns the number of connected clients.
func (t *WebSocketTransport) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *WebSocketTransport) serveClient(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocket: Upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	t.mu.Lock()
	if last := t.notable; last != nil {
		if err := write(conn, last); err != nil {
			t.mu.Unlock()
			conn.Close()
			return
		}
	}
	t.clients[conn] = struct{}{}
	n := len(t.clients)
	t.mu.Unlock()
	applog.Debugf("WebSocket: %s connected, %d clients", r.RemoteAddr, n)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.remove(conn)
				return
			}
		}
	}()
}

func write(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (t *WebSocketTransport) remove(conn *websocket.Conn) {
	t.mu.Lock()
	_, ok := t.clients[conn]
	delete(t.clients, conn)
	n := len(t.clients)
	t.mu.Unlock()
	if ok {
		conn.Close()
		applog.Debugf("WebSocket: Client left, %d clients", n)
	}
}

// pump writes queued messages to every client and pings idle connections.
func (t *WebSocketTransport) pump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-t.done:
			return
		case v := <-t.queue:
			t.each(func(c *websocket.Conn) error { return write(c, v) })
		case <-ping.C:
			t.each(func(c *websocket.Conn) error {
				return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			})
		}
	}
}

// each applies fn to every client and drops the ones it fails on.
func (t *WebSocketTransport) each(fn func(*websocket.Conn) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.clients {
		if err := fn(c); err != nil {
			applog.Warnf("WebSocket: Dropping client: %v", err)
			c.Close()
			delete(t.clients, c)
		}
	}
}

// Send queues data for broadcast. A full queue drops the message rather
// than blocking the caller.
func (t *WebSocketTransport) Send(data any) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if n, ok := data.(Notable); ok && n.Notable() {
		t.mu.Lock()
		t.notable = data
		t.mu.Unlock()
	}
	select {
	case t.queue <- data:
	default:
		applog.Debugf("WebSocket: Queue full, dropping message")
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (t *WebSocketTransport) Close() error {
	var err error
	t.stopped.Do(func() {
		close(t.done)
		t.mu.Lock()
		for c := range t.clients {
			c.Close()
		}
		clear(t.clients)
		t.mu.Unlock()
		err = t.server.Close()
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
