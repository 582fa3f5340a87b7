// Package status publishes the controller state and volume to local WebSocket clients.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Path is where the feed is served.
const Path = "/status"

// Message types.
const (
	TypeVolume = "volume"
	TypeState  = "state"
)

const (
	sendBuffer = 16
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// Update is one message of the feed.
type Update struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	Volume int    `json:"volume"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// Hub fans updates out to connected clients. A client that cannot keep up with its
// send buffer is disconnected. The zero value is not usable; call NewHub.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot []byte
}

// NewHub returns a hub without clients.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("status"),
		upgrader: websocket.Upgrader{CheckOrigin: loopbackOrigin},
		clients: make(map[*client]struct{}),
	}
}

// loopbackOrigin admits non-browser clients, which send no Origin, and pages served from
// this machine.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Publish sends u to every client and keeps it as the snapshot for new ones. It never blocks.
func (h *Hub) Publish(u Update) {
	msg, err := json.Marshal(u)
	if err != nil {
		h.logger.Error("failed to encode update", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshot = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(c, "slow client")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), addr: r.RemoteAddr}

	h.mu.Lock()
	if h.snapshot != nil {
		c.send <- h.snapshot
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("remote_addr", c.addr), zap.Int("clients", n))

	// The pumps outlive the request; the connection is owned by the hub from here.
	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c, "shutdown")
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, reason)
}

// removeLocked drops c and closes its send queue, which stops the write pump.
func (h *Hub) removeLocked(c *client, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug("client disconnected",
		zap.String("remote_addr", c.addr),
		zap.String("reason", reason),
		zap.Int("clients", len(h.clients)))
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c, "write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c, "ping error")
				return
			}
		}
	}
}

// readPump discards incoming frames so control frames are handled and disconnects noticed.
func (h *Hub) readPump(c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c, "read error")
			return
		}
	}
}

// ListenAndServe serves the hub at Path on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle(Path, hub)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		hub.logger.Info("status feed listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
