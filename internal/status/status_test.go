package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestServer serves a hub. Cleanups run last in first out, so the wait for the hub to
// drop every client runs after all connections from dial are closed.
func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	t.Cleanup(func() {
		assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var u Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub, srv := newTestServer(t)

	hub.Publish(Update{Type: TypeState, State: "authenticated", Volume: 40})
	hub.Publish(Update{Type: TypeVolume, State: "authenticated", Volume: 45})

	conn := dial(t, srv)
	assert.Equal(t, Update{Type: TypeVolume, State: "authenticated", Volume: 45}, readUpdate(t, conn))
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub, srv := newTestServer(t)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	want := Update{Type: TypeVolume, State: "authenticated", Volume: 55}
	hub.Publish(want)

	assert.Equal(t, want, readUpdate(t, a))
	assert.Equal(t, want, readUpdate(t, b))
}

func TestHub_WireFormat(t *testing.T) {
	data, err := json.Marshal(Update{Type: TypeState, State: "logging_in", Volume: 50})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"state","state":"logging_in","volume":50}`, string(data))
}

func TestHub_EvictsSlowClient(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	slow := &client{send: make(chan []byte, 1), addr: "slow"}
	slow.send <- []byte("{}")
	hub.clients[slow] = struct{}{}

	hub.Publish(Update{Type: TypeVolume, Volume: 10})

	assert.Equal(t, 0, hub.Clients())
	<-slow.send
	_, ok := <-slow.send
	assert.False(t, ok, "send queue is closed on eviction")
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, srv := newTestServer(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, addr, hub) }()

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHub_TwoClientsDisconnect(t *testing.T) {
	hub, srv := newTestServer(t)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	b.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	a.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_OriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		ok     bool
	}{
		{origin: "", ok: true},
		{origin: "http://localhost:3000", ok: true},
		{origin: "http://127.0.0.1:8080", ok: true},
		{origin: "http://[::1]:8080", ok: true},
		{origin: "https://example.com", ok: false},
		{origin: "http://localhost.example.com", ok: false},
		{origin: "null", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			hub, srv := newTestServer(t)

			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if tt.ok {
				require.NoError(t, err)
				require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
				conn.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
