package infra

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWSHub_PublishToRoom(t *testing.T) {
	hub := NewWSHub("*", testLogger())
	a := &WSConn{ID: "a", Send: make(chan []byte, 1)}
	b := &WSConn{ID: "b", Send: make(chan []byte, 1)}
	hub.Join(UserRoom("u1"), a)
	hub.Join(UserRoom("u2"), b)

	hub.PublishToUser("u1", "order.updated", map[string]string{"id": "o1"})

	select {
	case msg := <-a.Send:
		var m WSMessage
		require.NoError(t, json.Unmarshal(msg, &m))
		assert.Equal(t, "order.updated", m.Event)
	default:
		t.Fatal("expected message for u1")
	}
	assert.Len(t, b.Send, 0)
}

func TestWSHub_FullBufferDrops(t *testing.T) {
	hub := NewWSHub("*", testLogger())
	c := &WSConn{ID: "c", Send: make(chan []byte, 1)}
	hub.Join(RoleRoom("admin"), c)

	hub.Publish(RoleRoom("admin"), "e", 1)
	hub.Publish(RoleRoom("admin"), "e", 2)

	assert.Len(t, c.Send, 1)
}

func TestWSHub_LeaveRemovesEmptyRoom(t *testing.T) {
	hub := NewWSHub("*", testLogger())
	c := &WSConn{ID: "c", Send: make(chan []byte, 1)}
	hub.Join(UserRoom("u1"), c)
	assert.Equal(t, 1, hub.RoomCount())
	hub.Leave(UserRoom("u1"), "c")
	assert.Equal(t, 0, hub.RoomCount())
}

func TestWSHub_ServeWS(t *testing.T) {
	hub := NewWSHub("*", testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "u1", "customer")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishToUser("u1", "wallet.credited", map[string]string{"amount": "10.00"})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "wallet.credited")

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return hub.RoomCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
