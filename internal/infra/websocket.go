package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 32
)

// WSHub manages WebSocket connections and room-based message delivery.
// Rooms are user-scoped ("user:{id}") or role-scoped ("role:{role}").
type WSHub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*WSConn // room -> connID -> conn
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// WSConn represents a WebSocket connection. Send is drained by the writer
// goroutine; tests may construct a WSConn without a socket.
type WSConn struct {
	ID     string
	UserID string
	Send   chan []byte
	rooms  []string
}

// WSMessage is the payload sent over WebSocket.
type WSMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(allowedOrigin string, logger *slog.Logger) *WSHub {
	return &WSHub{
		rooms:  make(map[string]map[string]*WSConn),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// UserRoom returns the room name for a single user.
func UserRoom(userID string) string { return "user:" + userID }

// RoleRoom returns the room name for every connected user holding role.
func RoleRoom(role string) string { return "role:" + role }

// Join adds a connection to a room.
func (h *WSHub) Join(room string, conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSConn)
	}
	h.rooms[room][conn.ID] = conn
	conn.rooms = append(conn.rooms, room)
}

// Leave removes a connection from a room.
func (h *WSHub) Leave(room string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, connID)
}

func (h *WSHub) leaveLocked(room, connID string) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish sends a message to all connections in a room. Slow consumers
// drop messages rather than block the publisher.
func (h *WSHub) Publish(room string, event string, data any) {
	payload, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room, "event", event)
		return
	}
	h.PublishRaw(room, payload)
}

// PublishRaw sends an already-encoded message to a room.
func (h *WSHub) PublishRaw(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.rooms[room] {
		select {
		case conn.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "connID", conn.ID, "room", room)
		}
	}
}

// PublishToUser is a convenience method to publish to a user-scoped room.
func (h *WSHub) PublishToUser(userID string, event string, data any) {
	h.Publish(UserRoom(userID), event, data)
}

// ServeWS upgrades the request and attaches the socket to the user's room
// and role room. It blocks until the client disconnects.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request, userID, role string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	conn := &WSConn{ID: uuid.NewString(), UserID: userID, Send: make(chan []byte, wsSendBuffer)}
	h.Join(UserRoom(userID), conn)
	h.Join(RoleRoom(role), conn)
	h.logger.Debug("ws connected", "connID", conn.ID, "user_id", userID)

	done := make(chan struct{})
	go h.writePump(ws, conn, done)
	h.readPump(ws)

	h.detach(conn)
	close(done)
	h.logger.Debug("ws disconnected", "connID", conn.ID, "user_id", userID)
}

// readPump discards client frames; it only exists to service pongs and
// detect the close.
func (h *WSHub) readPump(ws *websocket.Conn) {
	defer ws.Close()
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writePump(ws *websocket.Conn, conn *WSConn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHub) detach(conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range conn.rooms {
		h.leaveLocked(room, conn.ID)
	}
}

// ConnectionCount returns the number of connections in user rooms.
func (h *WSHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for room, conns := range h.rooms {
		if strings.HasPrefix(room, "user:") {
			count += len(conns)
		}
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *WSHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes all connections gracefully.
func (h *WSHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	closed := make(map[string]bool)
	for room, conns := range h.rooms {
		for id, conn := range conns {
			if !closed[id] {
				close(conn.Send)
				closed[id] = true
			}
		}
		delete(h.rooms, room)
	}
}
