// Package ws is the live notification channel: an authenticated WebSocket
// endpoint plus a hub that fans notices out to every open connection of a
// user.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"slotswapper.dev/internal/notify"
	"slotswapper.dev/internal/obs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds per-connection backlog. A connection that cannot
	// keep up has frames dropped rather than stalling the publisher.
	sendBuffer = 16
)

// frame is the wire envelope for pushed notices.
type frame struct {
	Event string        `json:"event"`
	Data  notify.Notice `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks live connections grouped by user. A user may hold several
// connections (multiple tabs); each one receives every notice.
type Hub struct {
	authenticate func(token string) (string, error)
	upgrader     websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*client]struct{}
}

// NewHub builds a hub. authenticate maps a bearer token to a user id and is
// consulted before the connection is upgraded.
func NewHub(authenticate func(token string) (string, error)) *Hub {
	return &Hub{
		authenticate: authenticate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The socket is authenticated by token, not by origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]map[*client]struct{}),
	}
}

// ServeHTTP authenticates and upgrades the connection, then holds it open
// until the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			token = strings.TrimPrefix(bearer, "Bearer ")
		}
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.authenticate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(userID, c)
	obs.WSSessionOpened()

	go c.writePump()
	c.readPump()

	h.unregister(userID, c)
	obs.WSSessionClosed()
}

// Publish sends the notice to every open connection of the user. Connections
// whose send buffer is full are skipped.
func (h *Hub) Publish(userID string, n notify.Notice) {
	payload, err := json.Marshal(frame{Event: "notification", Data: n})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- payload:
		default:
			obs.NotificationDropped()
		}
	}
}

// ConnectionCount reports the number of open connections across all users.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

func (h *Hub) register(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	if set == nil {
		set = make(map[*client]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
	close(c.send)
}

// readPump drains inbound frames. Clients are not expected to send anything;
// the read loop exists to process control frames and detect disconnects.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
