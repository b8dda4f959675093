package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/uuid"
)

// WebSocket event types.
const (
	EventSyncStarted   = "sync.started"
	EventSyncProgress  = "sync.progress"
	EventSyncCompleted = "sync.completed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Envelope wraps all WebSocket messages.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// client is one WebSocket connection. An empty subscription set receives
// every event.
type client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	// send is closed by the hub on unregister; direct carries control replies
	// and is never closed.
	send   chan []byte
	direct chan []byte

	mu            sync.Mutex
	subscriptions map[string]bool
}

func (c *client) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// Hub fans drain events out to connected WebSocket clients. It implements
// queue.Observer.
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[string]*client
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

var _ queue.Observer = (*Hub)(nil)

// NewHub creates a hub. Browser connections are accepted from localhost and
// from the listed origin hosts; non-browser clients send no Origin.
func NewHub(allowedOrigins []string) *Hub {
	allowed := map[string]bool{"localhost": true, "127.0.0.1": true}
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return allowed[u.Hostname()] || allowed[u.Host]
			},
		},
		clients:    make(map[string]*client),
		broadcast:  make(chan Envelope, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run manages client connections and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.setCount(0)
			return

		case c := <-h.register:
			h.clients[c.id] = c
			h.setCount(len(h.clients))
			logging.Debug("WebSocket client connected", map[string]interface{}{"client_id": c.id, "total": len(h.clients)})

		case c := <-h.unregister:
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.setCount(len(h.clients))
			logging.Debug("WebSocket client disconnected", map[string]interface{}{"client_id": c.id, "total": len(h.clients)})

		case env := <-h.broadcast:
			bytes, err := json.Marshal(env)
			if err != nil {
				logging.Warn("Failed to marshal WebSocket message", map[string]interface{}{"type": env.Type, "error": err.Error()})
				continue
			}
			for id, c := range h.clients {
				if !c.wants(env.Type) {
					continue
				}
				select {
				case c.send <- bytes:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast queues an event for all interested clients. It never blocks;
// events are dropped when the hub is backed up.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	env := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	select {
	case h.broadcast <- env:
	default:
		logging.Warn("WebSocket broadcast buffer full, dropping event", map[string]interface{}{"type": eventType})
	}
}

// DrainStarted implements queue.Observer.
func (h *Hub) DrainStarted(total int) {
	h.Broadcast(EventSyncStarted, map[string]interface{}{"total": total})
}

// DrainProgress implements queue.Observer.
func (h *Hub) DrainProgress(p queue.Progress) {
	percent := 0
	if p.Total > 0 {
		percent = p.Current * 100 / p.Total
	}
	h.Broadcast(EventSyncProgress, map[string]interface{}{
		"current": p.Current,
		"total":   p.Total,
		"percent": percent,
	})
}

// DrainCompleted implements queue.Observer.
func (h *Hub) DrainCompleted(r queue.DrainResult) {
	data := map[string]interface{}{
		"total":         r.Total,
		"succeeded":     r.Succeeded,
		"requeued":      r.Requeued,
		"dead_lettered": r.DeadLettered,
		"duration_ms":   r.Duration.Milliseconds(),
	}
	if r.Error != "" {
		data["error"] = r.Error
	}
	h.Broadcast(EventSyncCompleted, data)
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", map[string]interface{}{"remote": r.RemoteAddr, "error": err.Error()})
		return
	}

	c := &client{
		id:            uuid.New(),
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		direct:        make(chan []byte, 8),
		hub:           h,
		subscriptions: make(map[string]bool),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// clientMessage is a control message sent by a client.
type clientMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// readPump handles control messages until the connection fails.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})
		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()
		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// reply queues a direct response, dropping it if the client is backed up.
func (c *client) reply(msg map[string]interface{}) {
	msg["timestamp"] = time.Now().Unix()
	bytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.direct <- bytes:
	default:
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
