package push

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bus-tracker/internal/fleet"
)

const (
	EventBusesUpdate = "buses-update"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	DefaultSendQueue = 16
)

// Message is the frame pushed to every client on connect and after each tick.
type Message struct {
	Event     string          `json:"event"`
	Data      []fleet.Vehicle `json:"data"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
}

type SnapshotSource interface {
	Snapshot() fleet.Snapshot
}

type Metrics interface {
	ClientsSet(n int)
	ClientDroppedInc()
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	lastSeq uint64
	primed  bool
}

// Hub fans snapshots out to WebSocket clients. Each client has a bounded
// queue; a client whose queue is full when a snapshot arrives is dropped.
type Hub struct {
	src       SnapshotSource
	upgrader  websocket.Upgrader
	sendQueue int
	metrics   Metrics

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// NewHub creates a hub. allowedOrigins of nil or containing "*" accepts any
// origin.
func NewHub(src SnapshotSource, sendQueue int, allowedOrigins []string, m Metrics) *Hub {
	if sendQueue <= 0 {
		sendQueue = DefaultSendQueue
	}
	h := &Hub{
		src:       src,
		sendQueue: sendQueue,
		metrics:   m,
		clients:   make(map[uuid.UUID]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func encode(snap *fleet.Snapshot) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventBusesUpdate,
		Data:      snap.Vehicles,
		Seq:       snap.Seq,
		Timestamp: snap.TakenAt,
	})
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues snap for every client. It has the simulator listener
// signature so it can be subscribed directly.
func (h *Hub) Broadcast(snap fleet.Snapshot) error {
	msg, err := encode(&snap)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if c.primed && snap.Seq <= c.lastSeq {
			continue
		}
		select {
		case c.send <- msg:
			c.lastSeq, c.primed = snap.Seq, true
		default:
			log.Printf("ws client %s too slow, dropping", c.id)
			h.removeLocked(c)
			if h.metrics != nil {
				h.metrics.ClientDroppedInc()
			}
		}
	}
	return nil
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	if h.metrics != nil {
		h.metrics.ClientsSet(len(h.clients))
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams snapshots until the client goes
// away or is dropped.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, h.sendQueue)}

	// register and queue the current state under one lock so a concurrent
	// Broadcast cannot slip an older frame in after it
	h.mu.Lock()
	snap := h.src.Snapshot()
	msg, err := encode(&snap)
	if err != nil {
		h.mu.Unlock()
		log.Printf("ws encode error: %v", err)
		conn.Close()
		return
	}
	c.send <- msg
	c.lastSeq, c.primed = snap.Seq, true
	h.clients[c.id] = c
	if h.metrics != nil {
		h.metrics.ClientsSet(len(h.clients))
	}
	h.mu.Unlock()

	log.Printf("ws client %s connected from %s", c.id, r.RemoteAddr)
	go h.writePump(c)
	h.readPump(c)
	log.Printf("ws client %s disconnected", c.id)
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws client %s read error: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}
