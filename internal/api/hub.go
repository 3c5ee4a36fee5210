package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Hub fans completion events out to websocket subscribers. A subscriber
// watches one facility; slow consumers are disconnected rather than letting
// their backlog stall the tick.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger

	upgrader websocket.Upgrader
}

type client struct {
	conn     *websocket.Conn
	facility string
	send     chan scheduler.CompletionEvent
}

// NewHub builds an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin during local dev.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection for a facility's
// events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, facility string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	c := &client{
		conn:     conn,
		facility: facility,
		send:     make(chan scheduler.CompletionEvent, sendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	telemetry.EventSubscribers.Inc()
	h.log.Info("event subscriber connected", "facility", facility, "remote", conn.RemoteAddr())

	go c.writePump(h)
	go c.readPump(h)
}

// Broadcast queues events for every matching subscriber.
func (h *Hub) Broadcast(events []scheduler.CompletionEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !h.deliverLocked(c, events) {
			h.log.Warn("dropping slow event subscriber", "facility", c.facility)
			h.dropLocked(c)
		}
	}
}

// deliverLocked queues the matching events; false means the client's buffer
// is full.
func (h *Hub) deliverLocked(c *client, events []scheduler.CompletionEvent) bool {
	for _, ev := range events {
		if c.facility != "" && c.facility != ev.Facility {
			continue
		}
		select {
		case c.send <- ev:
		default:
			return false
		}
	}
	return true
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	telemetry.EventSubscribers.Dec()
}

// ClientCount reports connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is noticing disconnects and
// answering pings.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
