// Package broadcast streams a running session's per-step snapshots to any
// number of WebSocket subscribers. It is entirely optional: a session with
// no broadcaster attached never publishes to a Hub.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans a stream of step snapshots out to every connected subscriber.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub constructs a Hub and starts its run loop in a background goroutine.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}
	go h.run()

	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// client too slow to drain; drop it rather than block the
					// step loop on one stalled subscriber.
					go h.Unregister(c)
				}
			}
			h.mu.RUnlock()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish marshals v as JSON and fans it out to every connected client.
// Never blocks the caller on a slow subscriber or a saturated broadcast
// queue: both drop the frame rather than stall the step loop.
func (h *Hub) Publish(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
	}

	return nil
}

// ServeWS upgrades an HTTP request to a WebSocket connection and registers
// the resulting client as a subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()

	return nil
}

// Unregister removes c from the hub, if still present.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Close stops the hub's run loop. Connected clients are not explicitly
// closed; each detects the broken pipe on its next read/write and exits.
func (h *Hub) Close() {
	close(h.done)
}

// ClientCount reports how many subscribers are currently registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
