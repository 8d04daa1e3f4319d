// Package realtime is the WebSocket side of the gateway: it accepts client
// connections, reports each open and close exactly once, and broadcasts
// events to every connected client.
//
// Frames sent by the hub are JSON text messages:
//
//	{"event": "shutdownCountdownUpdate", "data": 42}
//
// Terminal output produced by the bridge is sent as binary frames on the
// same connection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds how long a single event write may block on a slow client.
const writeTimeout = 5 * time.Second

// sendBuffer is how many broadcast frames may queue for one client before
// further broadcasts to it are dropped.
const sendBuffer = 32

// ErrClosed is returned by Accept once the hub has been closed.
var ErrClosed = errors.New("realtime hub closed")

// Message is the JSON envelope for hub events.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one accepted WebSocket connection.
type Client struct {
	conn *websocket.Conn
	// out queues broadcast frames; writeLoop sends them in order.
	out chan []byte
	// RemoteAddr is the peer address reported by the HTTP request.
	RemoteAddr string
}

// Conn exposes the underlying connection for the terminal bridge.
func (c *Client) Conn() *websocket.Conn { return c.conn }

// Emit sends a single event to this client.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.write(ctx, b)
}

func (c *Client) write(ctx context.Context, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-c.out:
			if err := c.write(ctx, b); err != nil {
				log.Printf("[realtime] broadcast to %s: %v", c.RemoteAddr, err)
			}
		}
	}
}

// ServeFunc runs for the lifetime of an accepted client. The connection is
// unregistered and closed when it returns.
type ServeFunc func(ctx context.Context, c *Client)

// Hub tracks connected clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	onOpen  []func()
	onClose []func()

	// AcceptOptions is passed to websocket.Accept.
	AcceptOptions *websocket.AcceptOptions
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*Client]struct{}),
		AcceptOptions: &websocket.AcceptOptions{InsecureSkipVerify: true},
	}
}

// OnOpen registers fn to run once for every accepted connection. Register
// callbacks before serving traffic.
func (h *Hub) OnOpen(fn func()) { h.onOpen = append(h.onOpen, fn) }

// OnClose registers fn to run once for every connection that goes away,
// always after the matching OnOpen callback.
func (h *Hub) OnClose(fn func()) { h.onClose = append(h.onClose, fn) }

// Accept upgrades the request and runs serve until it returns. It returns
// ErrClosed without upgrading once the hub is closed.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, serve ServeFunc) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "Service unavailable: Server shutting down", http.StatusServiceUnavailable)
		return ErrClosed
	}

	conn, err := websocket.Accept(w, r, h.AcceptOptions)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &Client{conn: conn, out: make(chan []byte, sendBuffer), RemoteAddr: r.RemoteAddr}
	go c.writeLoop(ctx)
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return ErrClosed
	}
	defer h.unregister(c)

	serve(ctx, c)
	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for _, fn := range h.onOpen {
		fn()
	}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	for _, fn := range h.onClose {
		fn()
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues event for every connected client without blocking the
// caller. Each client receives broadcasts in the order they were made; a
// client whose queue is full misses the event.
func (h *Hub) Broadcast(event string, data any) {
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		log.Printf("[realtime] encode %s: %v", event, err)
		return
	}
	for _, c := range h.snapshot() {
		select {
		case c.out <- b:
		default:
			log.Printf("[realtime] dropped %s for slow client %s", event, c.RemoteAddr)
		}
	}
}

// Close refuses new connections and closes every open one with "going
// away". It does not wait for the close handshakes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	clients := h.snapshot()
	log.Printf("[realtime] closing %d client connections", len(clients))
	for _, c := range clients {
		go c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) snapshot() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
