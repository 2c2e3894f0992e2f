package websocket

import (
	"encoding/json"
	"sync/atomic"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// Conn is the slice of a websocket connection the hub uses. Both
// *websocket.Conn and test fakes satisfy it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans lifecycle events out to connected operator consoles. The run
// loop is the only goroutine that touches the client map.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int32
	log        *zap.Logger
}

type Client struct {
	hub  *Hub
	conn Conn
	// Buffered channel of outbound frames. A client that cannot drain it
	// gets dropped instead of stalling the feed.
	send chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Add(-1)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
					h.count.Add(-1)
				}
			}
		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				h.count.Add(-1)
			}
			return
		}
	}
}

// Clients reports how many feed consumers are attached.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) Stop() {
	close(h.done)
}

// Relay is the sink wired into the event publisher. It must never block
// the publisher worker, so a full broadcast buffer drops the event.
func (h *Hub) Relay(evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn("failed to marshal feed event", zap.String("subject", evt.Subject), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("event feed buffer full, dropping event", zap.String("subject", evt.Subject))
	}
}

// AddClient attaches a consumer socket and blocks until it disconnects.
// Fiber's websocket handler requires the connection to be served on the
// handler goroutine, so this does not return early.
func (h *Hub) AddClient(conn Conn) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// readPump drains inbound frames. The feed is push-only; reading is what
// detects the peer going away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes one event per text frame so consumers can decode each
// frame as a standalone JSON document.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
