package game

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// CLIENT_QUEUE_SIZE bounds the per-client send queue. A client that cannot
// drain 64 messages is too far behind to care about the ones we drop.
const CLIENT_QUEUE_SIZE = 64

// Client is one websocket connection. All writes funnel through a single
// queue drained by one goroutine, so messages reach the wire in the order
// they were enqueued.
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan string
	done   chan struct{}
	once   sync.Once
}

// Hub fans game events out to every connected client as colon-delimited text
// lines (STATE:..., TICK:..., CRASH:...). Messages go out in the order they
// are produced relative to round-state transitions.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan string
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan string, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			go client.writePump()
			log.Printf("[WS] Client connected: %s (Total: %d)", client.userID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				log.Printf("[WS] Client disconnected: %s (Total: %d)", client.userID, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.Send(message)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Broadcast(message string) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("[WS] Broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send enqueues without blocking the hub loop. A full queue drops the message
// rather than stalling every other client.
func (c *Client) Send(message string) {
	select {
	case c.send <- message:
	case <-c.done:
	default:
		log.Printf("[WS] Send queue full for user %s, dropping message", c.userID)
	}
}

// writePump is the only writer on the connection. It exits when the client is
// closed or a write fails; the read loop notices the dead connection and
// unregisters.
func (c *Client) writePump() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
				log.Printf("[WS] Write error for user %s: %v", c.userID, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// close signals the write pump and closes the connection. The send channel is
// never closed, so late Send calls stay safe.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan string, CLIENT_QUEUE_SIZE),
		done:   make(chan struct{}),
	}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
