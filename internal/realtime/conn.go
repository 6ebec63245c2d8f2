package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is one live socket belonging to one authenticated user. A user
// may hold several (one per browser tab). Frames are pushed through a
// buffered send channel drained by a single write pump, which preserves
// per-connection delivery order.
type Connection struct {
	ID     uuid.UUID
	UserID uuid.UUID

	ws   *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

func newConnection(userID uuid.UUID, ws *websocket.Conn, sendBuffer int) *Connection {
	return &Connection{
		ID:       uuid.New(),
		UserID:   userID,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		lastSeen: time.Now(),
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen reports when the connection last proved liveness (read or pong).
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// enqueue hands a frame to the write pump without blocking. Reports false
// when the buffer is full or the connection is already closed; the caller
// decides whether to drop the connection.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the send channel exactly once, which terminates the write
// pump and thereby the socket.
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
