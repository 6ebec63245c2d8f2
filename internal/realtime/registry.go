package realtime

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Registry maps authenticated users to their live connections. Identity
// validation happens at the handshake; the registry only ever sees
// pre-authenticated connections.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Connection
	byUser map[uuid.UUID]map[uuid.UUID]*Connection
	rooms  *RoomManager
}

func NewRegistry(rooms *RoomManager) *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Connection),
		byUser: make(map[uuid.UUID]map[uuid.UUID]*Connection),
		rooms:  rooms,
	}
}

// Register adds a connection; registering the same connection twice is a
// no-op.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ID]; ok {
		return
	}
	r.byID[c.ID] = c
	if r.byUser[c.UserID] == nil {
		r.byUser[c.UserID] = make(map[uuid.UUID]*Connection)
	}
	r.byUser[c.UserID][c.ID] = c

	log.Printf("realtime: connection %s registered for user %s (tabs: %d)", c.ID, c.UserID, len(r.byUser[c.UserID]))
}

// Unregister removes a connection from the user mapping and purges its room
// membership. Returns the removed connection, or nil if it was unknown.
// When a user's last connection goes, the user is fully offline.
func (r *Registry) Unregister(connID uuid.UUID) *Connection {
	r.mu.Lock()
	c, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.byID, connID)

	conns := r.byUser[c.UserID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
	}
	r.mu.Unlock()

	// Cross-cutting invariant: a dead connection must not linger in any room.
	r.rooms.PurgeConnection(connID)

	log.Printf("realtime: connection %s unregistered for user %s", connID, c.UserID)
	return c
}

// ConnectionsFor returns every live connection for a user, for personal
// (non-room) pushes.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Get looks a connection up by id.
func (r *Registry) Get(connID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connID]
	return c, ok
}

// Connections returns a snapshot of every live connection. Used by the idle
// sweeper.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	return conns
}
