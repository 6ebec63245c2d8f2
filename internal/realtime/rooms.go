package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// RoomManager tracks which connections belong to which course room. It keeps
// both directions of the mapping so room fan-out and full-disconnect purges
// are both a single lookup.
type RoomManager struct {
	mu     sync.RWMutex
	byRoom map[uuid.UUID]map[uuid.UUID]struct{}
	byConn map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		byRoom: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byConn: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Join adds a connection to a room, creating the room lazily. Joining a room
// the connection is already in is a no-op.
func (m *RoomManager) Join(connID, roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byRoom[roomID] == nil {
		m.byRoom[roomID] = make(map[uuid.UUID]struct{})
	}
	m.byRoom[roomID][connID] = struct{}{}

	if m.byConn[connID] == nil {
		m.byConn[connID] = make(map[uuid.UUID]struct{})
	}
	m.byConn[connID][roomID] = struct{}{}
}

// Leave removes a connection from a room. Absent membership is a no-op.
// Empty rooms are deleted — a room is a derived index, not an entity.
func (m *RoomManager) Leave(connID, roomID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, roomID)
}

func (m *RoomManager) leaveLocked(connID, roomID uuid.UUID) {
	if members, ok := m.byRoom[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.byRoom, roomID)
		}
	}
	if rooms, ok := m.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.byConn, connID)
		}
	}
}

// MembersOf returns the connection ids currently joined to a room.
func (m *RoomManager) MembersOf(roomID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]uuid.UUID, 0, len(m.byRoom[roomID]))
	for connID := range m.byRoom[roomID] {
		members = append(members, connID)
	}
	return members
}

// RoomsOf returns the room ids a connection is joined to.
func (m *RoomManager) RoomsOf(connID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(m.byConn[connID]))
	for roomID := range m.byConn[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// PurgeConnection removes a connection from every room it belongs to. Called
// by the registry on unregister.
func (m *RoomManager) PurgeConnection(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roomID := range m.byConn[connID] {
		m.leaveLocked(connID, roomID)
	}
}

// ActiveRooms returns the number of non-empty rooms.
func (m *RoomManager) ActiveRooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRoom)
}
