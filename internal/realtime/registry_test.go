package realtime

import (
	"testing"

	"github.com/google/uuid"
)

func newTestConnection(userID uuid.UUID) *Connection {
	return newConnection(userID, nil, 8)
}

func TestRegisterIsIdempotent(t *testing.T) {
	rooms := NewRoomManager()
	registry := NewRegistry(rooms)
	userID := uuid.New()
	conn := newTestConnection(userID)

	registry.Register(conn)
	registry.Register(conn)

	if got := len(registry.ConnectionsFor(userID)); got != 1 {
		t.Fatalf("Expected 1 connection after double register, got %d", got)
	}
}

func TestMultiTabUser(t *testing.T) {
	rooms := NewRoomManager()
	registry := NewRegistry(rooms)
	userID := uuid.New()

	tab1 := newTestConnection(userID)
	tab2 := newTestConnection(userID)
	registry.Register(tab1)
	registry.Register(tab2)

	if got := len(registry.ConnectionsFor(userID)); got != 2 {
		t.Fatalf("Expected 2 connections for multi-tab user, got %d", got)
	}

	registry.Unregister(tab1.ID)
	if got := len(registry.ConnectionsFor(userID)); got != 1 {
		t.Errorf("Expected 1 connection after closing one tab, got %d", got)
	}

	registry.Unregister(tab2.ID)
	if got := len(registry.ConnectionsFor(userID)); got != 0 {
		t.Errorf("Expected user fully offline, got %d connections", got)
	}
}

func TestUnregisterPurgesRoomMembership(t *testing.T) {
	rooms := NewRoomManager()
	registry := NewRegistry(rooms)
	conn := newTestConnection(uuid.New())
	roomA := uuid.New()
	roomB := uuid.New()

	registry.Register(conn)
	rooms.Join(conn.ID, roomA)
	rooms.Join(conn.ID, roomB)

	registry.Unregister(conn.ID)

	for _, roomID := range []uuid.UUID{roomA, roomB} {
		if got := len(rooms.MembersOf(roomID)); got != 0 {
			t.Errorf("Room %s still has %d members after unregister", roomID, got)
		}
	}
}

func TestUnregisterUnknownConnection(t *testing.T) {
	registry := NewRegistry(NewRoomManager())

	if c := registry.Unregister(uuid.New()); c != nil {
		t.Errorf("Expected nil for unknown connection, got %v", c)
	}
}
