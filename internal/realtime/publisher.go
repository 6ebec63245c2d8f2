package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"courseflow-backend/internal/events"
)

// Publisher fans domain events out to the connections that should see them.
// Delivery is best-effort and at-most-once per connection: errors are logged
// and swallowed so a failed push can never fail the CRUD write that
// triggered it.
type Publisher struct {
	registry *Registry
	rooms    *RoomManager
	bridge   *Bridge
	origin   string
}

func NewPublisher(registry *Registry, rooms *RoomManager) *Publisher {
	return &Publisher{
		registry: registry,
		rooms:    rooms,
		origin:   uuid.NewString(),
	}
}

// AttachBridge connects the publisher to the cross-instance Redis fan-out.
// Without a bridge events are delivered to local connections only.
func (p *Publisher) AttachBridge(b *Bridge) {
	p.bridge = b
}

// Origin identifies this server instance on bridged frames.
func (p *Publisher) Origin() string {
	return p.origin
}

// PublishEnrollment notifies the actor on their personal channel and the
// rest of the room on the broadcast channel. The two audiences are disjoint,
// so the actor never sees their own enrollment twice.
func (p *Publisher) PublishEnrollment(ctx context.Context, userID, courseID uuid.UUID, payload events.EnrollmentPayload) {
	raw := events.MustPayload(payload)
	p.publish(ctx, events.Frame{Type: events.EnrollmentSuccess, CourseID: courseID, UserID: userID, Payload: raw})
	p.publish(ctx, events.Frame{Type: events.UserEnrolled, CourseID: courseID, UserID: userID, Payload: raw})
}

// PublishProgressUpdate notifies room members and the actor's own
// connections, once per connection even when both sets overlap.
func (p *Publisher) PublishProgressUpdate(ctx context.Context, userID, courseID uuid.UUID, payload events.ProgressPayload) {
	p.publish(ctx, events.Frame{
		Type:     events.ProgressUpdated,
		CourseID: courseID,
		UserID:   userID,
		Payload:  events.MustPayload(payload),
	})
}

// PublishModuleCompletion mirrors the enrollment split: a personal frame for
// the actor, a room frame for everyone else.
func (p *Publisher) PublishModuleCompletion(ctx context.Context, userID, courseID, moduleID uuid.UUID, payload events.ModulePayload) {
	payload.ModuleID = moduleID
	raw := events.MustPayload(payload)
	p.publish(ctx, events.Frame{Type: events.ModuleCompleted, CourseID: courseID, UserID: userID, Payload: raw})
	p.publish(ctx, events.Frame{Type: events.UserModuleCompleted, CourseID: courseID, UserID: userID, Payload: raw})
}

// PublishTyping relays a typing indicator to the room, excluding the typist.
func (p *Publisher) PublishTyping(ctx context.Context, userID, courseID uuid.UUID, active bool) {
	t := events.UserTyping
	if !active {
		t = events.UserStoppedTyping
	}
	p.publish(ctx, events.Frame{Type: t, CourseID: courseID, UserID: userID})
}

func (p *Publisher) publish(ctx context.Context, frame events.Frame) {
	frame.Timestamp = time.Now().UTC()
	frame.Origin = p.origin

	p.Deliver(frame)

	if p.bridge != nil {
		p.bridge.Publish(ctx, frame)
	}
}

// Deliver pushes a frame to every local connection in its audience. Also the
// entry point for frames relayed from other instances by the bridge. A
// connection whose send buffer is full is dropped rather than blocking the
// publisher.
func (p *Publisher) Deliver(frame events.Frame) {
	audience := p.audience(frame)
	if len(audience) == 0 {
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("realtime: failed to marshal %s frame: %v", frame.Type, err)
		return
	}

	for _, c := range audience {
		if !c.enqueue(data) {
			log.Printf("realtime: dropping slow connection %s (user %s)", c.ID, c.UserID)
			p.registry.Unregister(c.ID)
			c.closeSend()
		}
	}
}

// audience resolves which local connections a frame targets. Personal types
// go to the actor's connections, room-only types to the room minus the
// actor, and everything else to the union of both, deduplicated so each
// connection appears once.
func (p *Publisher) audience(frame events.Frame) []*Connection {
	switch {
	case frame.Type.Personal():
		return p.registry.ConnectionsFor(frame.UserID)

	case frame.Type.RoomOnly():
		var conns []*Connection
		for _, connID := range p.rooms.MembersOf(frame.CourseID) {
			c, ok := p.registry.Get(connID)
			if !ok || c.UserID == frame.UserID {
				continue
			}
			conns = append(conns, c)
		}
		return conns

	default:
		seen := make(map[uuid.UUID]*Connection)
		for _, connID := range p.rooms.MembersOf(frame.CourseID) {
			if c, ok := p.registry.Get(connID); ok {
				seen[c.ID] = c
			}
		}
		for _, c := range p.registry.ConnectionsFor(frame.UserID) {
			seen[c.ID] = c
		}
		conns := make([]*Connection, 0, len(seen))
		for _, c := range seen {
			conns = append(conns, c)
		}
		return conns
	}
}
