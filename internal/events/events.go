package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the named wire channel an event travels on.
type Type string

// Client → server.
const (
	JoinCourse     Type = "join:course"
	LeaveCourse    Type = "leave:course"
	ProgressUpdate Type = "progress:update"
	TypingStart    Type = "typing:start"
	TypingStop     Type = "typing:stop"
)

// Server → client.
const (
	EnrollmentSuccess   Type = "enrollment:success"
	UserEnrolled        Type = "user:enrolled"
	ProgressUpdated     Type = "progress:updated"
	ModuleCompleted     Type = "module:completed"
	UserModuleCompleted Type = "user:module_completed"
	UserTyping          Type = "user:typing"
	UserStoppedTyping   Type = "user:stopped_typing"
)

// Frame is the single wire format for both directions. CourseID and UserID
// are zero-valued when a direction does not use them; Origin identifies the
// server instance that produced an outbound frame so the Redis bridge can
// skip frames it published itself.
type Frame struct {
	Type      Type            `json:"type"`
	CourseID  uuid.UUID       `json:"course_id,omitempty"`
	UserID    uuid.UUID       `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Origin    string          `json:"origin,omitempty"`
}

type EnrollmentPayload struct {
	CourseTitle string `json:"course_title"`
	UserName    string `json:"user_name,omitempty"`
}

type ProgressPayload struct {
	Percentage   float64    `json:"percentage"`
	LastModuleID *uuid.UUID `json:"last_module_id,omitempty"`
}

type ModulePayload struct {
	ModuleID    uuid.UUID `json:"module_id"`
	ModuleTitle string    `json:"module_title,omitempty"`
}

// DecodePayload unmarshals a frame payload into the variant struct for its
// type. A missing payload leaves dst untouched.
func DecodePayload(f Frame, dst any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, dst)
}

// MustPayload marshals a payload struct, panicking on failure. All payload
// variants are plain structs, so marshalling cannot fail at runtime.
func MustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Personal reports whether a server→client type targets only the acting
// user's own connections.
func (t Type) Personal() bool {
	return t == EnrollmentSuccess || t == ModuleCompleted
}

// RoomOnly reports whether a server→client type targets room members while
// excluding the acting user's connections.
func (t Type) RoomOnly() bool {
	switch t {
	case UserEnrolled, UserModuleCompleted, UserTyping, UserStoppedTyping:
		return true
	}
	return false
}
