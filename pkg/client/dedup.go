package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"courseflow-backend/internal/events"
)

const (
	maxNotifications = 5
	displayTTL       = 4 * time.Second
	pairWindow       = 3 * time.Second

	enrollmentDedupWindow = 5 * time.Second
	moduleDedupWindow     = 3 * time.Second
	progressDedupWindow   = 3 * time.Second
	moduleTimeBucket      = 3 // seconds
)

// Notification is one toast-style entry in the bounded notification list.
type Notification struct {
	ID        string
	Type      events.Type
	Title     string
	Message   string
	Timestamp time.Time
}

// Deduplicator gates notification rendering. Two independent guards:
// a time-windowed set of dedup keys suppresses repeated events, and an
// identical (title, message) pair within a short window suppresses list
// insertion even when the keys differ. The list holds at most five entries;
// a sixth evicts the oldest regardless of read state.
type Deduplicator struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string]time.Time
	list []Notification
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Offer runs a frame through both guards. It returns the created
// notification, or false when the frame was suppressed or is not a
// notification-bearing type.
func (d *Deduplicator) Offer(frame events.Frame) (*Notification, bool) {
	key := DedupKey(frame)
	if key == "" {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.sweepLocked(now)

	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return nil, false
	}
	d.seen[key] = now.Add(dedupWindow(frame.Type))

	title, message := notificationContent(frame)
	for _, n := range d.list {
		if n.Title == title && n.Message == message && now.Sub(n.Timestamp) < pairWindow {
			return nil, false
		}
	}

	notification := Notification{
		ID:        uuid.NewString(),
		Type:      frame.Type,
		Title:     title,
		Message:   message,
		Timestamp: now,
	}
	d.list = append(d.list, notification)
	if len(d.list) > maxNotifications {
		d.list = d.list[len(d.list)-maxNotifications:]
	}
	return &notification, true
}

// Notifications returns the unexpired entries, oldest first.
func (d *Deduplicator) Notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sweepLocked(d.now())
	return append([]Notification{}, d.list...)
}

// Dismiss removes a notification by id before its display timeout.
func (d *Deduplicator) Dismiss(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, n := range d.list {
		if n.ID == id {
			d.list = append(d.list[:i], d.list[i+1:]...)
			return true
		}
	}
	return false
}

// sweepLocked lazily expires dedup keys and timed-out notifications.
func (d *Deduplicator) sweepLocked(now time.Time) {
	for key, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, key)
		}
	}
	kept := d.list[:0]
	for _, n := range d.list {
		if now.Sub(n.Timestamp) < displayTTL {
			kept = append(kept, n)
		}
	}
	d.list = kept
}

// DedupKey derives the suppression key for a frame. Typing indicators never
// produce notifications and have no key.
func DedupKey(frame events.Frame) string {
	switch frame.Type {
	case events.EnrollmentSuccess, events.UserEnrolled:
		return fmt.Sprintf("enrollment-%s-%s", frame.CourseID, frame.UserID)

	case events.ModuleCompleted, events.UserModuleCompleted:
		var payload events.ModulePayload
		events.DecodePayload(frame, &payload)
		bucket := frame.Timestamp.Unix() / moduleTimeBucket
		return fmt.Sprintf("module-%s-%s-%d", frame.CourseID, payload.ModuleID, bucket)

	case events.ProgressUpdated:
		return fmt.Sprintf("progress-%s-%s", frame.CourseID, frame.UserID)
	}
	return ""
}

func dedupWindow(t events.Type) time.Duration {
	switch t {
	case events.EnrollmentSuccess, events.UserEnrolled:
		return enrollmentDedupWindow
	case events.ModuleCompleted, events.UserModuleCompleted:
		return moduleDedupWindow
	}
	return progressDedupWindow
}

func notificationContent(frame events.Frame) (title, message string) {
	switch frame.Type {
	case events.EnrollmentSuccess:
		var payload events.EnrollmentPayload
		events.DecodePayload(frame, &payload)
		return "Enrolled", fmt.Sprintf("You are enrolled in %s", payload.CourseTitle)

	case events.UserEnrolled:
		var payload events.EnrollmentPayload
		events.DecodePayload(frame, &payload)
		return "New classmate", fmt.Sprintf("Someone joined %s", payload.CourseTitle)

	case events.ModuleCompleted:
		var payload events.ModulePayload
		events.DecodePayload(frame, &payload)
		return "Module complete", fmt.Sprintf("You finished %s", payload.ModuleTitle)

	case events.UserModuleCompleted:
		var payload events.ModulePayload
		events.DecodePayload(frame, &payload)
		return "Classmate progress", fmt.Sprintf("A classmate finished %s", payload.ModuleTitle)

	case events.ProgressUpdated:
		var payload events.ProgressPayload
		events.DecodePayload(frame, &payload)
		return "Progress saved", fmt.Sprintf("Course progress is now %.0f%%", payload.Percentage)
	}
	return string(frame.Type), ""
}
