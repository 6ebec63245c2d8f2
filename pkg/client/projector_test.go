package client

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"courseflow-backend/internal/events"
)

func progressFrame(courseID uuid.UUID, pct float64) events.Frame {
	return events.Frame{
		Type:      events.ProgressUpdated,
		CourseID:  courseID,
		UserID:    uuid.New(),
		Timestamp: time.Now().UTC(),
		Payload:   events.MustPayload(events.ProgressPayload{Percentage: pct}),
	}
}

func TestApplyProgressToTrackedCourse(t *testing.T) {
	p := NewProjector()
	courseID := uuid.New()
	p.Track(courseID)

	if !p.ApplyProgressEvent(progressFrame(courseID, 35)) {
		t.Fatal("Expected event for tracked course to apply")
	}

	state, ok := p.Progress(courseID)
	if !ok {
		t.Fatal("Expected tracked course state")
	}
	if state.Percentage != 35 {
		t.Errorf("Expected 35%%, got %v", state.Percentage)
	}
}

func TestUnknownCourseIsIgnored(t *testing.T) {
	p := NewProjector()

	if p.ApplyProgressEvent(progressFrame(uuid.New(), 50)) {
		t.Fatal("Events for untracked courses must be ignored")
	}
	if got := len(p.Snapshot()); got != 0 {
		t.Errorf("Expected no implicit course creation, got %d entries", got)
	}
}

func TestProgressNeverDecreasesFromEvents(t *testing.T) {
	p := NewProjector()
	courseID := uuid.New()
	p.Track(courseID)

	p.ApplyProgressEvent(progressFrame(courseID, 60))
	p.ApplyProgressEvent(progressFrame(courseID, 40)) // stale event

	state, _ := p.Progress(courseID)
	if state.Percentage != 60 {
		t.Errorf("Expected percentage to stay at 60, got %v", state.Percentage)
	}
}

func TestHydrateIsAuthoritative(t *testing.T) {
	p := NewProjector()
	courseID := uuid.New()
	p.Track(courseID)
	p.ApplyProgressEvent(progressFrame(courseID, 80))

	// A re-fetch may legitimately lower the number.
	p.Hydrate([]ProgressState{{CourseID: courseID, Percentage: 55}})

	state, _ := p.Progress(courseID)
	if state.Percentage != 55 {
		t.Errorf("Expected hydrate to overwrite to 55, got %v", state.Percentage)
	}
}

func TestNonProgressFramesIgnored(t *testing.T) {
	p := NewProjector()
	courseID := uuid.New()
	p.Track(courseID)

	frame := events.Frame{Type: events.UserEnrolled, CourseID: courseID}
	if p.ApplyProgressEvent(frame) {
		t.Error("Non-progress frames must not apply")
	}
}

func TestTrackKeepsExistingState(t *testing.T) {
	p := NewProjector()
	courseID := uuid.New()

	p.Hydrate([]ProgressState{{CourseID: courseID, Percentage: 25}})
	p.Track(courseID)

	state, _ := p.Progress(courseID)
	if state.Percentage != 25 {
		t.Errorf("Track must not reset hydrated state, got %v", state.Percentage)
	}
}
