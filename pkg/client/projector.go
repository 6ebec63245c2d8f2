package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"courseflow-backend/internal/events"
)

// ProgressState is the locally displayed completion state for one course.
type ProgressState struct {
	CourseID     uuid.UUID
	Percentage   float64
	LastModuleID *uuid.UUID
	UpdatedAt    time.Time
}

// Projector merges incoming progress events into locally tracked course
// state without a full re-fetch. It never creates courses on its own — the
// tracked set comes from Hydrate/Track, backed by the authoritative course
// API. Displayed percentages only decrease through Hydrate.
type Projector struct {
	mu      sync.Mutex
	courses map[uuid.UUID]ProgressState
}

func NewProjector() *Projector {
	return &Projector{courses: make(map[uuid.UUID]ProgressState)}
}

// Track starts following a course with zeroed progress, keeping any state
// already present.
func (p *Projector) Track(courseID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.courses[courseID]; !ok {
		p.courses[courseID] = ProgressState{CourseID: courseID}
	}
}

// Hydrate installs authoritative state from a re-fetch, overwriting
// whatever was projected — this is the one path that may lower a
// percentage.
func (p *Projector) Hydrate(states []ProgressState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range states {
		p.courses[state.CourseID] = state
	}
}

// ApplyProgressEvent folds a progress frame into tracked state. Frames for
// untracked courses and non-progress frames are ignored. Reports whether
// state changed.
func (p *Projector) ApplyProgressEvent(frame events.Frame) bool {
	if frame.Type != events.ProgressUpdated {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.courses[frame.CourseID]
	if !ok {
		return false
	}

	var payload events.ProgressPayload
	if err := events.DecodePayload(frame, &payload); err != nil {
		return false
	}

	if payload.Percentage > state.Percentage {
		state.Percentage = payload.Percentage
	}
	if payload.LastModuleID != nil {
		state.LastModuleID = payload.LastModuleID
	}
	state.UpdatedAt = frame.Timestamp
	p.courses[frame.CourseID] = state
	return true
}

// Progress returns the tracked state for a course.
func (p *Projector) Progress(courseID uuid.UUID) (ProgressState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.courses[courseID]
	return state, ok
}

// Snapshot returns all tracked courses.
func (p *Projector) Snapshot() []ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make([]ProgressState, 0, len(p.courses))
	for _, state := range p.courses {
		states = append(states, state)
	}
	return states
}
