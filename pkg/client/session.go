// Package client is the Go client SDK for the CourseFlow realtime service.
// It mirrors what the web app's socket layer does: one session per logged-in
// user, automatic reconnection with bounded backoff, room re-subscription
// after reconnect, notification deduplication, and local progress
// projection.
package client

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"courseflow-backend/internal/events"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// ErrNotConnected is returned when a frame is sent on a session that has no
// live transport.
var ErrNotConnected = errors.New("client: session is not connected")

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = time.Second
	maxBackoff         = 30 * time.Second
)

// Config configures a Session. Only URL is required.
type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/api/v1/ws.
	URL string

	// MaxReconnectAttempts before the session gives up and enters the
	// exhausted state. Defaults to 5.
	MaxReconnectAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt up to 30s.
	// Defaults to 1s.
	BackoffBase time.Duration

	Dialer *websocket.Dialer
}

// Session owns one physical connection to the realtime endpoint. It is an
// explicit object with a lifecycle tied to login/logout: Connect on login,
// Disconnect on logout. All methods are safe for concurrent use.
type Session struct {
	url         string
	dialer      *websocket.Dialer
	maxAttempts int
	backoffBase time.Duration

	mu         sync.Mutex
	state      State
	token      string
	ws         *websocket.Conn
	rooms      map[uuid.UUID]struct{}
	attempts   int
	retryTimer *time.Timer
	gen        int
	lastFrame  *events.Frame

	onStatus func(State)
	onError  func(error)
	handlers map[events.Type][]func(events.Frame)

	// wmu serializes writes; the websocket allows one concurrent writer.
	wmu sync.Mutex
}

func NewSession(cfg Config) *Session {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	return &Session{
		url:         cfg.URL,
		dialer:      dialer,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		state:       StateDisconnected,
		rooms:       make(map[uuid.UUID]struct{}),
		handlers:    make(map[events.Type][]func(events.Frame)),
	}
}

// OnStatus registers the connection-status callback. Must be set before
// Connect. The callback runs synchronously on the session's internal
// goroutine and must not call back into the session.
func (s *Session) OnStatus(fn func(State)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// OnError registers the callback for handshake and transport errors.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// On registers a handler for one wire event type.
func (s *Session) On(t events.Type, fn func(events.Frame)) {
	s.mu.Lock()
	s.handlers[t] = append(s.handlers[t], fn)
	s.mu.Unlock()
}

// OnEnrollment fires for both the personal and the room enrollment channel.
func (s *Session) OnEnrollment(fn func(events.Frame)) {
	s.On(events.EnrollmentSuccess, fn)
	s.On(events.UserEnrolled, fn)
}

func (s *Session) OnProgress(fn func(events.Frame)) {
	s.On(events.ProgressUpdated, fn)
}

// OnModuleComplete fires for both the personal and the room completion
// channel.
func (s *Session) OnModuleComplete(fn func(events.Frame)) {
	s.On(events.ModuleCompleted, fn)
	s.On(events.UserModuleCompleted, fn)
}

// Connect establishes the session. A handshake rejection (bad token,
// unreachable host) is returned as an error and does not start the retry
// loop — retries are reserved for transport loss on a previously live
// connection. Calling Connect in the exhausted state starts over.
func (s *Session) Connect(token string) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected || s.state == StateReconnecting {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.cancelRetryLocked()
	s.token = token
	s.attempts = 0
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	ws, _, err := s.dialer.Dial(s.url+"?token="+token, nil)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.setStateLocked(StateDisconnected)
		}
		s.mu.Unlock()
		s.emitError(err)
		return err
	}

	s.adopt(ws, gen)
	return nil
}

// Disconnect tears the session down and cancels any pending reconnect. This
// is the intentional terminal transition (logout); it never triggers
// reconnection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.cancelRetryLocked()
	ws := s.ws
	s.ws = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// Join subscribes to a course room and remembers it, so membership is
// re-established after every reconnect.
func (s *Session) Join(courseID uuid.UUID) error {
	s.mu.Lock()
	s.rooms[courseID] = struct{}{}
	ws := s.ws
	s.mu.Unlock()

	if ws == nil {
		return nil // joined on next connect
	}
	return s.writeFrame(ws, events.Frame{Type: events.JoinCourse, CourseID: courseID})
}

// Leave unsubscribes from a course room and forgets it.
func (s *Session) Leave(courseID uuid.UUID) error {
	s.mu.Lock()
	delete(s.rooms, courseID)
	ws := s.ws
	s.mu.Unlock()

	if ws == nil {
		return nil
	}
	return s.writeFrame(ws, events.Frame{Type: events.LeaveCourse, CourseID: courseID})
}

// SendProgress reports course progress to the server.
func (s *Session) SendProgress(courseID uuid.UUID, percentage float64, lastModuleID *uuid.UUID) error {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return s.writeFrame(ws, events.Frame{
		Type:     events.ProgressUpdate,
		CourseID: courseID,
		Payload:  events.MustPayload(events.ProgressPayload{Percentage: percentage, LastModuleID: lastModuleID}),
	})
}

// SetTyping toggles the typing indicator for a course room.
func (s *Session) SetTyping(courseID uuid.UUID, active bool) error {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	t := events.TypingStart
	if !active {
		t = events.TypingStop
	}
	return s.writeFrame(ws, events.Frame{Type: t, CourseID: courseID})
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastFrame returns the most recently received event frame, or nil.
func (s *Session) LastFrame() *events.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// adopt installs a freshly dialed transport: rejoin every tracked room, then
// start reading. Join frames are written before the read loop exists, so no
// event can be dispatched ahead of re-subscription.
func (s *Session) adopt(ws *websocket.Conn, gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.ws = ws
	s.attempts = 0
	rooms := make([]uuid.UUID, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	for _, courseID := range rooms {
		if err := s.writeFrame(ws, events.Frame{Type: events.JoinCourse, CourseID: courseID}); err != nil {
			log.Printf("client: failed to rejoin course %s: %v", courseID, err)
		}
	}

	go s.readLoop(ws, gen)
}

func (s *Session) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.handleTransportLoss(gen)
			return
		}

		var frame events.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("client: malformed frame: %v", err)
			continue
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		f := frame
		s.lastFrame = &f
		handlers := append([]func(events.Frame){}, s.handlers[frame.Type]...)
		s.mu.Unlock()

		for _, fn := range handlers {
			fn(frame)
		}
	}
}

// handleTransportLoss reacts to a read failure on a live connection. An
// explicit Disconnect bumps the generation first, so an intentional close
// never schedules a retry.
func (s *Session) handleTransportLoss(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.setStateLocked(StateReconnecting)
	s.scheduleRetryLocked()
	s.mu.Unlock()
}

// scheduleRetryLocked arms the next reconnect attempt with exponential
// backoff, or transitions to exhausted once attempts run out. Caller holds
// s.mu.
func (s *Session) scheduleRetryLocked() {
	s.attempts++
	if s.attempts > s.maxAttempts {
		s.setStateLocked(StateExhausted)
		return
	}

	delay := s.backoffBase << (s.attempts - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}

	gen := s.gen
	s.retryTimer = time.AfterFunc(delay, func() {
		s.retry(gen)
	})
}

func (s *Session) retry(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	token := s.token
	s.mu.Unlock()

	ws, _, err := s.dialer.Dial(s.url+"?token="+token, nil)
	if err != nil {
		s.emitError(err)
		s.mu.Lock()
		if s.gen == gen && s.state == StateReconnecting {
			s.scheduleRetryLocked()
		}
		s.mu.Unlock()
		return
	}

	s.adopt(ws, gen)
}

func (s *Session) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onStatus != nil {
		s.onStatus(state)
	}
}

func (s *Session) emitError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *Session) writeFrame(ws *websocket.Conn, frame events.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}
