package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"courseflow-backend/internal/events"
	"courseflow-backend/internal/middleware"
	"courseflow-backend/internal/realtime"
)

// The full two-tab scenario: user A enrolls in a course while two of their
// tabs are joined to its room. Each tab must see exactly one enrollment
// event and render exactly one notification.
func TestTwoTabEnrollmentRendersOneNotificationEach(t *testing.T) {
	const secret = "e2e-secret"

	rooms := realtime.NewRoomManager()
	registry := realtime.NewRegistry(rooms)
	publisher := realtime.NewPublisher(registry, rooms)
	hub := realtime.NewHub(registry, rooms, publisher, nil, secret)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	userA := uuid.New()
	courseID := uuid.New()
	token, err := middleware.NewJWTAuth(secret).GenerateAccessToken(userA, "a@example.com")
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	type tab struct {
		session *Session
		dedup   *Deduplicator
	}
	tabs := make([]*tab, 2)
	for i := range tabs {
		tb := &tab{session: NewSession(Config{URL: wsURL}), dedup: NewDeduplicator()}
		tb.session.OnEnrollment(func(frame events.Frame) {
			tb.dedup.Offer(frame)
		})
		if err := tb.session.Connect(token); err != nil {
			t.Fatalf("Tab %d failed to connect: %v", i+1, err)
		}
		defer tb.session.Disconnect()
		tb.session.Join(courseID)
		tabs[i] = tb
	}

	waitFor(t, func() bool { return len(rooms.MembersOf(courseID)) == 2 }, "both tabs in the room")

	publisher.PublishEnrollment(context.Background(), userA, courseID, events.EnrollmentPayload{CourseTitle: "Go Basics"})

	for i, tb := range tabs {
		waitFor(t, func() bool { return tb.session.LastFrame() != nil }, "tab received a frame")

		last := tb.session.LastFrame()
		if last.Type != events.EnrollmentSuccess {
			t.Errorf("Tab %d: expected %s, got %s", i+1, events.EnrollmentSuccess, last.Type)
		}
		if got := len(tb.dedup.Notifications()); got != 1 {
			t.Errorf("Tab %d: expected exactly 1 rendered notification, got %d", i+1, got)
		}
	}
}
