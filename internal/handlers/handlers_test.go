package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"courseflow-backend/internal/events"
	"courseflow-backend/internal/middleware"
	"courseflow-backend/internal/models"
)

type stubCourseStore struct {
	courses map[uuid.UUID]*models.Course
}

func (s *stubCourseStore) List(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	for _, c := range s.courses {
		out = append(out, *c)
	}
	return out, nil
}

func (s *stubCourseStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type stubEnrollmentStore struct {
	enrolled map[string]bool
}

func enrollKey(userID, courseID uuid.UUID) string { return userID.String() + ":" + courseID.String() }

func (s *stubEnrollmentStore) Create(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, bool, error) {
	key := enrollKey(userID, courseID)
	created := !s.enrolled[key]
	s.enrolled[key] = true
	return &models.Enrollment{ID: uuid.New(), UserID: userID, CourseID: courseID}, created, nil
}

func (s *stubEnrollmentStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error) {
	return nil, nil
}

type stubProgressStore struct {
	pct map[string]float64
}

func (s *stubProgressStore) Upsert(ctx context.Context, userID, courseID uuid.UUID, percentage float64, lastModuleID *uuid.UUID) (*models.CourseProgress, error) {
	key := enrollKey(userID, courseID)
	if percentage < s.pct[key] {
		percentage = s.pct[key]
	}
	s.pct[key] = percentage
	return &models.CourseProgress{UserID: userID, CourseID: courseID, Percentage: percentage}, nil
}

func (s *stubProgressStore) Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error) {
	key := enrollKey(userID, courseID)
	pct, ok := s.pct[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &models.CourseProgress{UserID: userID, CourseID: courseID, Percentage: pct}, nil
}

func (s *stubProgressStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CourseProgress, error) {
	return nil, nil
}

func (s *stubProgressStore) CompleteModule(ctx context.Context, userID, courseID, moduleID uuid.UUID) (*models.CourseProgress, error) {
	key := enrollKey(userID, courseID)
	s.pct[key] += 50
	return &models.CourseProgress{UserID: userID, CourseID: courseID, Percentage: s.pct[key], LastModuleID: &moduleID}, nil
}

type publishedEvent struct {
	kind     events.Type
	userID   uuid.UUID
	courseID uuid.UUID
	pct      float64
}

type recordingPublisher struct {
	published []publishedEvent
}

func (p *recordingPublisher) PublishEnrollment(ctx context.Context, userID, courseID uuid.UUID, payload events.EnrollmentPayload) {
	p.published = append(p.published, publishedEvent{kind: events.EnrollmentSuccess, userID: userID, courseID: courseID})
}

func (p *recordingPublisher) PublishProgressUpdate(ctx context.Context, userID, courseID uuid.UUID, payload events.ProgressPayload) {
	p.published = append(p.published, publishedEvent{kind: events.ProgressUpdated, userID: userID, courseID: courseID, pct: payload.Percentage})
}

func (p *recordingPublisher) PublishModuleCompletion(ctx context.Context, userID, courseID, moduleID uuid.UUID, payload events.ModulePayload) {
	p.published = append(p.published, publishedEvent{kind: events.ModuleCompleted, userID: userID, courseID: courseID})
}

type fixture struct {
	handler   *CourseHandler
	router    chi.Router
	publisher *recordingPublisher
	courseID  uuid.UUID
	userID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	courseID := uuid.New()
	userID := uuid.New()

	courses := &stubCourseStore{courses: map[uuid.UUID]*models.Course{
		courseID: {ID: courseID, Title: "Go Basics", Slug: "go-basics", ModuleCount: 2, IsPublished: true},
	}}
	enrollments := &stubEnrollmentStore{enrolled: make(map[string]bool)}
	progress := &stubProgressStore{pct: make(map[string]float64)}
	publisher := &recordingPublisher{}

	handler := NewCourseHandler(courses, enrollments, progress, publisher)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/courses/{id}/enroll", handler.Enroll)
	r.Get("/courses/{id}/progress", handler.GetProgress)
	r.Put("/courses/{id}/progress", handler.UpdateProgress)
	r.Post("/courses/{id}/modules/{moduleID}/complete", handler.CompleteModule)

	return &fixture{handler: handler, router: r, publisher: publisher, courseID: courseID, userID: userID}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestEnrollPublishesOnce(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/courses/"+f.courseID.String()+"/enroll", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(f.publisher.published) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(f.publisher.published))
	}
	if f.publisher.published[0].kind != events.EnrollmentSuccess {
		t.Errorf("Expected enrollment event, got %s", f.publisher.published[0].kind)
	}
}

func TestRepeatEnrollDoesNotRepublish(t *testing.T) {
	f := newFixture(t)
	path := "/courses/" + f.courseID.String() + "/enroll"

	f.do(t, http.MethodPost, path, nil)
	rr := f.do(t, http.MethodPost, path, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for repeat enrollment, got %d", rr.Code)
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("Expected repeat enrollment not to republish, got %d events", len(f.publisher.published))
	}
}

func TestEnrollUnknownCourse(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/courses/"+uuid.NewString()+"/enroll", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown course, got %d", rr.Code)
	}
	if len(f.publisher.published) != 0 {
		t.Errorf("Expected no publish for failed enrollment, got %d", len(f.publisher.published))
	}
}

func TestUpdateProgressPublishesStoredValue(t *testing.T) {
	f := newFixture(t)
	path := "/courses/" + f.courseID.String() + "/progress"

	f.do(t, http.MethodPut, path, models.UpdateProgressRequest{Percentage: 70})
	rr := f.do(t, http.MethodPut, path, models.UpdateProgressRequest{Percentage: 30})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(f.publisher.published) != 2 {
		t.Fatalf("Expected 2 published events, got %d", len(f.publisher.published))
	}
	// The second publish carries the stored (monotonic) 70, not the stale 30.
	if got := f.publisher.published[1].pct; got != 70 {
		t.Errorf("Expected published percentage 70, got %v", got)
	}
}

func TestUpdateProgressValidatesRange(t *testing.T) {
	f := newFixture(t)
	path := "/courses/" + f.courseID.String() + "/progress"

	tests := []struct {
		name string
		pct  float64
	}{
		{"negative", -1},
		{"above hundred", 101},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPut, path, models.UpdateProgressRequest{Percentage: tc.pct})
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rr.Code)
			}
		})
	}
	if len(f.publisher.published) != 0 {
		t.Errorf("Expected no publish for invalid progress, got %d", len(f.publisher.published))
	}
}

func TestCompleteModulePublishes(t *testing.T) {
	f := newFixture(t)
	moduleID := uuid.New()

	rr := f.do(t, http.MethodPost, "/courses/"+f.courseID.String()+"/modules/"+moduleID.String()+"/complete",
		models.CompleteModuleRequest{ModuleTitle: "Interfaces"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0].kind != events.ModuleCompleted {
		t.Errorf("Expected one module completion event, got %v", f.publisher.published)
	}
}

func TestGetProgressReturnsZeroRowWhenAbsent(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/courses/"+f.courseID.String()+"/progress", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for absent progress, got %d", rr.Code)
	}

	var body struct {
		Progress models.CourseProgress `json:"progress"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Progress.Percentage != 0 {
		t.Errorf("Expected zero percentage, got %v", body.Progress.Percentage)
	}
	if body.Progress.CourseID != f.courseID {
		t.Errorf("Expected course id %s, got %s", f.courseID, body.Progress.CourseID)
	}
}
