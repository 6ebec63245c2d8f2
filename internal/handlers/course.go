package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"courseflow-backend/internal/events"
	"courseflow-backend/internal/middleware"
	"courseflow-backend/internal/models"
)

type CourseStore interface {
	List(ctx context.Context) ([]models.Course, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

type EnrollmentStore interface {
	Create(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error)
}

type ProgressStore interface {
	Upsert(ctx context.Context, userID, courseID uuid.UUID, percentage float64, lastModuleID *uuid.UUID) (*models.CourseProgress, error)
	Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CourseProgress, error)
	CompleteModule(ctx context.Context, userID, courseID, moduleID uuid.UUID) (*models.CourseProgress, error)
}

// EventPublisher is the fire-and-forget notification API. Implementations
// never return errors to the caller: a missed notification must not fail the
// write it describes.
type EventPublisher interface {
	PublishEnrollment(ctx context.Context, userID, courseID uuid.UUID, payload events.EnrollmentPayload)
	PublishProgressUpdate(ctx context.Context, userID, courseID uuid.UUID, payload events.ProgressPayload)
	PublishModuleCompletion(ctx context.Context, userID, courseID, moduleID uuid.UUID, payload events.ModulePayload)
}

type CourseHandler struct {
	courses     CourseStore
	enrollments EnrollmentStore
	progress    ProgressStore
	publisher   EventPublisher
}

func NewCourseHandler(courses CourseStore, enrollments EnrollmentStore, progress ProgressStore, publisher EventPublisher) *CourseHandler {
	return &CourseHandler{
		courses:     courses,
		enrollments: enrollments,
		progress:    progress,
		publisher:   publisher,
	}
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		log.Printf("courses: list failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to load courses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// Enroll commits the enrollment, then publishes the realtime event. A repeat
// enrollment is answered without republishing.
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COURSE_ID", "Course ID must be a UUID")
		return
	}

	course, err := h.courses.GetByID(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, r, http.StatusNotFound, "COURSE_NOT_FOUND", "Course does not exist")
			return
		}
		log.Printf("courses: lookup %s failed: %v", courseID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to load course")
		return
	}

	enrollment, created, err := h.enrollments.Create(r.Context(), userID, courseID)
	if err != nil {
		log.Printf("courses: enroll user %s in %s failed: %v", userID, courseID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to enroll")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.publisher.PublishEnrollment(r.Context(), userID, courseID, events.EnrollmentPayload{
			CourseTitle: course.Title,
		})
	}
	writeJSON(w, status, map[string]interface{}{"enrollment": enrollment})
}

func (h *CourseHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COURSE_ID", "Course ID must be a UUID")
		return
	}

	var req models.UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}
	if req.Percentage < 0 || req.Percentage > 100 {
		writeError(w, r, http.StatusBadRequest, "INVALID_PERCENTAGE", "Percentage must be between 0 and 100")
		return
	}

	progress, err := h.progress.Upsert(r.Context(), userID, courseID, req.Percentage, req.LastModuleID)
	if err != nil {
		log.Printf("courses: progress upsert for user %s in %s failed: %v", userID, courseID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to save progress")
		return
	}

	// Publish the stored row, not the request: the store may have kept a
	// higher percentage.
	h.publisher.PublishProgressUpdate(r.Context(), userID, courseID, events.ProgressPayload{
		Percentage:   progress.Percentage,
		LastModuleID: progress.LastModuleID,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

func (h *CourseHandler) CompleteModule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COURSE_ID", "Course ID must be a UUID")
		return
	}
	moduleID, err := uuid.Parse(chi.URLParam(r, "moduleID"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MODULE_ID", "Module ID must be a UUID")
		return
	}

	var req models.CompleteModuleRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // title is optional
	}

	progress, err := h.progress.CompleteModule(r.Context(), userID, courseID, moduleID)
	if err != nil {
		log.Printf("courses: module completion for user %s in %s failed: %v", userID, courseID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to record completion")
		return
	}

	h.publisher.PublishModuleCompletion(r.Context(), userID, courseID, moduleID, events.ModulePayload{
		ModuleTitle: req.ModuleTitle,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

// GetProgress is the authoritative fetch clients hydrate from on mount and
// after reconnect. A user with no recorded progress gets a zeroed row rather
// than an error.
func (h *CourseHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COURSE_ID", "Course ID must be a UUID")
		return
	}

	progress, err := h.progress.Get(r.Context(), userID, courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"progress": models.CourseProgress{UserID: userID, CourseID: courseID},
			})
			return
		}
		log.Printf("courses: progress fetch for user %s in %s failed: %v", userID, courseID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}

func (h *CourseHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	entries, err := h.progress.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("courses: progress list for user %s failed: %v", userID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": entries})
}

func (h *CourseHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	enrollments, err := h.enrollments.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("courses: enrollment list for user %s failed: %v", userID, err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to load enrollments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": enrollments})
}
