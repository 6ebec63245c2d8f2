package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"courseflow-backend/internal/handlers"
	"courseflow-backend/internal/middleware"
	"courseflow-backend/internal/realtime"
)

func New(
	jwtAuth *middleware.JWTAuth,
	courseHandler *handlers.CourseHandler,
	hub *realtime.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// API rate limiter (120 req/min per IP)
	apiLimiter := middleware.NewRateLimiter(120, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter.Middleware)

		// ──── Course Routes ────
		r.Route("/courses", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", courseHandler.List)
			r.Post("/{id}/enroll", courseHandler.Enroll)
			r.Get("/{id}/progress", courseHandler.GetProgress)
			r.Put("/{id}/progress", courseHandler.UpdateProgress)
			r.Post("/{id}/modules/{moduleID}/complete", courseHandler.CompleteModule)
		})

		// ──── User State Routes ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/enrollments", courseHandler.ListEnrollments)
			r.Get("/progress", courseHandler.ListProgress)
		})

		// ──── WebSocket ────
		r.Get("/ws", hub.HandleWebSocket)
	})

	return r
}
