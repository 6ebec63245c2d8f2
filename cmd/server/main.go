package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courseflow-backend/internal/config"
	"courseflow-backend/internal/database"
	"courseflow-backend/internal/handlers"
	"courseflow-backend/internal/middleware"
	"courseflow-backend/internal/realtime"
	"courseflow-backend/internal/repository"
	"courseflow-backend/internal/router"
)

func main() {
	log.Println("🚀 Starting CourseFlow Realtime Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	courseRepo := repository.NewCourseRepo(pool)
	enrollmentRepo := repository.NewEnrollmentRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)

	// ──── Step 5: Start Realtime Hub ────
	rooms := realtime.NewRoomManager()
	registry := realtime.NewRegistry(rooms)
	publisher := realtime.NewPublisher(registry, rooms)

	bridge := realtime.NewBridge(redisClients.Commands, redisClients.PubSub, publisher)
	publisher.AttachBridge(bridge)
	bridge.Start()
	log.Println("✓ Redis event bridge started")

	hub := realtime.NewHub(registry, rooms, publisher, progressRepo, cfg.JWTSecret)
	hub.SendBuffer = cfg.WSSendBuffer
	hub.IdleTimeout = time.Duration(cfg.WSIdleSeconds) * time.Second
	hub.MaxMessage = int64(cfg.WSMaxMessageBytes)
	hub.Start()
	log.Println("✓ Realtime hub started")

	// ──── Initialize Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	courseHandler := handlers.NewCourseHandler(courseRepo, enrollmentRepo, progressRepo, publisher)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(jwtAuth, courseHandler, hub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		hub.Stop()
		bridge.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ CourseFlow Realtime Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
