package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	ModuleCount int       `json:"module_count"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

type Enrollment struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	CourseID   uuid.UUID `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type CourseProgress struct {
	UserID       uuid.UUID  `json:"user_id"`
	CourseID     uuid.UUID  `json:"course_id"`
	Percentage   float64    `json:"percentage"`
	LastModuleID *uuid.UUID `json:"last_module_id"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type ModuleCompletion struct {
	UserID      uuid.UUID `json:"user_id"`
	CourseID    uuid.UUID `json:"course_id"`
	ModuleID    uuid.UUID `json:"module_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type UpdateProgressRequest struct {
	Percentage   float64    `json:"percentage"`
	LastModuleID *uuid.UUID `json:"last_module_id"`
}

type CompleteModuleRequest struct {
	ModuleTitle string `json:"module_title"`
}
