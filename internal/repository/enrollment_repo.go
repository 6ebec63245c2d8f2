package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"courseflow-backend/internal/models"
)

type EnrollmentRepo struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepo(pool *pgxpool.Pool) *EnrollmentRepo {
	return &EnrollmentRepo{pool: pool}
}

// Create enrolls a user in a course. Reports created=false when the user was
// already enrolled.
func (r *EnrollmentRepo) Create(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, bool, error) {
	enrollment := &models.Enrollment{ID: uuid.New(), UserID: userID, CourseID: courseID}

	query := `
		INSERT INTO enrollments (id, user_id, course_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING enrolled_at`

	err := r.pool.QueryRow(ctx, query, enrollment.ID, userID, courseID).Scan(&enrollment.EnrolledAt)
	if err != nil {
		// No row returned means the conflict clause fired.
		existing, lookupErr := r.get(ctx, userID, courseID)
		if lookupErr != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return enrollment, true, nil
}

func (r *EnrollmentRepo) get(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{}
	query := `SELECT id, user_id, course_id, enrolled_at
		FROM enrollments WHERE user_id = $1 AND course_id = $2`

	err := r.pool.QueryRow(ctx, query, userID, courseID).Scan(
		&enrollment.ID, &enrollment.UserID, &enrollment.CourseID, &enrollment.EnrolledAt,
	)
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (r *EnrollmentRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error) {
	query := `SELECT id, user_id, course_id, enrolled_at
		FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}
