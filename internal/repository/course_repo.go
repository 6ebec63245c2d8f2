package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"courseflow-backend/internal/models"
)

type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) List(ctx context.Context) ([]models.Course, error) {
	query := `SELECT id, title, slug, module_count, is_published, created_at
		FROM courses WHERE is_published = TRUE ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.ModuleCount, &c.IsPublished, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	course := &models.Course{}
	query := `SELECT id, title, slug, module_count, is_published, created_at
		FROM courses WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&course.ID, &course.Title, &course.Slug, &course.ModuleCount, &course.IsPublished, &course.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return course, nil
}
