package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"courseflow-backend/internal/models"
)

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Upsert records a progress report. Stored percentage is monotonic: a report
// lower than what is already stored keeps the stored value.
func (r *ProgressRepo) Upsert(ctx context.Context, userID, courseID uuid.UUID, percentage float64, lastModuleID *uuid.UUID) (*models.CourseProgress, error) {
	progress := &models.CourseProgress{}
	query := `
		INSERT INTO course_progress (user_id, course_id, percentage, last_module_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			percentage = GREATEST(course_progress.percentage, EXCLUDED.percentage),
			last_module_id = COALESCE(EXCLUDED.last_module_id, course_progress.last_module_id),
			updated_at = NOW()
		RETURNING user_id, course_id, percentage, last_module_id, updated_at`

	err := r.pool.QueryRow(ctx, query, userID, courseID, percentage, lastModuleID).Scan(
		&progress.UserID, &progress.CourseID, &progress.Percentage, &progress.LastModuleID, &progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func (r *ProgressRepo) Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseProgress, error) {
	progress := &models.CourseProgress{}
	query := `SELECT user_id, course_id, percentage, last_module_id, updated_at
		FROM course_progress WHERE user_id = $1 AND course_id = $2`

	err := r.pool.QueryRow(ctx, query, userID, courseID).Scan(
		&progress.UserID, &progress.CourseID, &progress.Percentage, &progress.LastModuleID, &progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func (r *ProgressRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CourseProgress, error) {
	query := `SELECT user_id, course_id, percentage, last_module_id, updated_at
		FROM course_progress WHERE user_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CourseProgress
	for rows.Next() {
		var p models.CourseProgress
		if err := rows.Scan(&p.UserID, &p.CourseID, &p.Percentage, &p.LastModuleID, &p.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}

// CompleteModule records a module completion and recomputes the course
// percentage from the completion count. Completing the same module twice is
// harmless.
func (r *ProgressRepo) CompleteModule(ctx context.Context, userID, courseID, moduleID uuid.UUID) (*models.CourseProgress, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO module_completions (user_id, course_id, module_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id, module_id) DO NOTHING`,
		userID, courseID, moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record module completion: %w", err)
	}

	progress := &models.CourseProgress{}
	err = tx.QueryRow(ctx, `
		INSERT INTO course_progress (user_id, course_id, percentage, last_module_id, updated_at)
		SELECT $1, $2,
			LEAST(100, ROUND(100.0 * COUNT(*) / GREATEST(c.module_count, 1))),
			$3, NOW()
		FROM module_completions mc
		JOIN courses c ON c.id = $2
		WHERE mc.user_id = $1 AND mc.course_id = $2
		GROUP BY c.module_count
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			percentage = GREATEST(course_progress.percentage, EXCLUDED.percentage),
			last_module_id = EXCLUDED.last_module_id,
			updated_at = NOW()
		RETURNING user_id, course_id, percentage, last_module_id, updated_at`,
		userID, courseID, moduleID,
	).Scan(&progress.UserID, &progress.CourseID, &progress.Percentage, &progress.LastModuleID, &progress.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update course progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit module completion: %w", err)
	}
	return progress, nil
}
