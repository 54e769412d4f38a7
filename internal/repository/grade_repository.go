package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// GradeRepository is the posted-grade lookup collaborator: prerequisite
// checks and GPA computation read through it, grade posting writes through
// it.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// PostedGrade returns the letter grade of a completed enrollment for the
// (student, course) pair, or sql.ErrNoRows when the student never completed
// the course or no grade was posted.
func (r *GradeRepository) PostedGrade(ctx context.Context, studentID, courseID string) (string, error) {
	const query = `SELECT grade FROM enrollments
	WHERE student_id = $1 AND course_id = $2 AND status = $3 AND grade IS NOT NULL
	ORDER BY updated_at DESC LIMIT 1`
	var grade string
	if err := r.db.GetContext(ctx, &grade, query, studentID, courseID, models.EnrollmentStatusCompleted); err != nil {
		return "", err
	}
	return grade, nil
}

// ListCompleted returns every completed, graded enrollment with course
// credits for GPA computation.
func (r *GradeRepository) ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourseGrade, error) {
	const query = `SELECT e.course_id, e.grade, c.credits
	FROM enrollments e
	JOIN courses c ON c.id = e.course_id
	WHERE e.student_id = $1 AND e.status = $2 AND e.grade IS NOT NULL`
	var grades []models.CompletedCourseGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list completed grades: %w", err)
	}
	return grades, nil
}

// PostGrade records a letter grade and completes the enrollment. The active
// status guard makes posting a compare-and-set; an already completed or
// dropped enrollment yields sql.ErrNoRows.
func (r *GradeRepository) PostGrade(ctx context.Context, enrollmentID, grade string, postedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE enrollments SET grade = $1, status = $2, updated_at = $3 WHERE id = $4 AND status = '%s'`, models.EnrollmentStatusActive)
	result, err := r.db.ExecContext(ctx, query, grade, models.EnrollmentStatusCompleted, postedAt, enrollmentID)
	if err != nil {
		return fmt.Errorf("post grade: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check grade rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
