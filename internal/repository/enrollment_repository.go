package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, semester, status, grade, enrolled_at, updated_at`

// FindActive returns the active enrollment for a (student, course) pair.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive checks for an active enrollment on the pair.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// ListActiveCoursesByStudent returns the courses a student is actively
// enrolled in for a semester, used for schedule conflict detection.
func (r *EnrollmentRepository) ListActiveCoursesByStudent(ctx context.Context, studentID, semester string) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c
	JOIN enrollments e ON e.course_id = c.id
	WHERE e.student_id = $1 AND e.semester = $2 AND e.status = $3`,
		prefixColumns("c", courseColumns))
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID, semester, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active courses: %w", err)
	}
	return courses, nil
}

// prefixColumns qualifies a comma separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// ListByStudent returns all enrollments for a student (latest first).
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}
