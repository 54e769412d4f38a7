package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// CourseRepository handles catalog reads. Seat counts are mutated only by
// RegistrationRepository transactions.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, name, credits, capacity, enrolled_count, active, semester,
	registration_start, registration_end, days, start_minutes, end_minutes, tuition_per_credit`

// FindByID returns a course with its prerequisites.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}

	const prereqQuery = `SELECT p.course_id, p.prerequisite_id, c.code AS prerequisite_code, p.min_grade
	FROM course_prerequisites p
	JOIN courses c ON c.id = p.prerequisite_id
	WHERE p.course_id = $1`
	if err := r.db.SelectContext(ctx, &course.Prerequisites, prereqQuery, id); err != nil {
		return nil, fmt.Errorf("load prerequisites: %w", err)
	}
	return &course, nil
}

// List returns catalog entries matching the filter with a total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses"
	var conditions []string
	var args []interface{}

	if filter.Semester != "" {
		args = append(args, filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args), len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY code ASC LIMIT %d OFFSET %d", courseColumns, base+clause, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}
