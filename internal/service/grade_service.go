package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type gradeStore interface {
	PostedGrade(ctx context.Context, studentID, courseID string) (string, error)
	ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourseGrade, error)
	PostGrade(ctx context.Context, enrollmentID, grade string, postedAt time.Time) error
}

// GradeService posts final grades and computes transcript aggregates.
type GradeService struct {
	repo   gradeStore
	clk    clock.Clock
	logger *zap.Logger
}

// NewGradeService constructs the service with defaults.
func NewGradeService(repo gradeStore, logger *zap.Logger, clk clock.Clock) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &GradeService{repo: repo, clk: clk, logger: logger}
}

// PostGrade records a final grade, completing the enrollment. Only active
// enrollments accept a grade; posting is a compare-and-set.
func (s *GradeService) PostGrade(ctx context.Context, enrollmentID, grade string) error {
	if _, ok := models.GradePoints(grade); !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown letter grade "+grade)
	}
	if err := s.repo.PostGrade(ctx, enrollmentID, grade, s.clk.Now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrStateConflict, "enrollment is not active")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post grade")
	}
	return nil
}

// GPA returns the credit-weighted grade point average of the student's
// completed courses on the 4.3 scale, or 0 when none are graded.
func (s *GradeService) GPA(ctx context.Context, studentID string) (float64, error) {
	completed, err := s.repo.ListCompleted(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	var points float64
	var credits int
	for _, c := range completed {
		p, ok := models.GradePoints(c.Grade)
		if !ok {
			s.logger.Warn("skipping unknown grade in GPA", zap.String("grade", c.Grade), zap.String("course_id", c.CourseID))
			continue
		}
		points += p * float64(c.Credits)
		credits += c.Credits
	}
	if credits == 0 {
		return 0, nil
	}
	return points / float64(credits), nil
}
