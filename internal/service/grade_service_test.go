package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type gradeStoreStub struct {
	completed map[string][]models.CompletedCourseGrade
	posted    map[string]string // enrollment id -> grade
	postErr   error
}

func newGradeStoreStub() *gradeStoreStub {
	return &gradeStoreStub{
		completed: make(map[string][]models.CompletedCourseGrade),
		posted:    make(map[string]string),
	}
}

func (g *gradeStoreStub) PostedGrade(ctx context.Context, studentID, courseID string) (string, error) {
	return "", sql.ErrNoRows
}

func (g *gradeStoreStub) ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourseGrade, error) {
	return g.completed[studentID], nil
}

func (g *gradeStoreStub) PostGrade(ctx context.Context, enrollmentID, grade string, postedAt time.Time) error {
	if g.postErr != nil {
		return g.postErr
	}
	g.posted[enrollmentID] = grade
	return nil
}

func TestPostGradeRejectsUnknownLetter(t *testing.T) {
	store := newGradeStoreStub()
	svc := NewGradeService(store, nil, clock.Fixed(time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)))

	err := svc.PostGrade(context.Background(), "e1", "E")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, store.posted)
}

func TestPostGradeOnInactiveEnrollment(t *testing.T) {
	store := newGradeStoreStub()
	store.postErr = sql.ErrNoRows
	svc := NewGradeService(store, nil, nil)

	err := svc.PostGrade(context.Background(), "e1", "B+")
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestGPAIsCreditWeightedOn43Scale(t *testing.T) {
	store := newGradeStoreStub()
	store.completed["student-1"] = []models.CompletedCourseGrade{
		{CourseID: "c1", Grade: "A+", Credits: 4}, // 4.3 * 4
		{CourseID: "c2", Grade: "B", Credits: 3},  // 3.0 * 3
		{CourseID: "c3", Grade: "C-", Credits: 3}, // 1.7 * 3
	}
	svc := NewGradeService(store, nil, nil)

	gpa, err := svc.GPA(context.Background(), "student-1")
	require.NoError(t, err)
	require.InDelta(t, (4.3*4+3.0*3+1.7*3)/10, gpa, 1e-9)
}

func TestGPAZeroWithoutCompletedCourses(t *testing.T) {
	store := newGradeStoreStub()
	svc := NewGradeService(store, nil, nil)

	gpa, err := svc.GPA(context.Background(), "student-1")
	require.NoError(t, err)
	require.Zero(t, gpa)
}

func TestGPASkipsUnknownLetters(t *testing.T) {
	store := newGradeStoreStub()
	store.completed["student-1"] = []models.CompletedCourseGrade{
		{CourseID: "c1", Grade: "A", Credits: 3},
		{CourseID: "c2", Grade: "W", Credits: 3}, // withdrawal marker, not a grade
	}
	svc := NewGradeService(store, nil, nil)

	gpa, err := svc.GPA(context.Background(), "student-1")
	require.NoError(t, err)
	require.InDelta(t, 4.0, gpa, 1e-9)
}
