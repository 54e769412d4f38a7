package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campusware/sis-api/internal/models"
)

func testEnrollment() *models.Enrollment {
	now := time.Now().UTC()
	return &models.Enrollment{
		StudentID:  "student-1",
		CourseID:   "course-1",
		Semester:   "2025F",
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
}

func testTuition() *models.FinancialRecord {
	ref := "course-1"
	return &models.FinancialRecord{
		StudentID:   "student-1",
		Type:        models.TransactionTuition,
		Amount:      1350,
		Status:      models.RecordStatusPending,
		ReferenceID: &ref,
		Description: "Tuition for CS301",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestRegistrationRepositoryCommitRegistration(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := testEnrollment()
	tuition := testTuition()
	require.NoError(t, repo.CommitRegistration(context.Background(), enrollment, tuition))
	require.NotEmpty(t, enrollment.ID)
	require.NotEmpty(t, tuition.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCommitRegistrationSeatRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	// A concurrent registration claimed the last seat between the service
	// capacity check and the conditional increment. Nothing else executes.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CommitRegistration(context.Background(), testEnrollment(), testTuition())
	require.ErrorIs(t, err, ErrNoSeatAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCommitDropVoidsPendingTuition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	droppedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1")).
		WithArgs(models.EnrollmentStatusDropped, droppedAt, "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count - 1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET status = $1")).
		WithArgs(models.RecordStatusCancelled, "fr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CommitDrop(context.Background(), DropParams{
		EnrollmentID:    "enr-1",
		CourseID:        "course-1",
		DroppedAt:       droppedAt,
		CancelTuitionID: "fr-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCommitDropBooksRefund(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	droppedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count - 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refund := &models.FinancialRecord{
		StudentID:   "student-1",
		Type:        models.TransactionRefund,
		Amount:      1012.50,
		Status:      models.RecordStatusPending,
		Description: "Refund for dropped CS301",
		CreatedAt:   droppedAt,
	}
	err := repo.CommitDrop(context.Background(), DropParams{
		EnrollmentID: "enr-1",
		CourseID:     "course-1",
		DroppedAt:    droppedAt,
		Refund:       refund,
	})
	require.NoError(t, err)
	require.NotEmpty(t, refund.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCommitDropAlreadyDropped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CommitDrop(context.Background(), DropParams{
		EnrollmentID: "enr-1",
		CourseID:     "course-1",
		DroppedAt:    time.Now().UTC(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
