package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func expectCourseLock(mock sqlmock.Sqlmock, courseID string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs(courseID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(courseID))
}

func TestWaitlistRepositoryJoinAppendsAtTail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "course-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_waitlists")).
		WithArgs("course-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) + 1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_waitlists")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.Join(context.Background(), "course-1", "student-1", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 3, entry.Position)
	require.NotEmpty(t, entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryJoinRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "course-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_waitlists")).
		WithArgs("course-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "course-1", "student-1", time.Now().UTC())
	require.ErrorIs(t, err, ErrAlreadyWaitlisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryLeaveCompactsPositions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "course-1")
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM course_waitlists")).
		WithArgs("course-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_waitlists SET position = position - 1")).
		WithArgs("course-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.Leave(context.Background(), "course-1", "student-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryLeaveNotListed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, "course-1")
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM course_waitlists")).
		WithArgs("course-1", "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"position"}))
	mock.ExpectRollback()

	err := repo.Leave(context.Background(), "course-1", "student-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryFindFrontEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, student_id, position, joined_at")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "student_id", "position", "joined_at"}))

	_, err := repo.FindFront(context.Background(), "course-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
