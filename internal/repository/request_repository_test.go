package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusware/sis-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreateWithWorkflow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_workflow_steps")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_workflow_steps")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	approver := "advisor-1"
	request := &models.StudentRequest{
		StudentID:         "student-1",
		Type:              models.RequestTypeCourseWithdrawal,
		Description:       "dropping CS301",
		Status:            models.RequestStatusInReview,
		CurrentApproverID: &approver,
		Steps: []models.WorkflowStep{
			{Name: "advisor-review", ApproverID: "advisor-1"},
			{Name: "registrar-review", ApproverID: "registrar-1"},
		},
	}
	require.NoError(t, repo.CreateWithWorkflow(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, 1, request.Steps[0].Position)
	require.Equal(t, 2, request.Steps[1].Position)
	require.Equal(t, request.ID, request.Steps[0].RequestID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateDecision(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	next := "registrar-1"
	err := repo.UpdateDecision(context.Background(), UpdateDecisionParams{
		ID:                 "req-1",
		ExpectedApproverID: "advisor-1",
		Status:             models.RequestStatusInReview,
		NextApproverID:     &next,
		History: models.HistoryEntry{
			ApproverID: "advisor-1",
			Action:     models.HistoryActionApproved,
			CreatedAt:  time.Now().UTC(),
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateDecisionLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	// The compare-and-set matches no rows when another decision landed
	// first; no history row is written.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateDecision(context.Background(), UpdateDecisionParams{
		ID:                 "req-1",
		ExpectedApproverID: "advisor-1",
		Status:             models.RequestStatusApproved,
		History:            models.HistoryEntry{ApproverID: "advisor-1", Action: models.HistoryActionApproved},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryFindByIDLoadsStepsAndHistory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now().UTC()
	requestRows := sqlmock.NewRows([]string{"id", "student_id", "type", "description", "status", "current_approver_id", "rejection_reason", "created_at", "updated_at"}).
		AddRow("req-1", "student-1", "COURSE_WITHDRAWAL", "dropping", "IN_REVIEW", "registrar-1", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, type, description")).
		WithArgs("req-1").
		WillReturnRows(requestRows)

	stepRows := sqlmock.NewRows([]string{"id", "request_id", "position", "name", "approver_id", "label", "description"}).
		AddRow("step-1", "req-1", 1, "advisor-review", "advisor-1", "Advisor Review", "").
		AddRow("step-2", "req-1", 2, "registrar-review", "registrar-1", "Registrar Review", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id, position")).
		WithArgs("req-1").
		WillReturnRows(stepRows)

	historyRows := sqlmock.NewRows([]string{"id", "request_id", "approver_id", "action", "comments", "created_at"}).
		AddRow("h-1", "req-1", "advisor-1", "APPROVED", "ok", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id, approver_id, action")).
		WithArgs("req-1").
		WillReturnRows(historyRows)

	request, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, request.Steps, 2)
	require.Len(t, request.History, 1)
	require.Equal(t, "registrar-review", request.Steps[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "type", "description", "status", "current_approver_id", "rejection_reason", "created_at", "updated_at"}).
		AddRow("req-1", "student-1", "COURSE_WITHDRAWAL", "dropping", "IN_REVIEW", "advisor-1", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, type, description")).
		WithArgs("advisor-1", "IN_REVIEW").
		WillReturnRows(rows)

	requests, err := repo.List(context.Background(), models.RequestFilter{
		ApproverID: "advisor-1",
		Status:     []models.RequestStatus{models.RequestStatusInReview},
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
