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

func TestFinancialRepositoryMarkPaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinancialRepository(db)

	paidAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET status = $1, paid_at = $2")).
		WithArgs(models.RecordStatusCompleted, paidAt, "fr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPaid(context.Background(), "fr-1", paidAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialRepositoryMarkPaidNotPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinancialRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET status = $1, paid_at = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkPaid(context.Background(), "fr-1", time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialRepositoryCreatePlan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinancialRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET status = $1 WHERE id = $2")).
		WithArgs(models.RecordStatusCancelled, "fr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_plans")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO financial_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	plan := &models.PaymentPlan{
		StudentID:         "student-1",
		FinancialRecordID: "fr-1",
		Installments:      2,
		InstallmentAmount: 675,
	}
	installments := []models.FinancialRecord{
		{StudentID: "student-1", Type: models.TransactionTuition, Amount: 675, Status: models.RecordStatusPending},
		{StudentID: "student-1", Type: models.TransactionTuition, Amount: 675, Status: models.RecordStatusPending},
	}
	require.NoError(t, repo.CreatePlan(context.Background(), plan, installments))
	require.NotEmpty(t, plan.ID)
	require.NotEmpty(t, installments[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialRepositoryCreatePlanRecordSettledConcurrently(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinancialRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE financial_records SET status = $1 WHERE id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreatePlan(context.Background(), &models.PaymentPlan{FinancialRecordID: "fr-1"}, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinancialRepositoryHasOverduePending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinancialRepository(db)

	asOf := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM financial_records")).
		WithArgs("student-1", models.RecordStatusPending, asOf).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	hold, err := repo.HasOverduePending(context.Background(), "student-1", asOf)
	require.NoError(t, err)
	require.True(t, hold)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM financial_records")).
		WithArgs("student-1", models.RecordStatusPending, asOf).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	hold, err = repo.HasOverduePending(context.Background(), "student-1", asOf)
	require.NoError(t, err)
	require.False(t, hold)
	require.NoError(t, mock.ExpectationsWereMet())
}
