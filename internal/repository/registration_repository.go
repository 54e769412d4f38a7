package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// ErrNoSeatAvailable is returned when the conditional seat increment matches
// zero rows: a concurrent registration took the last seat.
var ErrNoSeatAvailable = errors.New("no seat available")

// RegistrationRepository owns the atomic commit units of the registration
// transaction. Each method runs as one all-or-nothing database transaction;
// seat counts are only ever changed through the conditional updates here.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// CommitRegistration creates the enrollment, claims a seat and books the
// tuition record together. The increment is guarded by
// enrolled_count < capacity inside the transaction, so the capacity
// check-then-increment race resolves to ErrNoSeatAvailable for the loser.
func (r *RegistrationRepository) CommitRegistration(ctx context.Context, enrollment *models.Enrollment, tuition *models.FinancialRecord) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if tuition != nil && tuition.ID == "" {
		tuition.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const claimSeat = `UPDATE courses SET enrolled_count = enrolled_count + 1
	WHERE id = $1 AND active = TRUE AND enrolled_count < capacity`
	result, err := tx.ExecContext(ctx, claimSeat, enrollment.CourseID)
	if err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check seat rows: %w", err)
	}
	if rows == 0 {
		return ErrNoSeatAvailable
	}

	const insertEnrollment = `INSERT INTO enrollments (id, student_id, course_id, semester, status, grade, enrolled_at, updated_at)
	VALUES (:id, :student_id, :course_id, :semester, :status, :grade, :enrolled_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertEnrollment, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	if tuition != nil {
		if _, err := tx.NamedExecContext(ctx, insertFinancialRecord, tuition); err != nil {
			return fmt.Errorf("create tuition record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// DropParams groups the effects of one drop transaction.
type DropParams struct {
	EnrollmentID string
	CourseID     string
	DroppedAt    time.Time
	// CancelTuitionID voids a still-pending tuition record.
	CancelTuitionID string
	// Refund, when set, books a pending refund for a completed tuition
	// payment.
	Refund *models.FinancialRecord
}

// CommitDrop marks the enrollment dropped, releases the seat and applies the
// financial effect in one transaction. The enrollment update is a
// compare-and-set on the active status; a concurrent drop observes
// sql.ErrNoRows.
func (r *RegistrationRepository) CommitDrop(ctx context.Context, params DropParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dropQuery := fmt.Sprintf(`UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3 AND status = '%s'`, models.EnrollmentStatusActive)
	result, err := tx.ExecContext(ctx, dropQuery, models.EnrollmentStatusDropped, params.DroppedAt, params.EnrollmentID)
	if err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check drop rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	const releaseSeat = `UPDATE courses SET enrolled_count = enrolled_count - 1 WHERE id = $1 AND enrolled_count > 0`
	if _, err := tx.ExecContext(ctx, releaseSeat, params.CourseID); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}

	if params.CancelTuitionID != "" {
		cancelQuery := fmt.Sprintf(`UPDATE financial_records SET status = $1 WHERE id = $2 AND status = '%s'`, models.RecordStatusPending)
		if _, err := tx.ExecContext(ctx, cancelQuery, models.RecordStatusCancelled, params.CancelTuitionID); err != nil {
			return fmt.Errorf("cancel tuition record: %w", err)
		}
	}

	if params.Refund != nil {
		if params.Refund.ID == "" {
			params.Refund.ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, insertFinancialRecord, params.Refund); err != nil {
			return fmt.Errorf("create refund record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	return nil
}
