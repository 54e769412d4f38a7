package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// FinancialRepository persists ledger records and payment plans.
type FinancialRepository struct {
	db *sqlx.DB
}

// NewFinancialRepository constructs the repository.
func NewFinancialRepository(db *sqlx.DB) *FinancialRepository {
	return &FinancialRepository{db: db}
}

const financialColumns = `id, student_id, type, amount, status, reference_id, description, due_date, paid_at, created_at`

const insertFinancialRecord = `INSERT INTO financial_records
	(id, student_id, type, amount, status, reference_id, description, due_date, paid_at, created_at)
	VALUES (:id, :student_id, :type, :amount, :status, :reference_id, :description, :due_date, :paid_at, :created_at)`

// Create inserts a new ledger record.
func (r *FinancialRepository) Create(ctx context.Context, record *models.FinancialRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, insertFinancialRecord, record); err != nil {
		return fmt.Errorf("create financial record: %w", err)
	}
	return nil
}

// FindByID returns a ledger record.
func (r *FinancialRepository) FindByID(ctx context.Context, id string) (*models.FinancialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_records WHERE id = $1`, financialColumns)
	var record models.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindTuitionByReference returns the tuition record created for an
// enrollment, or sql.ErrNoRows when none exists.
func (r *FinancialRepository) FindTuitionByReference(ctx context.Context, referenceID string) (*models.FinancialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM financial_records WHERE reference_id = $1 AND type = $2 ORDER BY created_at DESC LIMIT 1`, financialColumns)
	var record models.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, referenceID, models.TransactionTuition); err != nil {
		return nil, err
	}
	return &record, nil
}

// HasOverduePending reports whether the student has any pending record whose
// due date is in the past. Such a record places a financial hold on the
// account.
func (r *FinancialRepository) HasOverduePending(ctx context.Context, studentID string, asOf time.Time) (bool, error) {
	const query = `SELECT 1 FROM financial_records
	WHERE student_id = $1 AND status = $2 AND due_date IS NOT NULL AND due_date < $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, models.RecordStatusPending, asOf); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check financial hold: %w", err)
	}
	return true, nil
}

// List returns ledger records matching the filter (latest first).
func (r *FinancialRepository) List(ctx context.Context, filter models.FinancialFilter) ([]models.FinancialRecord, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM financial_records", financialColumns))

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.FinancialRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list financial records: %w", err)
	}
	return records, nil
}

// MarkPaid settles a pending record as completed. The status guard makes the
// transition a compare-and-set: a record that is no longer pending yields
// sql.ErrNoRows.
func (r *FinancialRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	query := fmt.Sprintf(`UPDATE financial_records SET status = $1, paid_at = $2 WHERE id = $3 AND status = '%s'`, models.RecordStatusPending)
	result, err := r.db.ExecContext(ctx, query, models.RecordStatusCompleted, paidAt, id)
	if err != nil {
		return fmt.Errorf("mark record paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check paid rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreatePlan replaces a pending tuition record with a payment plan and its
// installment ledger rows in one transaction. The cancel is a compare-and-set
// on the pending status so a concurrently settled record aborts the plan.
func (r *FinancialRepository) CreatePlan(ctx context.Context, plan *models.PaymentPlan, installments []models.FinancialRecord) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment plan: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cancelQuery := fmt.Sprintf(`UPDATE financial_records SET status = $1 WHERE id = $2 AND status = '%s'`, models.RecordStatusPending)
	result, err := tx.ExecContext(ctx, cancelQuery, models.RecordStatusCancelled, plan.FinancialRecordID)
	if err != nil {
		return fmt.Errorf("cancel original record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancel rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	const insertPlan = `INSERT INTO payment_plans (id, student_id, financial_record_id, installments, installment_amount, created_at)
	VALUES (:id, :student_id, :financial_record_id, :installments, :installment_amount, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertPlan, plan); err != nil {
		return fmt.Errorf("create payment plan: %w", err)
	}

	for i := range installments {
		record := &installments[i]
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = plan.CreatedAt
		}
		if _, err := tx.NamedExecContext(ctx, insertFinancialRecord, record); err != nil {
			return fmt.Errorf("create installment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment plan: %w", err)
	}
	return nil
}
