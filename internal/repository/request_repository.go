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

// RequestRepository persists student requests, their workflow steps and the
// append-only decision history.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CreateWithWorkflow inserts the request row and its resolved workflow steps
// in a single transaction.
func (r *RequestRepository) CreateWithWorkflow(ctx context.Context, request *models.StudentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertRequest = `INSERT INTO student_requests
	(id, student_id, type, description, status, current_approver_id, rejection_reason, created_at, updated_at)
	VALUES (:id, :student_id, :type, :description, :status, :current_approver_id, :rejection_reason, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	const insertStep = `INSERT INTO request_workflow_steps
	(id, request_id, position, name, approver_id, label, description)
	VALUES (:id, :request_id, :position, :name, :approver_id, :label, :description)`
	for i := range request.Steps {
		step := &request.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.RequestID = request.ID
		step.Position = i + 1
		if _, err := tx.NamedExecContext(ctx, insertStep, step); err != nil {
			return fmt.Errorf("create workflow step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// FindByID returns a request with its ordered steps and history.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.StudentRequest, error) {
	const query = `SELECT id, student_id, type, description, status, current_approver_id, rejection_reason, created_at, updated_at
	FROM student_requests WHERE id = $1`
	var request models.StudentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}

	const stepsQuery = `SELECT id, request_id, position, name, approver_id, label, description
	FROM request_workflow_steps WHERE request_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &request.Steps, stepsQuery, id); err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}

	const historyQuery = `SELECT id, request_id, approver_id, action, comments, created_at
	FROM request_history WHERE request_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &request.History, historyQuery, id); err != nil {
		return nil, fmt.Errorf("load request history: %w", err)
	}

	return &request, nil
}

// List returns requests matching the filter (latest first).
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.StudentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT id, student_id, type, description, status, current_approver_id, rejection_reason, created_at, updated_at
	FROM student_requests`)

	conditions := make([]string, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ApproverID != "" {
		args = append(args, filter.ApproverID)
		conditions = append(conditions, fmt.Sprintf("current_approver_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
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

	var requests []models.StudentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// UpdateDecisionParams groups the columns mutated by one approve/reject
// transition together with the history entry it appends.
type UpdateDecisionParams struct {
	ID                 string
	ExpectedApproverID string
	Status             models.RequestStatus
	NextApproverID     *string
	RejectionReason    *string
	History            models.HistoryEntry
}

// UpdateDecision applies one workflow transition as a compare-and-set on
// (status, current_approver_id) plus a history append, in one transaction.
// A concurrent decision that won the race leaves zero rows matched and the
// caller observes sql.ErrNoRows.
func (r *RequestRepository) UpdateDecision(ctx context.Context, params UpdateDecisionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	updateQuery := fmt.Sprintf(`UPDATE student_requests
	SET status = $1, current_approver_id = $2, rejection_reason = $3, updated_at = $4
	WHERE id = $5 AND status = '%s' AND current_approver_id = $6`, models.RequestStatusInReview)
	result, err := tx.ExecContext(ctx, updateQuery,
		params.Status, params.NextApproverID, params.RejectionReason, params.History.CreatedAt,
		params.ID, params.ExpectedApproverID)
	if err != nil {
		return fmt.Errorf("update request decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	entry := params.History
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.RequestID = params.ID
	const insertHistory = `INSERT INTO request_history (id, request_id, approver_id, action, comments, created_at)
	VALUES (:id, :request_id, :approver_id, :action, :comments, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, &entry); err != nil {
		return fmt.Errorf("append request history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision: %w", err)
	}
	return nil
}
