package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

// RefundRate maps time elapsed since the registration window closed to a
// refund fraction: 100% within a week, then 75%, 50% and 25% per further
// week, nothing after four weeks.
func RefundRate(elapsed time.Duration) float64 {
	const week = 7 * 24 * time.Hour
	switch {
	case elapsed <= week:
		return 1.0
	case elapsed <= 2*week:
		return 0.75
	case elapsed <= 3*week:
		return 0.5
	case elapsed <= 4*week:
		return 0.25
	default:
		return 0
	}
}

type financialStore interface {
	FindByID(ctx context.Context, id string) (*models.FinancialRecord, error)
	List(ctx context.Context, filter models.FinancialFilter) ([]models.FinancialRecord, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error
	CreatePlan(ctx context.Context, plan *models.PaymentPlan, installments []models.FinancialRecord) error
	HasOverduePending(ctx context.Context, studentID string, asOf time.Time) (bool, error)
}

// FinancialService manages the student ledger: statements, payments and
// installment plans.
type FinancialService struct {
	repo      financialStore
	audit     auditLogger
	clk       clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// FinancialServiceOption configures the service.
type FinancialServiceOption func(*FinancialService)

// WithFinancialClock overrides the time source.
func WithFinancialClock(clk clock.Clock) FinancialServiceOption {
	return func(s *FinancialService) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// NewFinancialService constructs the service with defaults.
func NewFinancialService(repo financialStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...FinancialServiceOption) *FinancialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &FinancialService{
		repo:      repo,
		audit:     audit,
		clk:       clock.System(),
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Statement returns the student's ledger lines, newest first.
func (s *FinancialService) Statement(ctx context.Context, studentID string, filter models.FinancialFilter) ([]models.FinancialRecord, error) {
	filter.StudentID = studentID
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement")
	}
	return records, nil
}

// HasHold reports whether the student carries any pending record past its
// due date.
func (s *FinancialService) HasHold(ctx context.Context, studentID string) (bool, error) {
	hold, err := s.repo.HasOverduePending(ctx, studentID, s.clk.Now())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account balance")
	}
	return hold, nil
}

// RecordPayment settles a pending ledger record. The transition is a
// compare-and-set so a record can only be paid once.
func (s *FinancialService) RecordPayment(ctx context.Context, recordID, actorID string) (*models.FinancialRecord, error) {
	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	if err := s.repo.MarkPaid(ctx, recordID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "record is not payable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	record.Status = models.RecordStatusCompleted
	record.PaidAt = &now

	s.emitFinancialAudit(ctx, actorID, models.AuditActionPaymentRecord, record.ID)
	return record, nil
}

// CreatePaymentPlan splits a pending tuition record into monthly
// installments. The original record is cancelled and the installment records
// created in the same transaction; the installment amounts sum exactly to
// the original, with the last one absorbing the rounding remainder.
func (s *FinancialService) CreatePaymentPlan(ctx context.Context, req dto.CreatePaymentPlanRequest, studentID string) (*models.PaymentPlan, []models.FinancialRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment plan payload")
	}

	record, err := s.loadRecord(ctx, req.RecordID)
	if err != nil {
		return nil, nil, err
	}
	if record.StudentID != studentID {
		return nil, nil, appErrors.ErrForbidden
	}
	if record.Type != models.TransactionTuition || record.Status != models.RecordStatusPending {
		return nil, nil, appErrors.Clone(appErrors.ErrStateConflict, "only pending tuition records can be split into a plan")
	}

	now := s.clk.Now()
	n := req.Installments
	base := models.RoundAmount(record.Amount / float64(n))
	last := models.RoundAmount(record.Amount - base*float64(n-1))

	installments := make([]models.FinancialRecord, n)
	for i := 0; i < n; i++ {
		amount := base
		if i == n-1 {
			amount = last
		}
		due := now.AddDate(0, i+1, 0)
		installments[i] = models.FinancialRecord{
			StudentID:   record.StudentID,
			Type:        models.TransactionTuition,
			Amount:      amount,
			Status:      models.RecordStatusPending,
			ReferenceID: record.ReferenceID,
			Description: fmt.Sprintf("Tuition installment %d/%d", i+1, n),
			DueDate:     &due,
			CreatedAt:   now,
		}
	}

	plan := &models.PaymentPlan{
		StudentID:         record.StudentID,
		FinancialRecordID: record.ID,
		Installments:      n,
		InstallmentAmount: base,
		CreatedAt:         now,
	}
	if err := s.repo.CreatePlan(ctx, plan, installments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrStateConflict, "record is no longer pending")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment plan")
	}

	s.emitFinancialAudit(ctx, studentID, models.AuditActionPaymentPlan, plan.ID)
	return plan, installments, nil
}

func (s *FinancialService) loadRecord(ctx context.Context, id string) (*models.FinancialRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "financial record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial record")
	}
	return record, nil
}

func (s *FinancialService) emitFinancialAudit(ctx context.Context, userID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "financial_record",
		ResourceID: &resourceID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err), zap.String("action", action))
	}
}
