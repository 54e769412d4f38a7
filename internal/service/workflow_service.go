package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/repository"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type requestStore interface {
	CreateWithWorkflow(ctx context.Context, request *models.StudentRequest) error
	FindByID(ctx context.Context, id string) (*models.StudentRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.StudentRequest, error)
	UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// StepTemplate describes one stage of a workflow template. Approver
// identities are opaque: resolving role names to users happens at wiring
// time.
type StepTemplate struct {
	Name        string
	ApproverID  string
	Label       string
	Description string
}

// WorkflowTemplates maps request types to their ordered approval sequences.
type WorkflowTemplates map[models.RequestType][]StepTemplate

// ApprovalHandler runs the request-type-specific side effect after a final
// approval. It is invoked exactly once, synchronously, before the decision
// is committed; returning an error aborts the approval.
type ApprovalHandler interface {
	Apply(ctx context.Context, request *models.StudentRequest) error
}

// ApprovalHandlerFunc allows using plain functions.
type ApprovalHandlerFunc func(ctx context.Context, request *models.StudentRequest) error

// Apply implements ApprovalHandler.
func (f ApprovalHandlerFunc) Apply(ctx context.Context, request *models.StudentRequest) error {
	return f(ctx, request)
}

// DecisionResult reports the outcome of an approve call. NextApproverID is
// set when the request advanced to another step so callers can surface who
// reviews next.
type DecisionResult struct {
	Request        *models.StudentRequest `json:"request"`
	Final          bool                   `json:"final"`
	NextApproverID *string                `json:"next_approver_id,omitempty"`
}

// WorkflowService drives student requests through their approval sequences.
type WorkflowService struct {
	repo      requestStore
	audit     auditLogger
	templates WorkflowTemplates
	fallback  []StepTemplate
	handlers  map[models.RequestType]ApprovalHandler
	clk       clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithApprovalHandlers sets post-approval handlers keyed by request type.
func WithApprovalHandlers(handlers map[models.RequestType]ApprovalHandler) WorkflowServiceOption {
	return func(s *WorkflowService) {
		for k, v := range handlers {
			s.handlers[k] = v
		}
	}
}

// WithFallbackWorkflow sets the template used for unrecognized request types.
func WithFallbackWorkflow(steps []StepTemplate) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.fallback = steps
	}
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(clk clock.Clock) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// NewWorkflowService constructs the service with defaults.
func NewWorkflowService(repo requestStore, audit auditLogger, templates WorkflowTemplates, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		repo:      repo,
		audit:     audit,
		templates: templates,
		handlers:  make(map[models.RequestType]ApprovalHandler),
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

// Submit creates a request and immediately initializes its type-keyed
// workflow, leaving it in review with the first step's approver. The
// initialization is not idempotent; it happens exactly once here, at
// creation.
func (s *WorkflowService) Submit(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.StudentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	template, ok := s.templates[req.Type]
	if !ok {
		template = s.fallback
	}
	if len(template) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoWorkflowDefined, "no workflow defined for request type "+string(req.Type))
	}

	now := s.clk.Now()
	steps := make([]models.WorkflowStep, len(template))
	for i, t := range template {
		steps[i] = models.WorkflowStep{
			Position:    i + 1,
			Name:        t.Name,
			ApproverID:  t.ApproverID,
			Label:       t.Label,
			Description: t.Description,
		}
	}
	firstApprover := steps[0].ApproverID

	request := &models.StudentRequest{
		StudentID:         studentID,
		Type:              req.Type,
		Description:       req.Description,
		Status:            models.RequestStatusInReview,
		CurrentApproverID: &firstApprover,
		Steps:             steps,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateWithWorkflow(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(ctx, studentID, models.AuditActionRequestSubmit, request.ID)
	return request, nil
}

// Approve records the current approver's decision. The request either
// advances to the next step or, on the last step, becomes approved and the
// request type's post-approval handler fires before the transition commits.
func (s *WorkflowService) Approve(ctx context.Context, id, approverID, comments string) (*DecisionResult, error) {
	request, err := s.loadForDecision(ctx, id, approverID)
	if err != nil {
		return nil, err
	}

	stepIdx := s.currentStepIndex(request, approverID)
	if stepIdx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "approver does not match any workflow step")
	}

	now := s.clk.Now()
	entry := models.HistoryEntry{
		ApproverID: approverID,
		Action:     models.HistoryActionApproved,
		Comments:   comments,
		CreatedAt:  now,
	}

	params := repository.UpdateDecisionParams{
		ID:                 request.ID,
		ExpectedApproverID: approverID,
		History:            entry,
	}

	final := stepIdx+1 >= len(request.Steps)
	if final {
		params.Status = models.RequestStatusApproved
		if handler := s.handlers[request.Type]; handler != nil {
			if err := handler.Apply(ctx, request); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "post-approval handler failed")
			}
		}
	} else {
		next := request.Steps[stepIdx+1].ApproverID
		params.Status = models.RequestStatusInReview
		params.NextApproverID = &next
	}

	if err := s.repo.UpdateDecision(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "request was decided concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}

	request.Status = params.Status
	request.CurrentApproverID = params.NextApproverID
	request.UpdatedAt = now
	request.History = append(request.History, entry)

	s.emitAudit(ctx, approverID, models.AuditActionRequestApprove, request.ID)
	return &DecisionResult{Request: request, Final: final, NextApproverID: params.NextApproverID}, nil
}

// Reject records a rejection. Rejections are always final regardless of the
// step's position in the workflow.
func (s *WorkflowService) Reject(ctx context.Context, id, approverID, reason, comments string) (*DecisionResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	request, err := s.loadForDecision(ctx, id, approverID)
	if err != nil {
		return nil, err
	}
	if s.currentStepIndex(request, approverID) < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "approver does not match any workflow step")
	}

	now := s.clk.Now()
	entry := models.HistoryEntry{
		ApproverID: approverID,
		Action:     models.HistoryActionRejected,
		Comments:   comments,
		CreatedAt:  now,
	}
	params := repository.UpdateDecisionParams{
		ID:                 request.ID,
		ExpectedApproverID: approverID,
		Status:             models.RequestStatusRejected,
		RejectionReason:    &reason,
		History:            entry,
	}
	if err := s.repo.UpdateDecision(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "request was decided concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record rejection")
	}

	request.Status = models.RequestStatusRejected
	request.CurrentApproverID = nil
	request.RejectionReason = &reason
	request.UpdatedAt = now
	request.History = append(request.History, entry)

	s.emitAudit(ctx, approverID, models.AuditActionRequestReject, request.ID)
	return &DecisionResult{Request: request, Final: true}, nil
}

// Details replays the workflow steps against history. The projection is
// derived purely from (steps, history, status, current approver); it reads
// no other state.
func (s *WorkflowService) Details(ctx context.Context, id string, actor *models.JWTClaims) ([]models.WorkflowStepView, error) {
	request, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	decided := make(map[string]models.HistoryEntry, len(request.History))
	for _, entry := range request.History {
		if _, seen := decided[entry.ApproverID]; !seen {
			decided[entry.ApproverID] = entry
		}
	}

	views := make([]models.WorkflowStepView, len(request.Steps))
	for i, step := range request.Steps {
		view := models.WorkflowStepView{
			Position:   step.Position,
			Name:       step.Name,
			ApproverID: step.ApproverID,
			Label:      step.Label,
			Status:     models.StepStatusPending,
		}
		if entry, ok := decided[step.ApproverID]; ok {
			switch entry.Action {
			case models.HistoryActionApproved:
				view.Status = models.StepStatusApproved
			case models.HistoryActionRejected:
				view.Status = models.StepStatusRejected
			}
			view.Comments = entry.Comments
			decidedAt := entry.CreatedAt
			view.DecidedAt = &decidedAt
		} else if request.Status == models.RequestStatusInReview &&
			request.CurrentApproverID != nil && *request.CurrentApproverID == step.ApproverID {
			view.Status = models.StepStatusInReview
		} else if request.Status == models.RequestStatusRejected {
			view.Status = models.StepStatusSkipped
		}
		views[i] = view
	}
	return views, nil
}

// List returns requests visible to the actor: students see their own,
// approvers see their review queue, admins and registrars see everything.
func (s *WorkflowService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.StudentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status: query.Status,
		Type:   query.Type,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleRegistrar:
		// full access
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		filter.ApproverID = actor.UserID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Get returns a request enforcing scope constraints.
func (s *WorkflowService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !s.canView(request, actor) {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

func (s *WorkflowService) canView(request *models.StudentRequest, actor *models.JWTClaims) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleRegistrar:
		return true
	}
	if request.StudentID == actor.UserID {
		return true
	}
	for _, step := range request.Steps {
		if step.ApproverID == actor.UserID {
			return true
		}
	}
	return false
}

// loadForDecision loads the request and applies the shared decision guards:
// the request must be in review and the actor must be the recorded current
// approver.
func (s *WorkflowService) loadForDecision(ctx context.Context, id, approverID string) (*models.StudentRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status != models.RequestStatusInReview {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "request is not in review")
	}
	if request.CurrentApproverID == nil || *request.CurrentApproverID != approverID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "actor is not the current approver")
	}
	return request, nil
}

// currentStepIndex locates the step owned by the approver. Approver
// identities are step-unique within one request's workflow, so a linear scan
// over the handful of steps suffices.
func (s *WorkflowService) currentStepIndex(request *models.StudentRequest, approverID string) int {
	for i, step := range request.Steps {
		if step.ApproverID == approverID {
			return i
		}
	}
	return -1
}

func (s *WorkflowService) emitAudit(ctx context.Context, userID, action, requestID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "student_request",
		ResourceID: &requestID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err), zap.String("action", action))
	}
}
