package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/repository"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentReader interface {
	FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
	ListActiveCoursesByStudent(ctx context.Context, studentID, semester string) ([]models.Course, error)
}

type gradeReader interface {
	PostedGrade(ctx context.Context, studentID, courseID string) (string, error)
}

type holdChecker interface {
	HasOverduePending(ctx context.Context, studentID string, asOf time.Time) (bool, error)
	FindTuitionByReference(ctx context.Context, referenceID string) (*models.FinancialRecord, error)
}

type waitlistStore interface {
	Join(ctx context.Context, courseID, studentID string, joinedAt time.Time) (*models.WaitlistEntry, error)
	Leave(ctx context.Context, courseID, studentID string) error
	FindFront(ctx context.Context, courseID string) (*models.WaitlistEntry, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.WaitlistEntry, error)
}

type registrationStore interface {
	CommitRegistration(ctx context.Context, enrollment *models.Enrollment, tuition *models.FinancialRecord) error
	CommitDrop(ctx context.Context, params repository.DropParams) error
}

// RegistrationService runs course registration, drops and waitlist
// membership. Checks are evaluated in a fixed order so a request failing
// several of them always reports the same error.
type RegistrationService struct {
	courses       courseReader
	enrollments   enrollmentReader
	grades        gradeReader
	financial     holdChecker
	waitlist      waitlistStore
	registrations registrationStore
	audit         auditLogger
	clk           clock.Clock
	logger        *zap.Logger

	tuitionDueDays int
}

// RegistrationServiceOption configures the service.
type RegistrationServiceOption func(*RegistrationService)

// WithRegistrationClock overrides the time source.
func WithRegistrationClock(clk clock.Clock) RegistrationServiceOption {
	return func(s *RegistrationService) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithTuitionDueDays sets how long after registration tuition falls due.
func WithTuitionDueDays(days int) RegistrationServiceOption {
	return func(s *RegistrationService) {
		if days > 0 {
			s.tuitionDueDays = days
		}
	}
}

// NewRegistrationService constructs the service with defaults.
func NewRegistrationService(
	courses courseReader,
	enrollments enrollmentReader,
	grades gradeReader,
	financial holdChecker,
	waitlist waitlistStore,
	registrations registrationStore,
	audit auditLogger,
	logger *zap.Logger,
	opts ...RegistrationServiceOption,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RegistrationService{
		courses:        courses,
		enrollments:    enrollments,
		grades:         grades,
		financial:      financial,
		waitlist:       waitlist,
		registrations:  registrations,
		audit:          audit,
		clk:            clock.System(),
		logger:         logger,
		tuitionDueDays: 30,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Register enrolls the student after the full check sequence passes: open
// window, no duplicate enrollment, seats available, no schedule conflict,
// prerequisites met, no financial hold. On success the enrollment, the seat
// increment and the pending tuition charge commit atomically.
func (s *RegistrationService) Register(ctx context.Context, studentID, courseID string) (*dto.RegistrationResult, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	if !course.Active || now.Before(course.RegistrationStart) || now.After(course.RegistrationEnd) {
		return nil, appErrors.Clone(appErrors.ErrRegistrationClosed, "")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	if course.IsFull() {
		return nil, appErrors.WithDetails(appErrors.ErrCourseFull, map[string]interface{}{"can_waitlist": true})
	}

	if err := s.checkSchedule(ctx, studentID, course); err != nil {
		return nil, err
	}
	if err := s.checkPrerequisites(ctx, studentID, course); err != nil {
		return nil, err
	}

	hold, err := s.financial.HasOverduePending(ctx, studentID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account balance")
	}
	if hold {
		return nil, appErrors.Clone(appErrors.ErrFinancialHold, "")
	}

	dueDate := now.AddDate(0, 0, s.tuitionDueDays)
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   course.ID,
		Semester:   course.Semester,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
	tuition := &models.FinancialRecord{
		StudentID:   studentID,
		Type:        models.TransactionTuition,
		Amount:      models.RoundAmount(float64(course.Credits) * course.TuitionPerCredit),
		Status:      models.RecordStatusPending,
		ReferenceID: &enrollment.ID,
		Description: fmt.Sprintf("Tuition for %s (%s)", course.Code, course.Semester),
		DueDate:     &dueDate,
		CreatedAt:   now,
	}

	if err := s.registrations.CommitRegistration(ctx, enrollment, tuition); err != nil {
		if errors.Is(err, repository.ErrNoSeatAvailable) {
			return nil, appErrors.WithDetails(appErrors.ErrCourseFull, map[string]interface{}{"can_waitlist": true})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register")
	}

	s.emitRegistrationAudit(ctx, studentID, models.AuditActionCourseRegister, course.ID)
	return &dto.RegistrationResult{Enrollment: enrollment, Tuition: tuition}, nil
}

// Drop removes an active enrollment. The refund tier is computed from time
// elapsed since the course's registration window closed; pending tuition is
// voided instead of refunded. The enrollment flip, seat decrement and
// financial effect commit atomically.
func (s *RegistrationService) Drop(ctx context.Context, studentID, courseID string) (*dto.DropResult, error) {
	enrollment, err := s.enrollments.FindActive(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	rate := RefundRate(now.Sub(course.RegistrationEnd))

	params := repository.DropParams{
		EnrollmentID: enrollment.ID,
		CourseID:     course.ID,
		DroppedAt:    now,
	}
	result := &dto.DropResult{Enrollment: enrollment, RefundRate: rate}

	tuition, err := s.financial.FindTuitionByReference(ctx, enrollment.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition record")
	}
	if tuition != nil {
		switch tuition.Status {
		case models.RecordStatusPending:
			params.CancelTuitionID = tuition.ID
			result.TuitionVoided = true
		case models.RecordStatusCompleted:
			if rate > 0 {
				refund := &models.FinancialRecord{
					StudentID:   studentID,
					Type:        models.TransactionRefund,
					Amount:      models.RoundAmount(tuition.Amount * rate),
					Status:      models.RecordStatusPending,
					ReferenceID: &enrollment.ID,
					Description: fmt.Sprintf("Refund (%.0f%%) for dropped %s", rate*100, course.Code),
					CreatedAt:   now,
				}
				params.Refund = refund
				result.Refund = refund
			}
		}
	}

	if err := s.registrations.CommitDrop(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment was already dropped")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop course")
	}

	enrollment.Status = models.EnrollmentStatusDropped
	enrollment.UpdatedAt = now

	if front, err := s.waitlist.FindFront(ctx, courseID); err == nil {
		result.NextWaitlisted = front
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to peek waitlist after drop", zap.Error(err), zap.String("course_id", courseID))
	}

	s.emitRegistrationAudit(ctx, studentID, models.AuditActionCourseDrop, course.ID)
	return result, nil
}

// JoinWaitlist adds the student to the back of a full course's waitlist.
func (s *RegistrationService) JoinWaitlist(ctx context.Context, studentID, courseID string) (*models.WaitlistEntry, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFull() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "course has open seats; register directly")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	entry, err := s.waitlist.Join(ctx, courseID, studentID, s.clk.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyWaitlisted):
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "student is already on the waitlist")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join waitlist")
		}
	}

	s.emitRegistrationAudit(ctx, studentID, models.AuditActionWaitlistJoin, courseID)
	return entry, nil
}

// LeaveWaitlist removes the student and closes the position gap behind them.
func (s *RegistrationService) LeaveWaitlist(ctx context.Context, studentID, courseID string) error {
	if err := s.waitlist.Leave(ctx, courseID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrStateConflict, "student is not on the waitlist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave waitlist")
	}
	s.emitRegistrationAudit(ctx, studentID, models.AuditActionWaitlistLeave, courseID)
	return nil
}

// Waitlist returns a course's waitlist in position order.
func (s *RegistrationService) Waitlist(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	entries, err := s.waitlist.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	return entries, nil
}

func (s *RegistrationService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *RegistrationService) checkSchedule(ctx context.Context, studentID string, course *models.Course) error {
	current, err := s.enrollments.ListActiveCoursesByStudent(ctx, studentID, course.Semester)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current schedule")
	}
	var conflicts []dto.ConflictingCourse
	for i := range current {
		if course.ConflictsWith(&current[i]) {
			conflicts = append(conflicts, dto.ConflictingCourse{
				CourseID:   current[i].ID,
				CourseCode: current[i].Code,
				Days:       current[i].Days,
			})
		}
	}
	if len(conflicts) > 0 {
		return appErrors.WithDetails(appErrors.ErrScheduleConflict, map[string]interface{}{"conflicts": conflicts})
	}
	return nil
}

func (s *RegistrationService) checkPrerequisites(ctx context.Context, studentID string, course *models.Course) error {
	var unmet []dto.UnmetPrerequisite
	for _, prereq := range course.Prerequisites {
		grade, err := s.grades.PostedGrade(ctx, studentID, prereq.PrerequisiteID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				unmet = append(unmet, dto.UnmetPrerequisite{
					CourseID:   prereq.PrerequisiteID,
					CourseCode: prereq.PrerequisiteCode,
					MinGrade:   prereq.MinGrade,
					Reason:     "course not completed",
				})
				continue
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
		}
		if !models.GradeMeetsMinimum(grade, prereq.MinGrade) {
			unmet = append(unmet, dto.UnmetPrerequisite{
				CourseID:   prereq.PrerequisiteID,
				CourseCode: prereq.PrerequisiteCode,
				MinGrade:   prereq.MinGrade,
				Reason:     fmt.Sprintf("grade %s below required %s", grade, prereq.MinGrade),
			})
		}
	}
	if len(unmet) > 0 {
		return appErrors.WithDetails(appErrors.ErrPrereqsNotMet, map[string]interface{}{"unmet": unmet})
	}
	return nil
}

func (s *RegistrationService) emitRegistrationAudit(ctx context.Context, studentID, action, courseID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &studentID,
		Action:     action,
		Resource:   "course",
		ResourceID: &courseID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err), zap.String("action", action))
	}
}
