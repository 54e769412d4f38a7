package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/repository"
	"github.com/campusware/sis-api/pkg/clock"
	appErrors "github.com/campusware/sis-api/pkg/errors"
)

type courseReaderStub struct {
	courses map[string]*models.Course
}

func (c *courseReaderStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := c.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	copied.Prerequisites = append([]models.Prerequisite(nil), course.Prerequisites...)
	return &copied, nil
}

type enrollmentReaderStub struct {
	active     map[string]*models.Enrollment // key student:course
	activeList []models.Course
}

func enrollKey(studentID, courseID string) string { return studentID + ":" + courseID }

func (e *enrollmentReaderStub) FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	if enr, ok := e.active[enrollKey(studentID, courseID)]; ok {
		copied := *enr
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (e *enrollmentReaderStub) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	_, ok := e.active[enrollKey(studentID, courseID)]
	return ok, nil
}

func (e *enrollmentReaderStub) ListActiveCoursesByStudent(ctx context.Context, studentID, semester string) ([]models.Course, error) {
	return e.activeList, nil
}

type gradeReaderStub struct {
	grades map[string]string // key student:course
}

func (g *gradeReaderStub) PostedGrade(ctx context.Context, studentID, courseID string) (string, error) {
	grade, ok := g.grades[enrollKey(studentID, courseID)]
	if !ok {
		return "", sql.ErrNoRows
	}
	return grade, nil
}

type holdCheckerStub struct {
	hold    bool
	tuition map[string]*models.FinancialRecord // key enrollment id
}

func (h *holdCheckerStub) HasOverduePending(ctx context.Context, studentID string, asOf time.Time) (bool, error) {
	return h.hold, nil
}

func (h *holdCheckerStub) FindTuitionByReference(ctx context.Context, referenceID string) (*models.FinancialRecord, error) {
	record, ok := h.tuition[referenceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

type waitlistStoreStub struct {
	entries map[string][]models.WaitlistEntry // key course id
	joinErr error
}

func (w *waitlistStoreStub) Join(ctx context.Context, courseID, studentID string, joinedAt time.Time) (*models.WaitlistEntry, error) {
	if w.joinErr != nil {
		return nil, w.joinErr
	}
	entry := models.WaitlistEntry{
		CourseID:  courseID,
		StudentID: studentID,
		Position:  len(w.entries[courseID]) + 1,
		JoinedAt:  joinedAt,
	}
	w.entries[courseID] = append(w.entries[courseID], entry)
	return &entry, nil
}

func (w *waitlistStoreStub) Leave(ctx context.Context, courseID, studentID string) error {
	entries := w.entries[courseID]
	for i, entry := range entries {
		if entry.StudentID == studentID {
			w.entries[courseID] = append(entries[:i], entries[i+1:]...)
			for j := range w.entries[courseID] {
				w.entries[courseID][j].Position = j + 1
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (w *waitlistStoreStub) FindFront(ctx context.Context, courseID string) (*models.WaitlistEntry, error) {
	entries := w.entries[courseID]
	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}
	front := entries[0]
	return &front, nil
}

func (w *waitlistStoreStub) ListByCourse(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	return w.entries[courseID], nil
}

type registrationStoreStub struct {
	commitErr   error
	dropErr     error
	enrollments []*models.Enrollment
	tuitions    []*models.FinancialRecord
	drops       []repository.DropParams
}

func (r *registrationStoreStub) CommitRegistration(ctx context.Context, enrollment *models.Enrollment, tuition *models.FinancialRecord) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.enrollments = append(r.enrollments, enrollment)
	r.tuitions = append(r.tuitions, tuition)
	return nil
}

func (r *registrationStoreStub) CommitDrop(ctx context.Context, params repository.DropParams) error {
	if r.dropErr != nil {
		return r.dropErr
	}
	r.drops = append(r.drops, params)
	return nil
}

type registrationFixture struct {
	courses  *courseReaderStub
	enrolls  *enrollmentReaderStub
	grades   *gradeReaderStub
	holds    *holdCheckerStub
	waitlist *waitlistStoreStub
	store    *registrationStoreStub
	audit    *auditStub
	svc      *RegistrationService
}

var fixedNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func newRegistrationFixture(opts ...RegistrationServiceOption) *registrationFixture {
	f := &registrationFixture{
		courses:  &courseReaderStub{courses: make(map[string]*models.Course)},
		enrolls:  &enrollmentReaderStub{active: make(map[string]*models.Enrollment)},
		grades:   &gradeReaderStub{grades: make(map[string]string)},
		holds:    &holdCheckerStub{tuition: make(map[string]*models.FinancialRecord)},
		waitlist: &waitlistStoreStub{entries: make(map[string][]models.WaitlistEntry)},
		store:    &registrationStoreStub{},
		audit:    &auditStub{},
	}
	base := []RegistrationServiceOption{WithRegistrationClock(clock.Fixed(fixedNow))}
	f.svc = NewRegistrationService(
		f.courses, f.enrolls, f.grades, f.holds, f.waitlist, f.store, f.audit, nil,
		append(base, opts...)...)
	return f
}

func openCourse(id string) *models.Course {
	return &models.Course{
		ID:                id,
		Code:              "CS301",
		Name:              "Algorithms",
		Credits:           3,
		Capacity:          30,
		EnrolledCount:     10,
		Active:            true,
		Semester:          "2025F",
		RegistrationStart: fixedNow.AddDate(0, 0, -14),
		RegistrationEnd:   fixedNow.AddDate(0, 0, 14),
		Days:              "MW",
		StartMinutes:      10 * 60,
		EndMinutes:        11 * 60,
		TuitionPerCredit:  450,
	}
}

func TestRegisterSuccessCommitsThreeEffects(t *testing.T) {
	f := newRegistrationFixture(WithTuitionDueDays(30))
	f.courses.courses["c1"] = openCourse("c1")

	result, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.NotNil(t, result.Enrollment)
	require.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	require.Equal(t, "2025F", result.Enrollment.Semester)

	require.Len(t, f.store.enrollments, 1)
	require.Len(t, f.store.tuitions, 1)
	tuition := f.store.tuitions[0]
	require.Equal(t, models.TransactionTuition, tuition.Type)
	require.Equal(t, models.RecordStatusPending, tuition.Status)
	require.Equal(t, 1350.0, tuition.Amount)
	require.NotNil(t, tuition.ReferenceID)
	require.Equal(t, result.Enrollment.ID, *tuition.ReferenceID)
	require.NotNil(t, tuition.DueDate)
	require.Equal(t, fixedNow.AddDate(0, 0, 30), *tuition.DueDate)
	require.Len(t, f.audit.logs, 1)
}

func TestRegisterWindowClosed(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.RegistrationEnd = fixedNow.AddDate(0, 0, -1)
	f.courses.courses["c1"] = course

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrRegistrationClosed.Code, appErrors.FromError(err).Code)
}

func TestRegisterInactiveCourse(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.Active = false
	f.courses.courses["c1"] = course

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrRegistrationClosed.Code, appErrors.FromError(err).Code)
}

func TestRegisterAlreadyEnrolled(t *testing.T) {
	f := newRegistrationFixture()
	f.courses.courses["c1"] = openCourse("c1")
	f.enrolls.active[enrollKey("student-1", "c1")] = &models.Enrollment{ID: "e1"}

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
}

func TestRegisterCourseFullOffersWaitlist(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.EnrolledCount = course.Capacity
	f.courses.courses["c1"] = course

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrCourseFull.Code, appErr.Code)
	require.Equal(t, true, appErr.Details["can_waitlist"])
}

func TestRegisterScheduleConflictOverlappingDays(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1") // MW 10:00-11:00
	f.courses.courses["c1"] = course
	f.enrolls.activeList = []models.Course{
		{ID: "c2", Code: "MATH201", Days: "MWF", StartMinutes: 10*60 + 30, EndMinutes: 11*60 + 30},
	}

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	require.NotNil(t, appErr.Details["conflicts"])
}

func TestRegisterNoConflictOnDisjointDays(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1") // MW 10:00-11:00
	f.courses.courses["c1"] = course
	// TR course at identical times shares no meeting day.
	f.enrolls.activeList = []models.Course{
		{ID: "c2", Code: "PHYS101", Days: "TR", StartMinutes: 10 * 60, EndMinutes: 11 * 60},
	}

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.NoError(t, err)
}

func TestRegisterBackToBackMeetingsDoNotConflict(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1") // MW 10:00-11:00
	f.courses.courses["c1"] = course
	// Half-open intervals: a class ending 10:00 does not overlap one
	// starting 10:00.
	f.enrolls.activeList = []models.Course{
		{ID: "c2", Code: "CHEM110", Days: "MW", StartMinutes: 9 * 60, EndMinutes: 10 * 60},
	}

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.NoError(t, err)
}

func TestRegisterPrerequisiteNotCompleted(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.Prerequisites = []models.Prerequisite{
		{CourseID: "c1", PrerequisiteID: "c0", PrerequisiteCode: "CS201", MinGrade: "C"},
	}
	f.courses.courses["c1"] = course

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrPrereqsNotMet.Code, appErr.Code)
	require.NotNil(t, appErr.Details["unmet"])
}

func TestRegisterPrerequisiteGradeBelowMinimum(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.Prerequisites = []models.Prerequisite{
		{CourseID: "c1", PrerequisiteID: "c0", PrerequisiteCode: "CS201", MinGrade: "C"},
	}
	f.courses.courses["c1"] = course
	// C- (1.7) is below C (2.0).
	f.grades.grades[enrollKey("student-1", "c0")] = "C-"

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrPrereqsNotMet.Code, appErrors.FromError(err).Code)

	// Exactly the minimum passes.
	f.grades.grades[enrollKey("student-1", "c0")] = "C"
	_, err = f.svc.Register(context.Background(), "student-1", "c1")
	require.NoError(t, err)
}

func TestRegisterFinancialHold(t *testing.T) {
	f := newRegistrationFixture()
	f.courses.courses["c1"] = openCourse("c1")
	f.holds.hold = true

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrFinancialHold.Code, appErrors.FromError(err).Code)
}

func TestRegisterSeatRaceLostMapsToCourseFull(t *testing.T) {
	f := newRegistrationFixture()
	f.courses.courses["c1"] = openCourse("c1")
	f.store.commitErr = repository.ErrNoSeatAvailable

	_, err := f.svc.Register(context.Background(), "student-1", "c1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrCourseFull.Code, appErr.Code)
	require.Equal(t, true, appErr.Details["can_waitlist"])
}

func dropFixtureWithRegistrationEnd(end time.Time, tuitionStatus models.RecordStatus) *registrationFixture {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.RegistrationEnd = end
	f.courses.courses["c1"] = course
	f.enrolls.active[enrollKey("student-1", "c1")] = &models.Enrollment{
		ID: "e1", StudentID: "student-1", CourseID: "c1", Status: models.EnrollmentStatusActive,
	}
	f.holds.tuition["e1"] = &models.FinancialRecord{
		ID: "fr1", StudentID: "student-1", Type: models.TransactionTuition,
		Amount: 1350, Status: tuitionStatus,
	}
	return f
}

func TestDropWithinFirstWeekFullRefund(t *testing.T) {
	f := dropFixtureWithRegistrationEnd(fixedNow.AddDate(0, 0, -5), models.RecordStatusCompleted)

	result, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.Equal(t, 1.0, result.RefundRate)
	require.NotNil(t, result.Refund)
	require.Equal(t, 1350.0, result.Refund.Amount)
	require.Equal(t, models.TransactionRefund, result.Refund.Type)
	require.False(t, result.TuitionVoided)
	require.Len(t, f.store.drops, 1)
	require.Equal(t, result.Refund, f.store.drops[0].Refund)
}

func TestDropThirdWeekHalfRefund(t *testing.T) {
	f := dropFixtureWithRegistrationEnd(fixedNow.AddDate(0, 0, -20), models.RecordStatusCompleted)

	result, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.Equal(t, 0.5, result.RefundRate)
	require.Equal(t, 675.0, result.Refund.Amount)
}

func TestDropAfterFourWeeksNoRefund(t *testing.T) {
	f := dropFixtureWithRegistrationEnd(fixedNow.AddDate(0, 0, -30), models.RecordStatusCompleted)

	result, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.Equal(t, 0.0, result.RefundRate)
	require.Nil(t, result.Refund)
	require.Nil(t, f.store.drops[0].Refund)
}

func TestDropVoidsPendingTuitionInsteadOfRefunding(t *testing.T) {
	f := dropFixtureWithRegistrationEnd(fixedNow.AddDate(0, 0, -5), models.RecordStatusPending)

	result, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.True(t, result.TuitionVoided)
	require.Nil(t, result.Refund)
	require.Equal(t, "fr1", f.store.drops[0].CancelTuitionID)
}

func TestDropNotEnrolled(t *testing.T) {
	f := newRegistrationFixture()
	f.courses.courses["c1"] = openCourse("c1")

	_, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
}

func TestDropReportsNextWaitlistedAdvisoryOnly(t *testing.T) {
	f := dropFixtureWithRegistrationEnd(fixedNow.AddDate(0, 0, -5), models.RecordStatusPending)
	f.waitlist.entries["c1"] = []models.WaitlistEntry{
		{CourseID: "c1", StudentID: "student-9", Position: 1},
		{CourseID: "c1", StudentID: "student-8", Position: 2},
	}

	result, err := f.svc.Drop(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.NotNil(t, result.NextWaitlisted)
	require.Equal(t, "student-9", result.NextWaitlisted.StudentID)
	// The waitlist itself is untouched.
	require.Len(t, f.waitlist.entries["c1"], 2)
}

func TestJoinWaitlistRequiresFullCourse(t *testing.T) {
	f := newRegistrationFixture()
	f.courses.courses["c1"] = openCourse("c1") // has open seats

	_, err := f.svc.JoinWaitlist(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestJoinWaitlistAppendsAtBack(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.EnrolledCount = course.Capacity
	f.courses.courses["c1"] = course
	f.waitlist.entries["c1"] = []models.WaitlistEntry{{StudentID: "student-9", Position: 1}}

	entry, err := f.svc.JoinWaitlist(context.Background(), "student-1", "c1")
	require.NoError(t, err)
	require.Equal(t, 2, entry.Position)
}

func TestJoinWaitlistDuplicate(t *testing.T) {
	f := newRegistrationFixture()
	course := openCourse("c1")
	course.EnrolledCount = course.Capacity
	f.courses.courses["c1"] = course
	f.waitlist.joinErr = repository.ErrAlreadyWaitlisted

	_, err := f.svc.JoinWaitlist(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestLeaveWaitlistClosesGap(t *testing.T) {
	f := newRegistrationFixture()
	f.waitlist.entries["c1"] = []models.WaitlistEntry{
		{StudentID: "student-1", Position: 1},
		{StudentID: "student-2", Position: 2},
		{StudentID: "student-3", Position: 3},
	}

	require.NoError(t, f.svc.LeaveWaitlist(context.Background(), "student-2", "c1"))
	remaining := f.waitlist.entries["c1"]
	require.Len(t, remaining, 2)
	require.Equal(t, 1, remaining[0].Position)
	require.Equal(t, 2, remaining[1].Position)
	require.Equal(t, "student-3", remaining[1].StudentID)
}

func TestLeaveWaitlistNotMember(t *testing.T) {
	f := newRegistrationFixture()

	err := f.svc.LeaveWaitlist(context.Background(), "student-1", "c1")
	require.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}
