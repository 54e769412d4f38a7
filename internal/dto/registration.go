package dto

import "github.com/campusware/sis-api/internal/models"

// RegisterRequest enrolls the authenticated student in a course.
type RegisterRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// DropRequest drops the authenticated student from a course.
type DropRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// WaitlistRequest joins or leaves a course waitlist.
type WaitlistRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// UnmetPrerequisite explains one failed prerequisite check.
type UnmetPrerequisite struct {
	CourseID   string `json:"course_id"`
	CourseCode string `json:"course_code"`
	MinGrade   string `json:"min_grade"`
	Reason     string `json:"reason"`
}

// ConflictingCourse identifies a schedule collision.
type ConflictingCourse struct {
	CourseID   string `json:"course_id"`
	CourseCode string `json:"course_code"`
	Days       string `json:"days"`
}

// RegistrationResult is the success payload of a registration transaction.
type RegistrationResult struct {
	Enrollment *models.Enrollment      `json:"enrollment"`
	Tuition    *models.FinancialRecord `json:"tuition"`
}

// DropResult is the success payload of a drop transaction. NextWaitlisted is
// advisory only: the caller decides whether to notify or enroll that student.
type DropResult struct {
	Enrollment     *models.Enrollment      `json:"enrollment"`
	RefundRate     float64                 `json:"refund_rate"`
	Refund         *models.FinancialRecord `json:"refund,omitempty"`
	TuitionVoided  bool                    `json:"tuition_voided"`
	NextWaitlisted *models.WaitlistEntry   `json:"next_waitlisted,omitempty"`
}
