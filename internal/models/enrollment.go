package models

import "time"

// EnrollmentStatus is the lifecycle of a student↔course link.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Enrollment links a student to a course for one semester. At most one
// active enrollment exists per (student, course) pair.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Semester   string           `db:"semester" json:"semester"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// CompletedCourseGrade pairs a posted grade with the course's credit weight,
// used for GPA computation.
type CompletedCourseGrade struct {
	CourseID string `db:"course_id" json:"course_id"`
	Grade    string `db:"grade" json:"grade"`
	Credits  int    `db:"credits" json:"credits"`
}
