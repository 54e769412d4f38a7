package models

import (
	"strings"
	"time"
)

// Course is a capacity-bounded catalog entry. EnrolledCount is mutated only
// by the registration and drop transactions; 0 <= EnrolledCount <= Capacity.
type Course struct {
	ID                string    `db:"id" json:"id"`
	Code              string    `db:"code" json:"code"`
	Name              string    `db:"name" json:"name"`
	Credits           int       `db:"credits" json:"credits"`
	Capacity          int       `db:"capacity" json:"capacity"`
	EnrolledCount     int       `db:"enrolled_count" json:"enrolled_count"`
	Active            bool      `db:"active" json:"active"`
	Semester          string    `db:"semester" json:"semester"`
	RegistrationStart time.Time `db:"registration_start" json:"registration_start"`
	RegistrationEnd   time.Time `db:"registration_end" json:"registration_end"`
	// Days is a compact day-of-week string, e.g. "MWF" or "TR"
	// (R = Thursday, U = Sunday).
	Days string `db:"days" json:"days"`
	// Meeting times are minutes from midnight; the interval is half-open
	// [StartMinutes, EndMinutes).
	StartMinutes     int            `db:"start_minutes" json:"start_minutes"`
	EndMinutes       int            `db:"end_minutes" json:"end_minutes"`
	TuitionPerCredit float64        `db:"tuition_per_credit" json:"tuition_per_credit"`
	Prerequisites    []Prerequisite `json:"prerequisites,omitempty"`
}

// Prerequisite requires a completed enrollment in an earlier course with a
// posted grade at or above MinGrade.
type Prerequisite struct {
	CourseID         string `db:"course_id" json:"course_id"`
	PrerequisiteID   string `db:"prerequisite_id" json:"prerequisite_id"`
	PrerequisiteCode string `db:"prerequisite_code" json:"prerequisite_code"`
	MinGrade         string `db:"min_grade" json:"min_grade"`
}

// IsFull reports whether no seats remain.
func (c *Course) IsFull() bool {
	return c.EnrolledCount >= c.Capacity
}

// SharesDay reports whether the two courses meet on at least one common day.
func (c *Course) SharesDay(other *Course) bool {
	for _, day := range c.Days {
		if strings.ContainsRune(other.Days, day) {
			return true
		}
	}
	return false
}

// OverlapsTime reports whether the half-open meeting intervals intersect.
func (c *Course) OverlapsTime(other *Course) bool {
	return c.StartMinutes < other.EndMinutes && other.StartMinutes < c.EndMinutes
}

// ConflictsWith reports a schedule conflict: a shared meeting day with
// overlapping time intervals.
func (c *Course) ConflictsWith(other *Course) bool {
	return c.SharesDay(other) && c.OverlapsTime(other)
}

// CourseFilter constrains catalog listing queries.
type CourseFilter struct {
	Semester string
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
