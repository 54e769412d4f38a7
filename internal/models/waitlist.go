package models

import "time"

// WaitlistEntry is a student's place in line for a full course. Positions
// form a dense 1..N sequence per course; removing an entry compacts all
// later positions by one.
type WaitlistEntry struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Position  int       `db:"position" json:"position"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}
