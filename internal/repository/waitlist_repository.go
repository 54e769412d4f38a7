package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusware/sis-api/internal/models"
)

// ErrAlreadyWaitlisted signals a duplicate join attempt.
var ErrAlreadyWaitlisted = errors.New("student already on waitlist")

// WaitlistRepository maintains dense 1..N waitlist positions per course.
// Join and Leave serialize on the course row so concurrent callers cannot
// produce duplicate or skipped positions.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Join appends the student at position max+1 under a course-row lock.
func (r *WaitlistRepository) Join(ctx context.Context, courseID, studentID string, joinedAt time.Time) (*models.WaitlistEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist join: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, err
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM course_waitlists WHERE course_id = $1 AND student_id = $2 LIMIT 1`, courseID, studentID)
	if err == nil {
		return nil, ErrAlreadyWaitlisted
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check waitlist entry: %w", err)
	}

	var position int
	if err := tx.GetContext(ctx, &position, `SELECT COALESCE(MAX(position), 0) + 1 FROM course_waitlists WHERE course_id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("next waitlist position: %w", err)
	}

	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		StudentID: studentID,
		Position:  position,
		JoinedAt:  joinedAt,
	}
	const insert = `INSERT INTO course_waitlists (id, course_id, student_id, position, joined_at)
	VALUES (:id, :course_id, :student_id, :position, :joined_at)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist join: %w", err)
	}
	return entry, nil
}

// Leave removes the entry and compacts all later positions by one, under the
// same course-row lock as Join. Returns sql.ErrNoRows when the student is
// not listed.
func (r *WaitlistRepository) Leave(ctx context.Context, courseID, studentID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist leave: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var lockedID string
	if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return err
	}

	var removed int
	err = tx.GetContext(ctx, &removed, `DELETE FROM course_waitlists WHERE course_id = $1 AND student_id = $2 RETURNING position`, courseID, studentID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE course_waitlists SET position = position - 1 WHERE course_id = $1 AND position > $2`, courseID, removed); err != nil {
		return fmt.Errorf("compact waitlist positions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit waitlist leave: %w", err)
	}
	return nil
}

// FindFront returns the entry at position 1, or sql.ErrNoRows for an empty
// waitlist.
func (r *WaitlistRepository) FindFront(ctx context.Context, courseID string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, course_id, student_id, position, joined_at
	FROM course_waitlists WHERE course_id = $1 ORDER BY position ASC LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, courseID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByCourse returns the waitlist in position order.
func (r *WaitlistRepository) ListByCourse(ctx context.Context, courseID string) ([]models.WaitlistEntry, error) {
	const query = `SELECT id, course_id, student_id, position, joined_at
	FROM course_waitlists WHERE course_id = $1 ORDER BY position ASC`
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, courseID); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}
