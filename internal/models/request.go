package models

import "time"

// RequestType enumerates supported student request categories.
type RequestType string

const (
	RequestTypeCourseWithdrawal RequestType = "COURSE_WITHDRAWAL"
	RequestTypeGradeChange      RequestType = "GRADE_CHANGE"
	RequestTypeRetakeExam       RequestType = "RETAKE_EXAM"
	RequestTypeLeaveOfAbsence   RequestType = "LEAVE_OF_ABSENCE"
	RequestTypeProgramChange    RequestType = "PROGRAM_CHANGE"
	RequestTypeOther            RequestType = "OTHER"
)

// RequestStatus captures the approval lifecycle of a student request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusInReview RequestStatus = "IN_REVIEW"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// HistoryAction is the decision recorded against a workflow step.
type HistoryAction string

const (
	HistoryActionApproved HistoryAction = "APPROVED"
	HistoryActionRejected HistoryAction = "REJECTED"
)

// WorkflowStep is one named stage in a request's approval sequence, bound to
// one approver. Positions are 1-based and dense per request.
type WorkflowStep struct {
	ID          string `db:"id" json:"id"`
	RequestID   string `db:"request_id" json:"request_id"`
	Position    int    `db:"position" json:"position"`
	Name        string `db:"name" json:"name"`
	ApproverID  string `db:"approver_id" json:"approver_id"`
	Label       string `db:"label" json:"label"`
	Description string `db:"description" json:"description"`
}

// HistoryEntry is one append-only decision record.
type HistoryEntry struct {
	ID         string        `db:"id" json:"id"`
	RequestID  string        `db:"request_id" json:"request_id"`
	ApproverID string        `db:"approver_id" json:"approver_id"`
	Action     HistoryAction `db:"action" json:"action"`
	Comments   string        `db:"comments" json:"comments"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// StudentRequest is a request for an administrative action driven through an
// ordered approval workflow. While status is IN_REVIEW, CurrentApproverID
// matches exactly one step that has not yet appeared in history; once
// terminal it is nil and no further transitions are permitted.
type StudentRequest struct {
	ID                string         `db:"id" json:"id"`
	StudentID         string         `db:"student_id" json:"student_id"`
	Type              RequestType    `db:"type" json:"type"`
	Description       string         `db:"description" json:"description"`
	Status            RequestStatus  `db:"status" json:"status"`
	CurrentApproverID *string        `db:"current_approver_id" json:"current_approver_id,omitempty"`
	RejectionReason   *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	Steps             []WorkflowStep `json:"steps,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
}

// StepStatus is the projected per-step state shown to callers.
type StepStatus string

const (
	StepStatusPending  StepStatus = "PENDING"
	StepStatusInReview StepStatus = "IN_REVIEW"
	StepStatusApproved StepStatus = "APPROVED"
	StepStatusRejected StepStatus = "REJECTED"
	StepStatusSkipped  StepStatus = "SKIPPED"
)

// WorkflowStepView is a workflow step replayed against history.
type WorkflowStepView struct {
	Position   int        `json:"position"`
	Name       string     `json:"name"`
	ApproverID string     `json:"approver_id"`
	Label      string     `json:"label"`
	Status     StepStatus `json:"status"`
	Comments   string     `json:"comments,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	StudentID  string
	ApproverID string
	Status     []RequestStatus
	Type       RequestType
	Limit      int
	Offset     int
}
