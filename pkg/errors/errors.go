package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// structured supporting data (conflicting courses, unmet prerequisites,
// refund tier) so callers can render messages without re-deriving domain
// logic.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// StateConflict covers operations attempted from a state that forbids
	// them: request not in review, already enrolled, already waitlisted.
	ErrStateConflict = New("STATE_CONFLICT", http.StatusConflict, "operation not allowed in current state")
	// NotAuthorized is an actor mismatch against the recorded current
	// approver, distinct from generic RBAC forbidden.
	ErrNotAuthorized = New("NOT_AUTHORIZED", http.StatusForbidden, "actor is not the current approver")
	// CourseFull is distinguished from a generic conflict because it carries
	// an alternate action: offer the waitlist.
	ErrCourseFull         = New("COURSE_FULL", http.StatusConflict, "course has no remaining seats")
	ErrRegistrationClosed = New("REGISTRATION_CLOSED", http.StatusPreconditionFailed, "registration window is closed")
	ErrAlreadyEnrolled    = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in course")
	ErrNotEnrolled        = New("NOT_ENROLLED", http.StatusConflict, "student has no active enrollment in course")
	ErrScheduleConflict   = New("SCHEDULE_CONFLICT", http.StatusPreconditionFailed, "course meeting times conflict with current enrollments")
	ErrPrereqsNotMet      = New("PREREQUISITES_NOT_MET", http.StatusPreconditionFailed, "prerequisites not satisfied")
	ErrFinancialHold      = New("FINANCIAL_HOLD", http.StatusPreconditionFailed, "account has an overdue balance")
	ErrNoWorkflowDefined  = New("NO_WORKFLOW_DEFINED", http.StatusUnprocessableEntity, "no workflow defined for request type")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured detail data.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
