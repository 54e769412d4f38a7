package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusware/sis-api/internal/models"
)

// LoggingApprovalHandlers returns the default post-approval handlers: each
// records the approval and leaves the follow-up action to staff. Callers
// override individual entries to automate a type, e.g. wiring
// COURSE_WITHDRAWAL to the registration drop flow.
func LoggingApprovalHandlers(logger *zap.Logger) map[models.RequestType]ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	types := []models.RequestType{
		models.RequestTypeCourseWithdrawal,
		models.RequestTypeGradeChange,
		models.RequestTypeRetakeExam,
		models.RequestTypeLeaveOfAbsence,
		models.RequestTypeProgramChange,
		models.RequestTypeOther,
	}
	handlers := make(map[models.RequestType]ApprovalHandler, len(types))
	for _, t := range types {
		requestType := t
		handlers[requestType] = ApprovalHandlerFunc(func(ctx context.Context, request *models.StudentRequest) error {
			logger.Info("request fully approved",
				zap.String("request_id", request.ID),
				zap.String("type", string(requestType)),
				zap.String("student_id", request.StudentID))
			return nil
		})
	}
	return handlers
}
