package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/service"
	appErrors "github.com/campusware/sis-api/pkg/errors"
	"github.com/campusware/sis-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, studentID, courseID string) (*dto.RegistrationResult, error)
	Drop(ctx context.Context, studentID, courseID string) (*dto.DropResult, error)
	JoinWaitlist(ctx context.Context, studentID, courseID string) (*models.WaitlistEntry, error)
	LeaveWaitlist(ctx context.Context, studentID, courseID string) error
	Waitlist(ctx context.Context, courseID string) ([]models.WaitlistEntry, error)
}

// RegistrationHandler exposes REST endpoints for registration, drops and
// waitlists.
type RegistrationHandler struct {
	service registrationService
	metrics *service.MetricsService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService, metrics *service.MetricsService) *RegistrationHandler {
	return &RegistrationHandler{service: svc, metrics: metrics}
}

// Register godoc
// @Summary Register the authenticated student for a course
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body dto.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid registration payload"))
		return
	}
	result, err := h.service.Register(c.Request.Context(), claims.UserID, req.CourseID)
	if err != nil {
		h.metrics.IncRegistration(registrationOutcome(err))
		response.Error(c, err)
		return
	}
	h.metrics.IncRegistration("success")
	response.JSON(c, http.StatusCreated, result, nil)
}

// Drop godoc
// @Summary Drop the authenticated student from a course
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body dto.DropRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/drop [post]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid drop payload"))
		return
	}
	result, err := h.service.Drop(c.Request.Context(), claims.UserID, req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.IncDrop()
	response.JSON(c, http.StatusOK, result, nil)
}

// JoinWaitlist godoc
// @Summary Join a full course's waitlist
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body dto.WaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Router /waitlists [post]
func (h *RegistrationHandler) JoinWaitlist(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid waitlist payload"))
		return
	}
	entry, err := h.service.JoinWaitlist(c.Request.Context(), claims.UserID, req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.IncWaitlistJoin()
	response.JSON(c, http.StatusCreated, entry, nil)
}

// LeaveWaitlist godoc
// @Summary Leave a course's waitlist
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body dto.WaitlistRequest true "Waitlist payload"
// @Success 204
// @Router /waitlists/leave [post]
func (h *RegistrationHandler) LeaveWaitlist(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid waitlist payload"))
		return
	}
	if err := h.service.LeaveWaitlist(c.Request.Context(), claims.UserID, req.CourseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Waitlist godoc
// @Summary List a course's waitlist in position order
// @Tags Registration
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/waitlist [get]
func (h *RegistrationHandler) Waitlist(c *gin.Context) {
	entries, err := h.service.Waitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func registrationOutcome(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case appErrors.ErrCourseFull.Code:
			return "course_full"
		case appErrors.ErrScheduleConflict.Code:
			return "schedule_conflict"
		case appErrors.ErrPrereqsNotMet.Code:
			return "prerequisites_not_met"
		case appErrors.ErrFinancialHold.Code:
			return "financial_hold"
		case appErrors.ErrRegistrationClosed.Code:
			return "registration_closed"
		case appErrors.ErrAlreadyEnrolled.Code:
			return "already_enrolled"
		}
	}
	return "error"
}
