package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusware/sis-api/internal/dto"
	appErrors "github.com/campusware/sis-api/pkg/errors"
	"github.com/campusware/sis-api/pkg/response"
)

type gradeService interface {
	PostGrade(ctx context.Context, enrollmentID, grade string) error
	GPA(ctx context.Context, studentID string) (float64, error)
}

// GradeHandler exposes grade posting and transcript aggregates.
type GradeHandler struct {
	service gradeService
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc gradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// PostGrade godoc
// @Summary Record a final grade on an enrollment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.PostGradeRequest true "Grade payload"
// @Success 204
// @Router /enrollments/{id}/grade [post]
func (h *GradeHandler) PostGrade(c *gin.Context) {
	var req dto.PostGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid grade payload"))
		return
	}
	grade := strings.ToUpper(strings.TrimSpace(req.Grade))
	if err := h.service.PostGrade(c.Request.Context(), c.Param("id"), grade); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GPA godoc
// @Summary Get the authenticated student's GPA
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/me/gpa [get]
func (h *GradeHandler) GPA(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	gpa, err := h.service.GPA(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"gpa": gpa}, nil)
}
