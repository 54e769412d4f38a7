package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusware/sis-api/internal/models"
	appErrors "github.com/campusware/sis-api/pkg/errors"
	"github.com/campusware/sis-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Course, error)
}

// CourseHandler exposes the course catalog.
type CourseHandler struct {
	service catalogService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(svc catalogService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List catalog courses
// @Tags Courses
// @Produce json
// @Param semester query string false "Semester"
// @Param active query bool false "Active filter"
// @Param search query string false "Code or name search"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Semester: strings.TrimSpace(c.Query("semester")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true" || raw == "1"
		filter.Active = &active
	}
	courses, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a course with prerequisites
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if course == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "course not found"))
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
