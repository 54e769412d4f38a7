package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/service"
	appErrors "github.com/campusware/sis-api/pkg/errors"
	"github.com/campusware/sis-api/pkg/response"
)

type requestService interface {
	Submit(ctx context.Context, req dto.CreateRequestRequest, studentID string) (*models.StudentRequest, error)
	List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.StudentRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error)
	Details(ctx context.Context, id string, actor *models.JWTClaims) ([]models.WorkflowStepView, error)
	Approve(ctx context.Context, id, approverID, comments string) (*service.DecisionResult, error)
	Reject(ctx context.Context, id, approverID, reason, comments string) (*service.DecisionResult, error)
}

// RequestHandler exposes REST endpoints for student request workflows.
type RequestHandler struct {
	service requestService
	metrics *service.MetricsService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(svc requestService, metrics *service.MetricsService) *RequestHandler {
	return &RequestHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Submit a student request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	req.Type = models.RequestType(strings.ToUpper(string(req.Type)))
	request, err := h.service.Submit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List student requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.RequestQuery{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.RequestType(strings.ToUpper(strings.TrimSpace(rawType)))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RequestStatus(part))
		}
		query.Status = statuses
	}
	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get a student request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Details godoc
// @Summary Get a request's workflow steps with per-step status
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/workflow [get]
func (h *RequestHandler) Details(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	steps, err := h.service.Details(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, steps, nil)
}

// Approve godoc
// @Summary Approve the current workflow step
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest false "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID, req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.IncDecision("approved")
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject the request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision payload with reason"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason, req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.IncDecision("rejected")
	response.JSON(c, http.StatusOK, result, nil)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
