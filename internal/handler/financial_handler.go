package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusware/sis-api/internal/dto"
	"github.com/campusware/sis-api/internal/models"
	appErrors "github.com/campusware/sis-api/pkg/errors"
	"github.com/campusware/sis-api/pkg/response"
)

type financialService interface {
	Statement(ctx context.Context, studentID string, filter models.FinancialFilter) ([]models.FinancialRecord, error)
	RecordPayment(ctx context.Context, recordID, actorID string) (*models.FinancialRecord, error)
	CreatePaymentPlan(ctx context.Context, req dto.CreatePaymentPlanRequest, studentID string) (*models.PaymentPlan, []models.FinancialRecord, error)
}

// FinancialHandler exposes the student ledger endpoints.
type FinancialHandler struct {
	service financialService
}

// NewFinancialHandler constructs the handler.
func NewFinancialHandler(svc financialService) *FinancialHandler {
	return &FinancialHandler{service: svc}
}

// Statement godoc
// @Summary List the authenticated student's ledger records
// @Tags Financial
// @Produce json
// @Param type query string false "Transaction type"
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /financial/records [get]
func (h *FinancialHandler) Statement(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.FinancialFilter{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("type"); raw != "" {
		filter.Type = models.TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.RecordStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RecordStatus(part))
		}
		filter.Status = statuses
	}
	records, err := h.service.Statement(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// RecordPayment godoc
// @Summary Settle a pending ledger record
// @Tags Financial
// @Accept json
// @Produce json
// @Param payload body dto.RecordPaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Router /financial/payments [post]
func (h *FinancialHandler) RecordPayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payment payload"))
		return
	}
	record, err := h.service.RecordPayment(c.Request.Context(), req.RecordID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CreatePaymentPlan godoc
// @Summary Split a pending tuition record into monthly installments
// @Tags Financial
// @Accept json
// @Produce json
// @Param payload body dto.CreatePaymentPlanRequest true "Plan payload"
// @Success 201 {object} response.Envelope
// @Router /financial/payment-plans [post]
func (h *FinancialHandler) CreatePaymentPlan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreatePaymentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payment plan payload"))
		return
	}
	plan, installments, err := h.service.CreatePaymentPlan(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"plan": plan, "installments": installments}, nil)
}
