package dto

import "github.com/campusware/sis-api/internal/models"

// CreateRequestRequest submits a new student request.
type CreateRequestRequest struct {
	Type        models.RequestType `json:"type" validate:"required"`
	Description string             `json:"description" validate:"required,max=2000"`
}

// DecisionRequest carries an approver's decision payload.
type DecisionRequest struct {
	Comments string `json:"comments" validate:"max=2000"`
	// Reason is required for rejections and ignored on approvals.
	Reason string `json:"reason" validate:"max=500"`
}

// RequestQuery filters request listings.
type RequestQuery struct {
	Status []models.RequestStatus
	Type   models.RequestType
	Limit  int
	Offset int
}
