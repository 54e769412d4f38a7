package dto

// PostGradeRequest records a final grade on an active enrollment.
type PostGradeRequest struct {
	Grade string `json:"grade" validate:"required"`
}
