package dto

// RecordPaymentRequest settles a pending ledger record.
type RecordPaymentRequest struct {
	RecordID string `json:"record_id" validate:"required"`
}

// CreatePaymentPlanRequest splits an outstanding tuition record into
// monthly installments.
type CreatePaymentPlanRequest struct {
	RecordID     string `json:"record_id" validate:"required"`
	Installments int    `json:"installments" validate:"required,min=2,max=12"`
}
