package models

import (
	"math"
	"time"
)

// TransactionType enumerates ledger line categories.
type TransactionType string

const (
	TransactionTuition     TransactionType = "TUITION"
	TransactionFee         TransactionType = "FEE"
	TransactionPayment     TransactionType = "PAYMENT"
	TransactionRefund      TransactionType = "REFUND"
	TransactionScholarship TransactionType = "SCHOLARSHIP"
	TransactionCredit      TransactionType = "CREDIT"
)

// RecordStatus is the settlement state of a ledger line.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "PENDING"
	RecordStatusCompleted RecordStatus = "COMPLETED"
	RecordStatusFailed    RecordStatus = "FAILED"
	RecordStatusRefunded  RecordStatus = "REFUNDED"
	RecordStatusCancelled RecordStatus = "CANCELLED"
)

// FinancialRecord is one ledger line on a student account. Amount is a
// non-negative value rounded to 2 decimals.
type FinancialRecord struct {
	ID          string          `db:"id" json:"id"`
	StudentID   string          `db:"student_id" json:"student_id"`
	Type        TransactionType `db:"type" json:"type"`
	Amount      float64         `db:"amount" json:"amount"`
	Status      RecordStatus    `db:"status" json:"status"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	Description string          `db:"description" json:"description"`
	DueDate     *time.Time      `db:"due_date" json:"due_date,omitempty"`
	PaidAt      *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PaymentPlan splits an outstanding tuition record into monthly installments.
type PaymentPlan struct {
	ID                string    `db:"id" json:"id"`
	StudentID         string    `db:"student_id" json:"student_id"`
	FinancialRecordID string    `db:"financial_record_id" json:"financial_record_id"`
	Installments      int       `db:"installments" json:"installments"`
	InstallmentAmount float64   `db:"installment_amount" json:"installment_amount"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// FinancialFilter constrains ledger listing queries.
type FinancialFilter struct {
	StudentID string
	Type      TransactionType
	Status    []RecordStatus
	Limit     int
	Offset    int
}

// RoundAmount normalises monetary values to 2-decimal precision.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
