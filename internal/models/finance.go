package models

import "time"

// PaymentStatus is the state of a registration fee payment. Payment rows are
// written by the payment gateway integration; read-only to this engine.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// FeeStructure is a program's active tuition schedule.
type FeeStructure struct {
	ID          string  `db:"id" json:"id"`
	ProgramID   string  `db:"program_id" json:"program_id"`
	TotalAmount float64 `db:"total_amount" json:"total_amount"`
	Active      bool    `db:"active" json:"active"`
}

// StudentFinancialStatus is the per-(student, class) billing record seeded
// after a successful registration. One row per enrollment, never duplicated.
type StudentFinancialStatus struct {
	ID              string     `db:"id" json:"id"`
	StudentID       string     `db:"student_id" json:"student_id"`
	ClassID         string     `db:"class_id" json:"class_id"`
	TotalFee        float64    `db:"total_fee" json:"total_fee"`
	PaidAmount      float64    `db:"paid_amount" json:"paid_amount"`
	Balance         float64    `db:"balance" json:"balance"`
	CurrentBlock    int        `db:"current_block" json:"current_block"`
	NextPaymentDue  *time.Time `db:"next_payment_due" json:"next_payment_due,omitempty"`
	PaymentDeadline *time.Time `db:"payment_deadline" json:"payment_deadline,omitempty"`
}
