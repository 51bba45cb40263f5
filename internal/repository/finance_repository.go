package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// FinanceRepository handles billing reads and the financial status rows the
// post-commit seeder creates.
type FinanceRepository struct {
	db *sqlx.DB
}

// NewFinanceRepository constructs the repository.
func NewFinanceRepository(db *sqlx.DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

// ActiveFeeStructure returns the program's active fee structure.
func (r *FinanceRepository) ActiveFeeStructure(ctx context.Context, programID string) (*models.FeeStructure, error) {
	const query = `SELECT id, program_id, total_amount, active FROM fee_structures
        WHERE program_id = $1 AND active = TRUE LIMIT 1`
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, programID); err != nil {
		return nil, err
	}
	return &structure, nil
}

// StatusExists reports whether a financial status row already exists for the
// (student, class) pair. The seeder's idempotence rests on this check.
func (r *FinanceRepository) StatusExists(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT 1 FROM student_financial_status WHERE student_id = $1 AND class_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check financial status: %w", err)
	}
	return true, nil
}

// CreateStatus inserts a financial status row.
func (r *FinanceRepository) CreateStatus(ctx context.Context, status *models.StudentFinancialStatus) error {
	if status.ID == "" {
		status.ID = uuid.NewString()
	}
	const query = `INSERT INTO student_financial_status (id, student_id, class_id, total_fee, paid_amount, balance,
        current_block, next_payment_due, payment_deadline)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		status.ID, status.StudentID, status.ClassID, status.TotalFee, status.PaidAmount,
		status.Balance, status.CurrentBlock, status.NextPaymentDue, status.PaymentDeadline,
	); err != nil {
		return fmt.Errorf("create financial status: %w", err)
	}
	return nil
}

// ListStatusByStudentAndClasses returns existing rows for the statement
// export, keyed by class id.
func (r *FinanceRepository) ListStatusByStudentAndClasses(ctx context.Context, studentID string, classIDs []string) (map[string]models.StudentFinancialStatus, error) {
	result := make(map[string]models.StudentFinancialStatus, len(classIDs))
	if len(classIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT id, student_id, class_id, total_fee, paid_amount, balance, current_block,
        next_payment_due, payment_deadline
        FROM student_financial_status WHERE student_id = ? AND class_id IN (?)`, studentID, classIDs)
	if err != nil {
		return nil, fmt.Errorf("build financial status query: %w", err)
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list financial status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.StudentFinancialStatus
		if err := rows.StructScan(&status); err != nil {
			return nil, fmt.Errorf("scan financial status: %w", err)
		}
		result[status.ClassID] = status
	}
	return result, rows.Err()
}
