package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// StudentRepository reads the admission-side state registration depends on:
// program applications and registration fee payments. Both tables are owned
// by other modules and are read-only here.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindApprovedProgram returns the program the student holds an APPROVED
// application for, constrained to the given program type. sql.ErrNoRows means
// no approval exists.
func (r *StudentRepository) FindApprovedProgram(ctx context.Context, studentID string, programType models.ProgramType) (*models.Program, error) {
	const query = `SELECT p.id, p.name, p.type, p.registration_fee, p.fee_structure_id
        FROM student_applications sa
        JOIN programs p ON p.id = sa.program_id
        WHERE sa.student_id = $1 AND sa.status = $2 AND p.type = $3
        LIMIT 1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, studentID, models.ApplicationStatusApproved, programType); err != nil {
		return nil, err
	}
	return &program, nil
}

// HasCompletedFeePayment reports whether a completed registration fee payment
// exists for the student and program.
func (r *StudentRepository) HasCompletedFeePayment(ctx context.Context, studentID, programID string) (bool, error) {
	const query = `SELECT 1 FROM registration_fee_payments
        WHERE student_id = $1 AND program_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, programID, models.PaymentStatusCompleted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check fee payment: %w", err)
	}
	return true, nil
}
