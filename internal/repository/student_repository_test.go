package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

func TestFindApprovedProgram(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "type", "registration_fee", "fee_structure_id"}).
		AddRow("prog-1", "Computer Science", "ONSITE", 150.0, nil)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN programs p ON p.id = sa.program_id")).
		WithArgs("stu-1", models.ApplicationStatusApproved, models.ProgramTypeOnsite).
		WillReturnRows(rows)

	program, err := repo.FindApprovedProgram(context.Background(), "stu-1", models.ProgramTypeOnsite)
	require.NoError(t, err)
	assert.Equal(t, "prog-1", program.ID)
	assert.Equal(t, 150.0, program.RegistrationFee)
}

func TestFindApprovedProgramNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN programs")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindApprovedProgram(context.Background(), "stu-1", models.ProgramTypeOnline)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestHasCompletedFeePayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM registration_fee_payments")).
		WithArgs("stu-1", "prog-1", models.PaymentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	paid, err := repo.HasCompletedFeePayment(context.Background(), "stu-1", "prog-1")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestHasCompletedFeePaymentNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM registration_fee_payments")).
		WillReturnError(sql.ErrNoRows)

	paid, err := repo.HasCompletedFeePayment(context.Background(), "stu-1", "prog-1")
	require.NoError(t, err)
	assert.False(t, paid)
}
