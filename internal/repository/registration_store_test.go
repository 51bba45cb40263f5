package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

func newStoreMock(t *testing.T) (*RegistrationStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, cleanup := newRepoMock(t)
	store := NewRegistrationStore(db, NewBatchRepository(db), NewEnrollmentRepository(db), NewPeriodRepository(db))
	return store, mock, cleanup
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	key := testBatchKey()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(lockKeyHash(key)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	termID := "per-1"
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx RegistrationTx) error {
		if err := tx.LockBatchKey(ctx, key); err != nil {
			return err
		}
		return tx.CreateEnrollment(ctx, &models.Enrollment{
			StudentID:   "stu-1",
			ClassID:     "batch-1",
			ProgramType: models.ProgramTypeOnsite,
			TermID:      &termID,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("second insert refused")
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx RegistrationTx) error {
		if err := tx.CreateEnrollment(ctx, &models.Enrollment{StudentID: "stu-1", ClassID: "batch-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithinTx(context.Background(), func(ctx context.Context, tx RegistrationTx) error {
			panic("unreachable row")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxBackfillsPaymentDeadline(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	deadline := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("payment_deadline IS NULL")).
		WithArgs("per-1", deadline).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx RegistrationTx) error {
		return tx.BackfillPaymentDeadline(ctx, "per-1", deadline)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxBeginFailure(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx RegistrationTx) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStorageUnavailable.Code, appErrors.FromError(err).Code)
}
