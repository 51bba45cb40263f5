package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

// RegistrationTx is the transaction-scoped view the enrollment orchestrator
// writes through. Every call runs on the same database transaction; the whole
// submission commits or rolls back as a unit.
type RegistrationTx interface {
	LockBatchKey(ctx context.Context, key models.BatchKey) error
	FindScheduledBatch(ctx context.Context, key models.BatchKey) (*models.ClassBatch, error)
	CreateBatch(ctx context.Context, batch *models.ClassBatch) error
	RandomActiveInstructor(ctx context.Context) (*models.Instructor, error)
	BackfillPaymentDeadline(ctx context.Context, periodID string, deadline time.Time) error
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
}

// RegistrationStore opens the registration transaction and exposes the
// repositories' write paths bound to it.
type RegistrationStore struct {
	db          *sqlx.DB
	batches     *BatchRepository
	enrollments *EnrollmentRepository
	periods     *PeriodRepository
}

// NewRegistrationStore constructs the store.
func NewRegistrationStore(db *sqlx.DB, batches *BatchRepository, enrollments *EnrollmentRepository, periods *PeriodRepository) *RegistrationStore {
	return &RegistrationStore{db: db, batches: batches, enrollments: enrollments, periods: periods}
}

// WithinTx runs fn inside one read-committed transaction, committing on nil
// and rolling back on error or panic.
func (s *RegistrationStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx RegistrationTx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
	}()

	if err := fn(ctx, &registrationTx{tx: tx, store: s}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration tx: %w", err)
	}
	return nil
}

type registrationTx struct {
	tx    *sqlx.Tx
	store *RegistrationStore
}

func (t *registrationTx) LockBatchKey(ctx context.Context, key models.BatchKey) error {
	return t.store.batches.LockKey(ctx, t.tx, key)
}

func (t *registrationTx) FindScheduledBatch(ctx context.Context, key models.BatchKey) (*models.ClassBatch, error) {
	return t.store.batches.FindScheduled(ctx, t.tx, key)
}

func (t *registrationTx) CreateBatch(ctx context.Context, batch *models.ClassBatch) error {
	return t.store.batches.Create(ctx, t.tx, batch)
}

func (t *registrationTx) RandomActiveInstructor(ctx context.Context) (*models.Instructor, error) {
	return t.store.batches.RandomActiveInstructor(ctx, t.tx)
}

func (t *registrationTx) BackfillPaymentDeadline(ctx context.Context, periodID string, deadline time.Time) error {
	return t.store.periods.SetPaymentDeadlineIfUnset(ctx, t.tx, periodID, deadline)
}

func (t *registrationTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return t.store.enrollments.Create(ctx, t.tx, enrollment)
}
