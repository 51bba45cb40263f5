package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// BatchRepository handles persistence of class batches. The write paths run
// against the caller's transaction: find-or-create is only correct inside the
// registration transaction, under the advisory lock taken by LockKey.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// LockKey takes a transaction-scoped advisory lock on the batch identity key.
// Two transactions resolving the same (course, period) key serialize here, so
// the existence check and the insert behave as one atomic step.
func (r *BatchRepository) LockKey(ctx context.Context, q sqlx.ExtContext, key models.BatchKey) error {
	if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKeyHash(key)); err != nil {
		return fmt.Errorf("lock batch key: %w", err)
	}
	return nil
}

// FindScheduled returns the scheduled batch matching the compound key, or
// sql.ErrNoRows when no batch exists yet.
func (r *BatchRepository) FindScheduled(ctx context.Context, q sqlx.ExtContext, key models.BatchKey) (*models.ClassBatch, error) {
	const query = `SELECT id, batch_code, name, course_id, instructor_id, program_type, period_number, academic_year,
        start_date, end_date, payment_deadline, location_type, status
        FROM class_batches
        WHERE course_id = $1 AND program_type = $2 AND period_number = $3 AND academic_year = $4 AND status = $5`
	var batch models.ClassBatch
	err := sqlx.GetContext(ctx, q, &batch, query, key.CourseID, key.ProgramType, key.PeriodNumber, key.AcademicYear, models.BatchStatusScheduled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find scheduled batch: %w", err)
	}
	return &batch, nil
}

// Create inserts a new batch row. Must run inside the caller's transaction:
// the insert is bracketed by a savepoint so a unique violation on the
// identity index aborts only the insert, not the transaction, leaving it live
// for the caller's re-read. The violation itself means a concurrent
// transaction won the race and is reported as a retryable conflict.
func (r *BatchRepository) Create(ctx context.Context, q sqlx.ExtContext, batch *models.ClassBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusScheduled
	}

	if _, err := q.ExecContext(ctx, "SAVEPOINT batch_create"); err != nil {
		return fmt.Errorf("savepoint batch create: %w", err)
	}

	const query = `INSERT INTO class_batches (id, batch_code, name, course_id, instructor_id, program_type, period_number,
        academic_year, start_date, end_date, payment_deadline, location_type, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := q.ExecContext(ctx, query,
		batch.ID, batch.BatchCode, batch.Name, batch.CourseID, batch.InstructorID, batch.ProgramType,
		batch.PeriodNumber, batch.AcademicYear, batch.StartDate, batch.EndDate, batch.PaymentDeadline,
		batch.LocationType, batch.Status,
	); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
			if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT batch_create"); rbErr != nil {
				return fmt.Errorf("rollback batch create savepoint: %w", rbErr)
			}
			return appErrors.Wrap(err, appErrors.ErrBatchConflict.Code, appErrors.ErrBatchConflict.Status, appErrors.ErrBatchConflict.Message)
		}
		return fmt.Errorf("create class batch: %w", err)
	}

	if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT batch_create"); err != nil {
		return fmt.Errorf("release batch create savepoint: %w", err)
	}
	return nil
}

// RandomActiveInstructor picks one active instructor for a newly created
// batch. Random assignment is the seed behavior; scheduling rebalances later.
func (r *BatchRepository) RandomActiveInstructor(ctx context.Context, q sqlx.ExtContext) (*models.Instructor, error) {
	const query = `SELECT id, full_name, active FROM instructors WHERE active = TRUE ORDER BY random() LIMIT 1`
	var instructor models.Instructor
	if err := sqlx.GetContext(ctx, q, &instructor, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("pick instructor: %w", err)
	}
	return &instructor, nil
}

// lockKeyHash folds the compound key into the 64-bit space advisory locks use.
func lockKeyHash(key models.BatchKey) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d|%s", key.CourseID, key.ProgramType, key.PeriodNumber, key.AcademicYear)
	return int64(h.Sum64())
}
