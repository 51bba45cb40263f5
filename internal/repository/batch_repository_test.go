package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func testBatchKey() models.BatchKey {
	return models.BatchKey{
		CourseID:     "c-intro",
		ProgramType:  models.ProgramTypeOnsite,
		PeriodNumber: 1,
		AcademicYear: "2025/2026",
	}
}

func TestBatchLockKeyIsDeterministic(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	key := testBatchKey()
	hash := lockKeyHash(key)
	assert.Equal(t, hash, lockKeyHash(testBatchKey()))
	assert.NotEqual(t, hash, lockKeyHash(models.BatchKey{
		CourseID:     "c-intro",
		ProgramType:  models.ProgramTypeOnline,
		PeriodNumber: 1,
		AcademicYear: "2025/2026",
	}))

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockKey(context.Background(), db, key))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchFindScheduled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)
	key := testBatchKey()

	rows := sqlmock.NewRows([]string{
		"id", "batch_code", "name", "course_id", "instructor_id", "program_type", "period_number",
		"academic_year", "start_date", "end_date", "payment_deadline", "location_type", "status",
	}).AddRow("batch-1", "ONS-01-CS101-ABC", "Intro 2025/2026", "c-intro", nil, "ONSITE", 1,
		"2025/2026", time.Now(), time.Now(), nil, "ON_CAMPUS", "SCHEDULED")

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_batches")).
		WithArgs(key.CourseID, key.ProgramType, key.PeriodNumber, key.AcademicYear, models.BatchStatusScheduled).
		WillReturnRows(rows)

	batch, err := repo.FindScheduled(context.Background(), db, key)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch.ID)
	assert.Equal(t, models.BatchStatusScheduled, batch.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchFindScheduledNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_batches")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindScheduled(context.Background(), db, testBatchKey())
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestBatchCreateAssignsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_batches")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	batch := &models.ClassBatch{
		BatchCode:    "ONS-01-CS101-ABC",
		Name:         "Intro 2025/2026",
		CourseID:     "c-intro",
		ProgramType:  models.ProgramTypeOnsite,
		PeriodNumber: 1,
		AcademicYear: "2025/2026",
	}
	require.NoError(t, repo.Create(context.Background(), db, batch))
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, models.BatchStatusScheduled, batch.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchCreateUniqueViolationIsConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_batches")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_class_batches_identity"})
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), db, &models.ClassBatch{CourseID: "c-intro"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrBatchConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A losing insert must leave the enclosing transaction usable so the winning
// batch can still be read back before commit.
func TestBatchCreateConflictKeepsTransactionUsable(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)
	key := testBatchKey()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_batches")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_class_batches_identity"})
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT batch_create")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_batches")).
		WithArgs(key.CourseID, key.ProgramType, key.PeriodNumber, key.AcademicYear, models.BatchStatusScheduled).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "batch_code", "name", "course_id", "instructor_id", "program_type", "period_number",
			"academic_year", "start_date", "end_date", "payment_deadline", "location_type", "status",
		}).AddRow("batch-winner", "ONS-01-CS101-XYZ", "Intro 2025/2026", "c-intro", nil, "ONSITE", 1,
			"2025/2026", time.Now(), time.Now(), nil, "ON_CAMPUS", "SCHEDULED"))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, &models.ClassBatch{
		CourseID:     key.CourseID,
		ProgramType:  key.ProgramType,
		PeriodNumber: key.PeriodNumber,
		AcademicYear: key.AcademicYear,
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrBatchConflict.Code, appErr.Code)

	winner, err := repo.FindScheduled(context.Background(), tx, key)
	require.NoError(t, err)
	assert.Equal(t, "batch-winner", winner.ID)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRandomActiveInstructor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM instructors WHERE active = TRUE ORDER BY random() LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active"}).AddRow("inst-1", "Dr. Vega", true))

	instructor, err := repo.RandomActiveInstructor(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "inst-1", instructor.ID)
}

func TestBatchRandomActiveInstructorEmptyRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM instructors")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.RandomActiveInstructor(context.Background(), db)
	assert.Equal(t, sql.ErrNoRows, err)
}
