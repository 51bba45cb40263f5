package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// HeldCourses returns course id -> enrollment status for every ACTIVE or
// COMPLETED enrollment the student holds, across all periods. COMPLETED
// entries double as the prerequisite-satisfaction set.
func (r *EnrollmentRepository) HeldCourses(ctx context.Context, studentID string) (map[string]models.EnrollmentStatus, error) {
	const query = `SELECT cb.course_id, e.status
        FROM enrollments e
        JOIN class_batches cb ON cb.id = e.class_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3)`
	rows, err := r.db.QueryxContext(ctx, query, studentID, models.EnrollmentStatusActive, models.EnrollmentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load held courses: %w", err)
	}
	defer rows.Close()

	held := make(map[string]models.EnrollmentStatus)
	for rows.Next() {
		var courseID string
		var status models.EnrollmentStatus
		if err := rows.Scan(&courseID, &status); err != nil {
			return nil, fmt.Errorf("scan held course: %w", err)
		}
		// COMPLETED wins over ACTIVE when a course was retaken.
		if held[courseID] != models.EnrollmentStatusCompleted {
			held[courseID] = status
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate held courses: %w", err)
	}
	return held, nil
}

// HasActiveForPeriod reports whether the student already has an active
// enrollment tied to the period's term or block.
func (r *EnrollmentRepository) HasActiveForPeriod(ctx context.Context, studentID, periodID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments
        WHERE student_id = $1 AND status = $2 AND (term_id = $3 OR block_id = $3) LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, models.EnrollmentStatusActive, periodID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check period registration: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment row inside the caller's transaction.
func (r *EnrollmentRepository) Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, enrollment_date, status, program_type, term_id, block_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := q.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.EnrollmentDate,
		enrollment.Status, enrollment.ProgramType, enrollment.TermID, enrollment.BlockID,
	); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ListActiveDetailByPeriod returns the student's active enrollments for a
// period, joined with batch and course info. Consumed by the financial
// seeder and the statement export.
func (r *EnrollmentRepository) ListActiveDetailByPeriod(ctx context.Context, studentID, periodID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.enrollment_date, e.status, e.program_type, e.term_id, e.block_id,
        cb.batch_code, cb.name AS batch_name, cb.course_id, c.code AS course_code, c.name AS course_name
        FROM enrollments e
        JOIN class_batches cb ON cb.id = e.class_id
        JOIN courses c ON c.id = cb.course_id
        WHERE e.student_id = $1 AND e.status = $2 AND (e.term_id = $3 OR e.block_id = $3)
        ORDER BY e.enrollment_date, c.code`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID, models.EnrollmentStatusActive, periodID); err != nil {
		return nil, fmt.Errorf("list period enrollments: %w", err)
	}
	return details, nil
}
