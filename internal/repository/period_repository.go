package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// PeriodRepository handles academic period reads plus the one lazy write the
// engine owns: backfilling the payment deadline on first batch creation.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

const periodColumns = `id, period_number, academic_year, program_type, start_date, end_date,
        registration_start_date, registration_deadline, edit_deadline, payment_deadline`

// FindByID returns a period by its ID.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_periods WHERE id = $1`, periodColumns)
	var period models.AcademicPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// List returns periods filtered by program type and academic year.
func (r *PeriodRepository) List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, int, error) {
	var conditions []string
	var args []interface{}

	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM academic_periods%s ORDER BY start_date DESC LIMIT %d OFFSET %d`,
		periodColumns, clause, size, offset)

	var periods []models.AcademicPeriod
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list periods: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM academic_periods" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count periods: %w", err)
	}
	return periods, total, nil
}

// SetPaymentDeadlineIfUnset backfills the period's payment deadline inside
// the caller's transaction. A no-op when the deadline is already populated,
// so concurrent registrants cannot move it.
func (r *PeriodRepository) SetPaymentDeadlineIfUnset(ctx context.Context, q sqlx.ExtContext, periodID string, deadline time.Time) error {
	const query = `UPDATE academic_periods SET payment_deadline = $2 WHERE id = $1 AND payment_deadline IS NULL`
	if _, err := q.ExecContext(ctx, query, periodID, deadline); err != nil {
		return fmt.Errorf("backfill payment deadline: %w", err)
	}
	return nil
}
