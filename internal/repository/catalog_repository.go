package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// CatalogRepository serves read-only program, course, and requirement
// metadata. Nothing here writes; the catalog is owned by the curriculum
// module.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListRequirements returns every course requirement of a program joined with
// course metadata, in catalog code order.
func (r *CatalogRepository) ListRequirements(ctx context.Context, programID string) ([]models.CourseRequirement, error) {
	const query = `SELECT cr.id, cr.program_id, cr.course_id, c.code AS course_code, c.name AS course_name,
        c.credits, cr.course_type, cr.min_grade, cr.prerequisite_course_id
        FROM course_requirements cr
        JOIN courses c ON c.id = cr.course_id
        WHERE cr.program_id = $1
        ORDER BY c.code`
	var requirements []models.CourseRequirement
	if err := r.db.SelectContext(ctx, &requirements, query, programID); err != nil {
		return nil, fmt.Errorf("list course requirements: %w", err)
	}
	return requirements, nil
}

// RequirementsMeta returns the program-level quota rules. Programs without a
// meta row fall back to unbounded electives.
func (r *CatalogRepository) RequirementsMeta(ctx context.Context, programID string) (*models.RequirementsMeta, error) {
	const query = `SELECT program_id, min_electives, max_electives, total_credits, min_grade_required
        FROM program_requirements_meta WHERE program_id = $1`
	var meta models.RequirementsMeta
	if err := r.db.GetContext(ctx, &meta, query, programID); err != nil {
		return nil, err
	}
	return &meta, nil
}
