package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type catalogReader interface {
	ListRequirements(ctx context.Context, programID string) ([]models.CourseRequirement, error)
	RequirementsMeta(ctx context.Context, programID string) (*models.RequirementsMeta, error)
}

type classificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RequirementService partitions a program's courses for one student into
// selectable and blocked, core and elective. Classify reads the live
// snapshot; the cached variant only feeds the browse endpoint and is never
// consulted by the registration transaction, because concurrent completions
// can change the answer between page render and submission.
type RequirementService struct {
	catalog     catalogReader
	enrollments enrollmentReader
	cache       classificationCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewRequirementService constructs RequirementService. cache may be nil.
func NewRequirementService(catalog catalogReader, enrollments enrollmentReader, cache classificationCache, cacheTTL time.Duration, logger *zap.Logger) *RequirementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequirementService{catalog: catalog, enrollments: enrollments, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Classify evaluates every course requirement of the program against the
// student's enrollment history. Courses already held (active or completed,
// any period) are dropped; courses with an unmet prerequisite stay in the
// partition for display but are excluded from the selectable set.
func (s *RequirementService) Classify(ctx context.Context, studentID, programID string) (*models.CourseClassification, error) {
	requirements, err := s.catalog.ListRequirements(ctx, programID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course requirements")
	}

	meta, err := s.catalog.RequirementsMeta(ctx, programID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirement quotas")
		}
		meta = &models.RequirementsMeta{ProgramID: programID}
	}

	held, err := s.enrollments.HeldCourses(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}

	classification := &models.CourseClassification{
		SelectableIDs: make(map[string]bool),
		MaxElectives:  meta.MaxElectives,
		MinElectives:  meta.MinElectives,
	}

	for _, req := range requirements {
		if _, taken := held[req.CourseID]; taken {
			continue
		}

		course := models.SelectableCourse{
			CourseID:   req.CourseID,
			Code:       req.CourseCode,
			Name:       req.CourseName,
			Credits:    req.Credits,
			CourseType: req.CourseType,
			PrereqMet:  true,
		}
		if req.PrerequisiteCourseID != nil {
			course.PrereqMet = held[*req.PrerequisiteCourseID] == models.EnrollmentStatusCompleted
		}
		if course.PrereqMet {
			classification.SelectableIDs[req.CourseID] = true
		}

		switch req.CourseType {
		case models.CourseTypeElective:
			classification.Elective = append(classification.Elective, course)
		default:
			classification.Core = append(classification.Core, course)
		}
	}

	return classification, nil
}

// ClassifyCached serves the browse endpoint through the redis cache.
func (s *RequirementService) ClassifyCached(ctx context.Context, studentID, programID string) (*models.CourseClassification, error) {
	key := classificationCacheKey(studentID, programID)
	if s.cache != nil {
		var cached models.CourseClassification
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("classification cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	classification, err := s.Classify(ctx, studentID, programID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, classification, s.cacheTTL); err != nil {
			s.logger.Warn("classification cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return classification, nil
}

// Invalidate drops every cached classification for the student. Called after
// a successful registration changes the held-course set.
func (s *RequirementService) Invalidate(ctx context.Context, studentID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, fmt.Sprintf("regcourses:%s:*", studentID))
}

func classificationCacheKey(studentID, programID string) string {
	return fmt.Sprintf("regcourses:%s:%s", studentID, programID)
}
