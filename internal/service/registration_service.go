package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type eligibilityResolver interface {
	Resolve(ctx context.Context, studentID, periodID string) (*EligibilityResult, error)
}

type courseClassifier interface {
	Classify(ctx context.Context, studentID, programID string) (*models.CourseClassification, error)
	Invalidate(ctx context.Context, studentID string) error
}

type registrationStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.RegistrationTx) error) error
}

type financeSeeder interface {
	Schedule(studentID, periodID string) error
}

// RegisterRequest is a registration submission.
type RegisterRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	PeriodID  string   `json:"period_id" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,required"`
}

// RegistrationResult reports a committed submission. SeedWarning is set when
// the post-commit financial pass could not be scheduled; the registration
// itself stands.
type RegistrationResult struct {
	Success       bool   `json:"success"`
	EnrolledCount int    `json:"enrolled_count"`
	SeedWarning   string `json:"-"`
}

// RegistrationService is the enrollment transaction orchestrator: it
// re-validates the submission against current state, resolves or creates one
// class batch per course, and writes every enrollment inside a single
// transaction. The whole submission commits or nothing does.
type RegistrationService struct {
	eligibility eligibilityResolver
	classifier  courseClassifier
	store       registrationStore
	seeder      financeSeeder
	cfg         config.RegistrationConfig
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(eligibility eligibilityResolver, classifier courseClassifier, store registrationStore, seeder financeSeeder, cfg config.RegistrationConfig, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PaymentDeadlineDays <= 0 {
		cfg.PaymentDeadlineDays = 14
	}
	return &RegistrationService{
		eligibility: eligibility,
		classifier:  classifier,
		store:       store,
		seeder:      seeder,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Register processes one submission. Eligibility and the selectable set are
// re-evaluated here regardless of what the client rendered earlier, and the
// elective quota is checked before any row is written. These checks run
// before the transaction opens; under read committed the reads would see the
// same rows inside it, so only the batch find-or-create and the enrollment
// inserts need the transaction's guarantees.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	elig, err := s.eligibility.Resolve(ctx, req.StudentID, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if elig.AlreadyRegistered {
		return nil, appErrors.Clone(appErrors.ErrAlreadyRegistered, "")
	}
	if !elig.Open {
		return nil, appErrors.Clone(appErrors.ErrIneligible, ineligibleMessage(elig.Reason))
	}
	program := elig.Program
	period := elig.Period

	classification, err := s.classifier.Classify(ctx, req.StudentID, program.ID)
	if err != nil {
		return nil, err
	}

	courses, electives, err := s.checkSelection(req.CourseIDs, classification)
	if err != nil {
		return nil, err
	}
	if classification.MaxElectives > 0 && electives > classification.MaxElectives {
		return nil, appErrors.Clone(appErrors.ErrQuotaExceeded,
			fmt.Sprintf("submitted %d electives, program allows at most %d", electives, classification.MaxElectives))
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.RegistrationTx) error {
		for _, course := range courses {
			classID, err := s.resolveBatch(ctx, tx, course, period)
			if err != nil {
				return err
			}

			enrollment := &models.Enrollment{
				StudentID:      req.StudentID,
				ClassID:        classID,
				EnrollmentDate: s.now().UTC(),
				Status:         models.EnrollmentStatusActive,
				ProgramType:    period.ProgramType,
			}
			if period.ProgramType == models.ProgramTypeOnline {
				enrollment.BlockID = &period.ID
			} else {
				enrollment.TermID = &period.ID
			}
			if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.logger.Error("registration transaction failed",
			zap.String("student_id", req.StudentID),
			zap.String("period_id", req.PeriodID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrRegistrationFailed.Code, appErrors.ErrRegistrationFailed.Status, appErrors.ErrRegistrationFailed.Message)
	}

	result := &RegistrationResult{Success: true, EnrolledCount: len(courses)}

	if err := s.classifier.Invalidate(ctx, req.StudentID); err != nil {
		s.logger.Warn("classification cache invalidation failed", zap.String("student_id", req.StudentID), zap.Error(err))
	}
	if err := s.seeder.Schedule(req.StudentID, req.PeriodID); err != nil {
		s.logger.Error("financial seeding could not be scheduled",
			zap.String("student_id", req.StudentID),
			zap.String("period_id", req.PeriodID),
			zap.Error(err))
		result.SeedWarning = "billing setup deferred, it will be retried"
	}
	return result, nil
}

// checkSelection validates the submitted ids against the live selectable set
// and returns the resolved courses in submission order plus the elective
// count. Fails fast on the first offending course.
func (s *RegistrationService) checkSelection(courseIDs []string, classification *models.CourseClassification) ([]models.SelectableCourse, int, error) {
	byID := make(map[string]models.SelectableCourse, len(classification.Core)+len(classification.Elective))
	for _, course := range classification.Core {
		byID[course.CourseID] = course
	}
	for _, course := range classification.Elective {
		byID[course.CourseID] = course
	}

	seen := make(map[string]bool, len(courseIDs))
	courses := make([]models.SelectableCourse, 0, len(courseIDs))
	electives := 0
	for _, id := range courseIDs {
		if seen[id] {
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidSelection, fmt.Sprintf("course %s submitted more than once", id))
		}
		seen[id] = true

		course, known := byID[id]
		if !known {
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidSelection, fmt.Sprintf("course %s is not available for selection", id))
		}
		if !classification.Selectable(id) {
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidSelection, fmt.Sprintf("course %s has an unmet prerequisite", id))
		}
		if course.CourseType == models.CourseTypeElective {
			electives++
		}
		courses = append(courses, course)
	}
	return courses, electives, nil
}

// resolveBatch maps (course, period) to a scheduled class batch, creating one
// when none exists. The advisory lock serializes concurrent registrants on
// the same key; a unique-index conflict on insert is retried once with a
// re-read, which must then observe the winner's row.
func (s *RegistrationService) resolveBatch(ctx context.Context, tx repository.RegistrationTx, course models.SelectableCourse, period *models.AcademicPeriod) (string, error) {
	key := models.BatchKey{
		CourseID:     course.CourseID,
		ProgramType:  period.ProgramType,
		PeriodNumber: period.PeriodNumber,
		AcademicYear: period.AcademicYear,
	}

	if err := tx.LockBatchKey(ctx, key); err != nil {
		return "", err
	}

	batch, err := tx.FindScheduledBatch(ctx, key)
	if err == nil {
		return batch.ID, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	created, err := s.createBatch(ctx, tx, course, period, key)
	if err == nil {
		return created, nil
	}
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) || appErr.Code != appErrors.ErrBatchConflict.Code {
		return "", err
	}

	// Lost the race despite the lock (e.g. a batch created outside this
	// engine). The winner's row is committed or holds the lock, so one
	// re-read settles it.
	batch, err = tx.FindScheduledBatch(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.Clone(appErrors.ErrBatchConflict, "")
		}
		return "", err
	}
	return batch.ID, nil
}

func (s *RegistrationService) createBatch(ctx context.Context, tx repository.RegistrationTx, course models.SelectableCourse, period *models.AcademicPeriod, key models.BatchKey) (string, error) {
	deadline := period.PaymentDeadline
	if deadline == nil {
		d := period.StartDate.AddDate(0, 0, s.cfg.PaymentDeadlineDays)
		if err := tx.BackfillPaymentDeadline(ctx, period.ID, d); err != nil {
			return "", err
		}
		deadline = &d
		period.PaymentDeadline = &d
	}

	var instructorID *string
	instructor, err := tx.RandomActiveInstructor(ctx)
	if err == nil {
		instructorID = &instructor.ID
	} else if err != sql.ErrNoRows {
		return "", err
	}

	locationType := "ON_CAMPUS"
	if period.ProgramType == models.ProgramTypeOnline {
		locationType = "VIRTUAL"
	}

	batch := &models.ClassBatch{
		BatchCode:       batchCode(period.ProgramType, period.PeriodNumber, course.Code),
		Name:            fmt.Sprintf("%s %s", course.Name, period.AcademicYear),
		CourseID:        key.CourseID,
		InstructorID:    instructorID,
		ProgramType:     key.ProgramType,
		PeriodNumber:    key.PeriodNumber,
		AcademicYear:    key.AcademicYear,
		StartDate:       period.StartDate,
		EndDate:         period.EndDate,
		PaymentDeadline: deadline,
		LocationType:    locationType,
		Status:          models.BatchStatusScheduled,
	}
	if err := tx.CreateBatch(ctx, batch); err != nil {
		return "", err
	}
	return batch.ID, nil
}

const batchCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// batchCode renders the display label, e.g. ONS-03-CS101-X7Q. The random
// suffix is collision-improbable, not guaranteed unique; batch identity is
// the compound key, not the code.
func batchCode(programType models.ProgramType, periodNumber int, courseCode string) string {
	prefix := "ONS"
	if programType == models.ProgramTypeOnline {
		prefix = "ONL"
	}
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = batchCodeAlphabet[rand.Intn(len(batchCodeAlphabet))]
	}
	return fmt.Sprintf("%s-%02d-%s-%s", prefix, periodNumber, courseCode, suffix)
}

func ineligibleMessage(reason string) string {
	switch reason {
	case ReasonPeriodClosed:
		return "the period is closed"
	case ReasonProgramNotApproved:
		return "no approved program application"
	case ReasonFeeUnpaid:
		return "registration fee has not been paid"
	case ReasonWindowClosed:
		return "the registration window is closed"
	default:
		return ""
	}
}
