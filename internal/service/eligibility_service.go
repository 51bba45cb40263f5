package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type periodReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error)
}

type admissionReader interface {
	FindApprovedProgram(ctx context.Context, studentID string, programType models.ProgramType) (*models.Program, error)
	HasCompletedFeePayment(ctx context.Context, studentID, programID string) (bool, error)
}

type enrollmentReader interface {
	HeldCourses(ctx context.Context, studentID string) (map[string]models.EnrollmentStatus, error)
	HasActiveForPeriod(ctx context.Context, studentID, periodID string) (bool, error)
}

// Eligibility reason codes, reported in check order.
const (
	ReasonEligible           = "ELIGIBLE"
	ReasonPeriodClosed       = "PERIOD_CLOSED"
	ReasonProgramNotApproved = "PROGRAM_NOT_APPROVED"
	ReasonFeeUnpaid          = "FEE_UNPAID"
	ReasonWindowClosed       = "WINDOW_CLOSED"
	ReasonAlreadyRegistered  = "ALREADY_REGISTERED"
)

// EligibilityResult reports whether a student may register for a period.
type EligibilityResult struct {
	Open              bool   `json:"open"`
	Reason            string `json:"reason"`
	AlreadyRegistered bool   `json:"already_registered"`

	// Resolved context for downstream callers, not serialized.
	Program *models.Program        `json:"-"`
	Period  *models.AcademicPeriod `json:"-"`
}

// EligibilityService gates registration attempts. All checks are read-only
// and short-circuit on the first failure; a closed gate is a reason code, not
// an error.
type EligibilityService struct {
	periods     periodReader
	admissions  admissionReader
	enrollments enrollmentReader
	logger      *zap.Logger
	now         func() time.Time
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(periods periodReader, admissions admissionReader, enrollments enrollmentReader, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{periods: periods, admissions: admissions, enrollments: enrollments, logger: logger, now: time.Now}
}

// Resolve runs the precondition chain: period open for business, approved
// application, registration fee settled, window contains today, no existing
// registration for the period.
func (s *EligibilityService) Resolve(ctx context.Context, studentID, periodID string) (*EligibilityResult, error) {
	period, err := s.periods.FindByID(ctx, periodID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}

	today := s.now()
	result := &EligibilityResult{Period: period}

	if period.Status(today) == models.PeriodStatusClosed {
		result.Reason = ReasonPeriodClosed
		return result, nil
	}

	program, err := s.admissions.FindApprovedProgram(ctx, studentID, period.ProgramType)
	if err != nil {
		if err == sql.ErrNoRows {
			result.Reason = ReasonProgramNotApproved
			return result, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	result.Program = program

	if program.RegistrationFee > 0 {
		paid, err := s.admissions.HasCompletedFeePayment(ctx, studentID, program.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check fee payment")
		}
		if !paid {
			result.Reason = ReasonFeeUnpaid
			return result, nil
		}
	}

	if !period.RegistrationOpen(today) {
		result.Reason = ReasonWindowClosed
		return result, nil
	}

	registered, err := s.enrollments.HasActiveForPeriod(ctx, studentID, periodID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if registered {
		result.Reason = ReasonAlreadyRegistered
		result.AlreadyRegistered = true
		return result, nil
	}

	result.Open = true
	result.Reason = ReasonEligible
	return result, nil
}
