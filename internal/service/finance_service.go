package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/export"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
)

type enrollmentDetailLister interface {
	ListActiveDetailByPeriod(ctx context.Context, studentID, periodID string) ([]models.EnrollmentDetail, error)
}

type financeStore interface {
	ActiveFeeStructure(ctx context.Context, programID string) (*models.FeeStructure, error)
	StatusExists(ctx context.Context, studentID, classID string) (bool, error)
	CreateStatus(ctx context.Context, status *models.StudentFinancialStatus) error
	ListStatusByStudentAndClasses(ctx context.Context, studentID string, classIDs []string) (map[string]models.StudentFinancialStatus, error)
}

// FinanceService seeds per-enrollment billing records after a registration
// commits and assembles billing statements. Seeding is idempotent by
// existence check, so at-least-once delivery from the queue is safe.
type FinanceService struct {
	periods     periodReader
	admissions  admissionReader
	enrollments enrollmentDetailLister
	finance     financeStore
	cfg         config.RegistrationConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewFinanceService constructs FinanceService.
func NewFinanceService(periods periodReader, admissions admissionReader, enrollments enrollmentDetailLister, finance financeStore, cfg config.RegistrationConfig, logger *zap.Logger) *FinanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NextPaymentDueDays <= 0 {
		cfg.NextPaymentDueDays = 30
	}
	return &FinanceService{periods: periods, admissions: admissions, enrollments: enrollments, finance: finance, cfg: cfg, logger: logger, now: time.Now}
}

// Seed creates one financial status row per active enrollment of the student
// and period, splitting the program's active fee structure equally across the
// enrollments of this registration. Existing rows are skipped.
func (s *FinanceService) Seed(ctx context.Context, studentID, periodID string) error {
	period, err := s.periods.FindByID(ctx, periodID)
	if err != nil {
		return fmt.Errorf("load period: %w", err)
	}

	enrollments, err := s.enrollments.ListActiveDetailByPeriod(ctx, studentID, periodID)
	if err != nil {
		return fmt.Errorf("load enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return nil
	}

	program, err := s.admissions.FindApprovedProgram(ctx, studentID, period.ProgramType)
	if err != nil {
		return fmt.Errorf("load program: %w", err)
	}

	structure, err := s.finance.ActiveFeeStructure(ctx, program.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("no active fee structure, skipping financial seed",
				zap.String("program_id", program.ID),
				zap.String("student_id", studentID))
			return nil
		}
		return fmt.Errorf("load fee structure: %w", err)
	}

	courseFee := structure.TotalAmount / float64(len(enrollments))
	nextDue := s.now().UTC().AddDate(0, 0, s.cfg.NextPaymentDueDays)

	for _, enrollment := range enrollments {
		exists, err := s.finance.StatusExists(ctx, studentID, enrollment.ClassID)
		if err != nil {
			return fmt.Errorf("check financial status: %w", err)
		}
		if exists {
			continue
		}
		status := &models.StudentFinancialStatus{
			StudentID:       studentID,
			ClassID:         enrollment.ClassID,
			TotalFee:        courseFee,
			PaidAmount:      0,
			Balance:         courseFee,
			CurrentBlock:    1,
			NextPaymentDue:  &nextDue,
			PaymentDeadline: period.PaymentDeadline,
		}
		if err := s.finance.CreateStatus(ctx, status); err != nil {
			return fmt.Errorf("seed financial status: %w", err)
		}
	}
	return nil
}

// Statement assembles the enrollment and billing rows for export.
func (s *FinanceService) Statement(ctx context.Context, studentID, periodID string) (export.Dataset, error) {
	enrollments, err := s.enrollments.ListActiveDetailByPeriod(ctx, studentID, periodID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return export.Dataset{}, appErrors.Clone(appErrors.ErrNotFound, "no enrollments for this period")
	}

	classIDs := make([]string, 0, len(enrollments))
	for _, enrollment := range enrollments {
		classIDs = append(classIDs, enrollment.ClassID)
	}
	statuses, err := s.finance.ListStatusByStudentAndClasses(ctx, studentID, classIDs)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billing records")
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Batch", "Enrolled", "Status", "Fee", "Paid", "Balance", "Next Due"},
	}
	for _, enrollment := range enrollments {
		row := map[string]string{
			"Course":   fmt.Sprintf("%s %s", enrollment.CourseCode, enrollment.CourseName),
			"Batch":    enrollment.BatchCode,
			"Enrolled": enrollment.EnrollmentDate.Format("2006-01-02"),
			"Status":   string(enrollment.Status),
		}
		if status, ok := statuses[enrollment.ClassID]; ok {
			row["Fee"] = fmt.Sprintf("%.2f", status.TotalFee)
			row["Paid"] = fmt.Sprintf("%.2f", status.PaidAmount)
			row["Balance"] = fmt.Sprintf("%.2f", status.Balance)
			if status.NextPaymentDue != nil {
				row["Next Due"] = status.NextPaymentDue.Format("2006-01-02")
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset, nil
}

// SeedPayload is the queue payload for one seeding pass.
type SeedPayload struct {
	StudentID string `json:"student_id"`
	PeriodID  string `json:"period_id"`
}

// SeedDispatcher schedules seeding passes on the background queue.
type SeedDispatcher struct {
	queue *jobs.Queue
}

// NewSeedDispatcher constructs a dispatcher over a started queue.
func NewSeedDispatcher(queue *jobs.Queue) *SeedDispatcher {
	return &SeedDispatcher{queue: queue}
}

// Schedule enqueues a seeding job for the student and period.
func (d *SeedDispatcher) Schedule(studentID, periodID string) error {
	return d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "finance_seed",
		Payload: SeedPayload{StudentID: studentID, PeriodID: periodID},
	})
}

// SeedJobHandler adapts FinanceService.Seed to the queue handler contract.
func SeedJobHandler(finance *FinanceService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(SeedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
		}
		return finance.Seed(ctx, payload.StudentID, payload.PeriodID)
	}
}
