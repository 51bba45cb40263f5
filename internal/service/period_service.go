package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type periodLister interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, int, error)
}

// PeriodView decorates a period with its derived status.
type PeriodView struct {
	models.AcademicPeriod
	Status           models.PeriodStatus `json:"status"`
	RegistrationOpen bool                `json:"registration_open"`
}

// PeriodService backs the period browser.
type PeriodService struct {
	repo   periodLister
	logger *zap.Logger
	now    func() time.Time
}

// NewPeriodService constructs PeriodService.
func NewPeriodService(repo periodLister, logger *zap.Logger) *PeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, logger: logger, now: time.Now}
}

// List returns periods with pagination metadata and derived statuses.
func (s *PeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]PeriodView, *models.Pagination, error) {
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}

	today := s.now()
	views := make([]PeriodView, 0, len(periods))
	for _, period := range periods {
		views = append(views, PeriodView{
			AcademicPeriod:   period,
			Status:           period.Status(today),
			RegistrationOpen: period.RegistrationOpen(today),
		})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
