package drivers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
)

type Service interface {
	GetDriver(ctx context.Context, driverID string) (*Driver, error)
	RequestLeave(ctx context.Context, input LeaveRequestInput) (*LeaveRequest, error)
	AccrueMonthly(ctx context.Context, at time.Time) (AccrualSummary, error)
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
	now     func() time.Time
}

func NewService(repo Repository, logg *logger.Logger, m *metrics.CoordinatorMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("driver repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, metrics: m, now: time.Now}, nil
}

func (s *service) GetDriver(ctx context.Context, driverID string) (*Driver, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	d, err := s.repo.FindDriver(ctx, driverID)
	if err != nil {
		return nil, docstore.AppError(err, "load driver")
	}
	return d, nil
}

// RequestLeave deducts the days and records the request in one batch guarded
// by the driver version.
func (s *service) RequestLeave(ctx context.Context, input LeaveRequestInput) (*LeaveRequest, error) {
	d, err := s.GetDriver(ctx, input.DriverID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithDriverID(ctx, d.ID)

	fromCurrent, fromTransferred, err := d.Leave.Deduct(input.Days)
	if err != nil {
		s.metrics.IncLeaveRequest("rejected")
		return nil, err
	}

	now := s.now().UTC()
	req := &LeaveRequest{
		ID:              uuid.NewString(),
		DriverID:        d.ID,
		Days:            input.Days,
		Reason:          strings.TrimSpace(input.Reason),
		FromCurrent:     fromCurrent,
		FromTransferred: fromTransferred,
		Remaining:       d.Leave.Available(),
		RequestedAt:     now,
	}
	err = s.repo.Commit(ctx, []docstore.Write{
		{
			Collection:    Collection,
			Key:           d.ID,
			Fields:        map[string]any{"leave": d.Leave, "updated_at": now},
			ExpectVersion: docstore.Version(d.Version),
		},
		{
			Collection:    LeaveRequestCollection,
			Key:           req.ID,
			Replace:       req,
			ExpectVersion: docstore.Version(0),
		},
	})
	if err != nil {
		s.metrics.IncLeaveRequest("failed")
		return nil, docstore.AppError(err, "record leave request")
	}
	s.metrics.IncLeaveRequest("granted")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"days": input.Days, "remaining": req.Remaining}), "leave granted")
	return req, nil
}

// AccrueMonthly grants the monthly leaves to every active driver for the
// month containing at. Drivers are written one at a time so one conflict
// does not hold back the rest; failures are collected and returned together.
func (s *service) AccrueMonthly(ctx context.Context, at time.Time) (AccrualSummary, error) {
	summary := AccrualSummary{Period: Period(at)}
	list, err := s.repo.ListByStatus(ctx, enums.DriverStatusActive)
	if err != nil {
		return summary, docstore.AppError(err, "list active drivers")
	}

	var errs error
	for i := range list {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		d := list[i]
		if !d.Leave.Accrue(summary.Period) {
			summary.Skipped++
			continue
		}
		err := s.repo.Commit(ctx, []docstore.Write{{
			Collection:    Collection,
			Key:           d.ID,
			Fields:        map[string]any{"leave": d.Leave, "updated_at": s.now().UTC()},
			ExpectVersion: docstore.Version(d.Version),
		}})
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("accrue driver %s: %w", d.ID, err))
			continue
		}
		summary.Accrued++
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"period":  summary.Period,
		"accrued": summary.Accrued,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}), "leave accrual finished")
	return summary, errs
}
