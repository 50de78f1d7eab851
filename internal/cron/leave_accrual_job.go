package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tripops-backend/internal/drivers"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

type leaveAccruer interface {
	AccrueMonthly(ctx context.Context, at time.Time) (drivers.AccrualSummary, error)
}

type LeaveAccrualJobParams struct {
	Logger   *logger.Logger
	Drivers  leaveAccruer
	Location *time.Location
}

// NewLeaveAccrualJob grants monthly leaves. It runs every cycle; the per-driver
// period guard makes every run after the first in a month a no-op.
func NewLeaveAccrualJob(params LeaveAccrualJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Drivers == nil {
		return nil, fmt.Errorf("driver service required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &leaveAccrualJob{logg: params.Logger, drivers: params.Drivers, loc: loc, now: time.Now}, nil
}

type leaveAccrualJob struct {
	logg    *logger.Logger
	drivers leaveAccruer
	loc     *time.Location
	now     func() time.Time
}

func (j *leaveAccrualJob) Name() string { return "leave-accrual" }

func (j *leaveAccrualJob) Run(ctx context.Context) error {
	summary, err := j.drivers.AccrueMonthly(ctx, j.now().In(j.loc))
	if summary.Accrued > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"period":  summary.Period,
			"accrued": summary.Accrued,
		}), "monthly leaves granted")
	}
	if err != nil {
		return fmt.Errorf("leave accrual %s: %w", summary.Period, err)
	}
	return nil
}
