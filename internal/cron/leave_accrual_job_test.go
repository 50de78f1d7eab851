package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/tripops-backend/internal/drivers"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
)

type fakeAccruer struct {
	at  time.Time
	err error
}

func (f *fakeAccruer) AccrueMonthly(_ context.Context, at time.Time) (drivers.AccrualSummary, error) {
	f.at = at
	return drivers.AccrualSummary{Period: drivers.Period(at), Accrued: 1}, f.err
}

func TestLeaveAccrualJobUsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("IST", 5*3600+1800)
	accruer := &fakeAccruer{}
	jobIface, err := NewLeaveAccrualJob(LeaveAccrualJobParams{Logger: logger.Nop(), Drivers: accruer, Location: zone})
	if err != nil {
		t.Fatalf("NewLeaveAccrualJob: %v", err)
	}
	job := jobIface.(*leaveAccrualJob)
	// 20:00 UTC on Oct 31 is already November in IST.
	job.now = func() time.Time { return time.Date(2026, 10, 31, 20, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := drivers.Period(accruer.at); got != "2026-11" {
		t.Fatalf("expected period 2026-11, got %s", got)
	}
}

func TestLeaveAccrualJobReturnsErrors(t *testing.T) {
	jobIface, err := NewLeaveAccrualJob(LeaveAccrualJobParams{
		Logger:  logger.Nop(),
		Drivers: &fakeAccruer{err: errors.New("accrue driver d1: conflict")},
	})
	if err != nil {
		t.Fatalf("NewLeaveAccrualJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
