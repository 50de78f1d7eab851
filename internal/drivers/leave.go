package drivers

import (
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
)

// MonthlyLeaves is both the monthly grant and the cap on each leave bucket.
const MonthlyLeaves = 4

// LeaveBalance runs on a two-month cycle: unused leaves from the first month
// carry into the second, and nothing carries out of the second.
type LeaveBalance struct {
	CurrentMonthLeaves int    `json:"current_month_leaves"`
	TransferredLeaves  int    `json:"transferred_leaves"`
	CycleMonth         int    `json:"cycle_month"`
	LastAccruedPeriod  string `json:"last_accrued_period,omitempty"`
}

// Period formats the accrual guard key for t.
func Period(t time.Time) string {
	return t.Format("2006-01")
}

// Available is the total that can still be taken.
func (b LeaveBalance) Available() int {
	return b.CurrentMonthLeaves + b.TransferredLeaves
}

// Accrue applies the month-start grant once per period. It reports false when
// the period was already accrued.
func (b *LeaveBalance) Accrue(period string) bool {
	if period != "" && b.LastAccruedPeriod == period {
		return false
	}
	cycle := b.CycleMonth
	if cycle != 2 {
		cycle = 1
	}
	if cycle == 1 && b.CurrentMonthLeaves > 0 {
		b.TransferredLeaves = clampLeaves(b.CurrentMonthLeaves)
	} else {
		b.TransferredLeaves = 0
	}
	b.CurrentMonthLeaves = MonthlyLeaves
	b.CycleMonth = 3 - cycle
	b.LastAccruedPeriod = period
	return true
}

// Deduct takes days from the current month first and the transferred bucket
// after that. The balance is unchanged on error.
func (b *LeaveBalance) Deduct(days int) (fromCurrent, fromTransferred int, err error) {
	if days <= 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "leave days must be positive")
	}
	if days > b.Available() {
		return 0, 0, pkgerrors.New(pkgerrors.CodeInsufficientLeave,
			fmt.Sprintf("requested %d days with %d available", days, b.Available())).
			WithDetails(map[string]any{"available": b.Available(), "required": days})
	}
	fromCurrent = min(days, b.CurrentMonthLeaves)
	fromTransferred = days - fromCurrent
	b.CurrentMonthLeaves -= fromCurrent
	b.TransferredLeaves -= fromTransferred
	return fromCurrent, fromTransferred, nil
}

func clampLeaves(n int) int {
	return max(0, min(n, MonthlyLeaves))
}
