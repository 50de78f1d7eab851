package wallets

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Charge is the incremental amount a voucher edit costs the wallet.
type Charge struct {
	AdvanceDelta  decimal.Decimal
	AdditionalNet decimal.Decimal
	Total         decimal.Decimal
	Entries       []ChargeEntry
}

// ChargeEntry is one debit line explaining part of a charge.
type ChargeEntry struct {
	Kind   string
	Amount decimal.Decimal
	Reason string
}

const (
	EntryKindAdvance    = "advance"
	EntryKindAdditional = "additional"
)

// ComputeCharge prices a voucher edit against the previous snapshot. The
// advance delta is floored at zero while the additional balance contributes
// its net change across the whole set, which may be negative. Entries are
// only produced when the total is positive.
func ComputeCharge(prev *Voucher, advance decimal.Decimal, additional []AdditionalBalance, tripCode string) Charge {
	c := Charge{
		AdvanceDelta: decimal.Max(decimal.Zero, advance.Sub(prev.advance())),
	}
	next := decimal.Zero
	for _, item := range additional {
		next = next.Add(item.Amount)
	}
	c.AdditionalNet = next.Sub(prev.AdditionalTotal())
	c.Total = c.AdvanceDelta.Add(c.AdditionalNet)
	if !c.Total.IsPositive() {
		return c
	}

	if c.AdvanceDelta.IsPositive() {
		c.Entries = append(c.Entries, ChargeEntry{
			Kind:   EntryKindAdvance,
			Amount: c.AdvanceDelta,
			Reason: fmt.Sprintf("Advance balance for trip %s", tripCode),
		})
	}
	for i, item := range additional {
		before := decimal.Zero
		if prev != nil && i < len(prev.AdditionalBalance) {
			before = prev.AdditionalBalance[i].Amount
		}
		if item.Amount.GreaterThan(before) {
			c.Entries = append(c.Entries, ChargeEntry{
				Kind:   EntryKindAdditional,
				Amount: item.Amount.Sub(before),
				Reason: fmt.Sprintf("Additional balance for trip %s: %s", tripCode, item.Reason),
			})
		}
	}
	return c
}
