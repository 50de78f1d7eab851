package wallets

import (
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const Collection = "wallets"

// Wallet is a managing party's cash balance together with its append-only
// transaction trail.
type Wallet struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Transactions     []Transaction   `json:"transactions"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Version int64 `json:"-"`
}

// Transaction amounts are signed: debits are negative.
type Transaction struct {
	ID        string                      `json:"id"`
	Amount    decimal.Decimal             `json:"amount"`
	Type      enums.WalletTransactionType `json:"type"`
	Reason    string                      `json:"reason"`
	Timestamp time.Time                   `json:"timestamp"`
}

// Voucher is the cash advance carried by a trip.
type Voucher struct {
	AdvanceBalance    decimal.Decimal     `json:"advance_balance"`
	AdditionalBalance []AdditionalBalance `json:"additional_balance"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type AdditionalBalance struct {
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}

// AdditionalTotal sums the additional balance items; a nil voucher totals zero.
func (v *Voucher) AdditionalTotal() decimal.Decimal {
	total := decimal.Zero
	if v == nil {
		return total
	}
	for _, item := range v.AdditionalBalance {
		total = total.Add(item.Amount)
	}
	return total
}

func (v *Voucher) advance() decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return v.AdvanceBalance
}
