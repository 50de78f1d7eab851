package wallets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/angelmondragon/tripops-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherEdit is a full replacement of a trip voucher charged to a wallet.
// VoucherWrite persists the reconciled voucher onto the trip; it is committed
// in the same batch as the wallet debit.
type VoucherEdit struct {
	TripID            string
	TripCode          string
	Previous          *Voucher
	WalletID          string
	AdvanceBalance    decimal.Decimal
	AdditionalBalance []AdditionalBalance
	VoucherWrite      func(Voucher) docstore.Write
}

// Reconciliation is the committed outcome of a voucher edit.
type Reconciliation struct {
	Voucher      Voucher       `json:"voucher"`
	Charged      string        `json:"charged"`
	Balance      string        `json:"available_balance"`
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	Reconcile(ctx context.Context, edit VoucherEdit) (*Reconciliation, error)
	Credit(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (*Wallet, error)
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.CoordinatorMetrics
	now     func() time.Time
	newID   func() string
}

func NewService(repo Repository, logg *logger.Logger, m *metrics.CoordinatorMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		logg:    logg,
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

func (s *service) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	if strings.TrimSpace(walletID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	w, err := s.repo.FindWallet(ctx, walletID)
	if err != nil {
		return nil, docstore.AppError(err, "load wallet")
	}
	return w, nil
}

// Reconcile charges the wallet only for what the edit adds on top of the
// previous voucher. The voucher and the wallet debit commit in one batch and
// both are guarded by the versions read here, so two concurrent edits cannot
// spend the same balance.
func (s *service) Reconcile(ctx context.Context, edit VoucherEdit) (*Reconciliation, error) {
	if err := validateEdit(edit); err != nil {
		return nil, err
	}
	ctx = s.logg.WithWalletID(s.logg.WithTripID(ctx, edit.TripID), edit.WalletID)

	wallet, err := s.repo.FindWallet(ctx, edit.WalletID)
	if err != nil {
		return nil, docstore.AppError(err, "load wallet")
	}

	charge := ComputeCharge(edit.Previous, edit.AdvanceBalance, edit.AdditionalBalance, edit.TripCode)
	if charge.Total.IsPositive() && wallet.AvailableBalance.LessThan(charge.Total) {
		s.metrics.IncLedgerRejection("insufficient_balance")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "wallet balance cannot cover voucher charge").
			WithDetails(map[string]any{
				"available": wallet.AvailableBalance.StringFixed(2),
				"required":  charge.Total.StringFixed(2),
			})
	}

	now := s.now().UTC()
	voucher := buildVoucher(edit.Previous, edit.AdvanceBalance, edit.AdditionalBalance, now)
	writes := []docstore.Write{edit.VoucherWrite(voucher)}

	result := &Reconciliation{
		Voucher: voucher,
		Charged: decimal.Zero.StringFixed(2),
		Balance: wallet.AvailableBalance.StringFixed(2),
	}
	if charge.Total.IsPositive() {
		entries := make([]Transaction, 0, len(charge.Entries))
		for _, e := range charge.Entries {
			entries = append(entries, Transaction{
				ID:        s.newID(),
				Amount:    e.Amount.Neg(),
				Type:      enums.WalletTransactionDebit,
				Reason:    e.Reason,
				Timestamp: now,
			})
		}
		balance := wallet.AvailableBalance.Sub(charge.Total)
		writes = append(writes, docstore.Write{
			Collection: Collection,
			Key:        wallet.ID,
			Fields: map[string]any{
				"available_balance": balance,
				"transactions":      append(wallet.Transactions, entries...),
				"updated_at":        now,
			},
			ExpectVersion: docstore.Version(wallet.Version),
		})
		result.Charged = charge.Total.StringFixed(2)
		result.Balance = balance.StringFixed(2)
		result.Transactions = entries
	}

	if err := s.repo.Commit(ctx, writes); err != nil {
		s.metrics.IncLedgerRejection("store")
		return nil, docstore.AppError(err, "apply voucher edit")
	}
	for _, e := range charge.Entries {
		s.metrics.IncLedgerEntry(e.Kind)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"charged": result.Charged,
		"entries": len(result.Transactions),
	}), "voucher reconciled")
	return result, nil
}

// Credit tops up a wallet and records a credit entry.
func (s *service) Credit(ctx context.Context, walletID string, amount decimal.Decimal, reason string) (*Wallet, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit reason required")
	}
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	wallet.AvailableBalance = wallet.AvailableBalance.Add(amount)
	wallet.Transactions = append(wallet.Transactions, Transaction{
		ID:        s.newID(),
		Amount:    amount,
		Type:      enums.WalletTransactionCredit,
		Reason:    reason,
		Timestamp: now,
	})
	wallet.UpdatedAt = now
	err = s.repo.Commit(ctx, []docstore.Write{{
		Collection: Collection,
		Key:        wallet.ID,
		Fields: map[string]any{
			"available_balance": wallet.AvailableBalance,
			"transactions":      wallet.Transactions,
			"updated_at":        now,
		},
		ExpectVersion: docstore.Version(wallet.Version),
	}})
	if err != nil {
		return nil, docstore.AppError(err, "credit wallet")
	}
	wallet.Version++
	s.metrics.IncLedgerEntry("credit")
	return wallet, nil
}

func validateEdit(edit VoucherEdit) error {
	switch {
	case strings.TrimSpace(edit.TripID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "trip id required")
	case strings.TrimSpace(edit.WalletID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	case edit.VoucherWrite == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "voucher write required")
	case edit.AdvanceBalance.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "advance balance must not be negative")
	}
	for i, item := range edit.AdditionalBalance {
		if item.Amount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("additional balance %d must not be negative", i))
		}
	}
	return nil
}

// buildVoucher keeps the original creation time and keeps an item's
// timestamp when neither its amount nor its reason changed.
func buildVoucher(prev *Voucher, advance decimal.Decimal, additional []AdditionalBalance, now time.Time) Voucher {
	v := Voucher{
		AdvanceBalance:    advance,
		AdditionalBalance: make([]AdditionalBalance, 0, len(additional)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if prev != nil && !prev.CreatedAt.IsZero() {
		v.CreatedAt = prev.CreatedAt
	}
	for i, item := range additional {
		ts := now
		if prev != nil && i < len(prev.AdditionalBalance) {
			old := prev.AdditionalBalance[i]
			if old.Amount.Equal(item.Amount) && old.Reason == item.Reason && !old.Timestamp.IsZero() {
				ts = old.Timestamp
			}
		}
		v.AdditionalBalance = append(v.AdditionalBalance, AdditionalBalance{
			Amount:    item.Amount,
			Reason:    item.Reason,
			Timestamp: ts,
		})
	}
	return v
}
