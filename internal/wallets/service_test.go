package wallets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/tripops-backend/pkg/docstore"
	"github.com/angelmondragon/tripops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tripops-backend/pkg/errors"
	"github.com/angelmondragon/tripops-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tripCollection = "trips"

var fixedNow = time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store *docstore.MemoryStore
	svc   *service
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	require.NoError(t, store.BatchWrite(context.Background(), []docstore.Write{
		{Collection: Collection, Key: "w1", Replace: Wallet{ID: "w1", OwnerID: "mgr-1", AvailableBalance: dec(balance)}},
		{Collection: tripCollection, Key: "t1", Replace: map[string]any{"id": "t1", "code": "TR-001"}},
	}))
	svc, err := NewService(NewRepository(store), logger.Nop(), nil)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return fixedNow }
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("tx-%d", n) }
	return &fixture{store: store, svc: s}
}

func (f *fixture) voucherWrite(t *testing.T) func(Voucher) docstore.Write {
	doc, err := f.store.Get(context.Background(), tripCollection, "t1")
	require.NoError(t, err)
	version := doc.Version
	return func(v Voucher) docstore.Write {
		return docstore.Write{
			Collection:    tripCollection,
			Key:           "t1",
			Fields:        map[string]any{"voucher": v},
			ExpectVersion: docstore.Version(version),
		}
	}
}

func (f *fixture) storedVoucher(t *testing.T) *Voucher {
	doc, err := f.store.Get(context.Background(), tripCollection, "t1")
	require.NoError(t, err)
	var trip struct {
		Voucher *Voucher `json:"voucher"`
	}
	require.NoError(t, doc.Decode(&trip))
	return trip.Voucher
}

func (f *fixture) edit(t *testing.T, advance string, additional ...AdditionalBalance) (*Reconciliation, error) {
	return f.svc.Reconcile(context.Background(), VoucherEdit{
		TripID:            "t1",
		TripCode:          "TR-001",
		Previous:          f.storedVoucher(t),
		WalletID:          "w1",
		AdvanceBalance:    dec(advance),
		AdditionalBalance: additional,
		VoucherWrite:      f.voucherWrite(t),
	})
}

func item(amount, reason string) AdditionalBalance {
	return AdditionalBalance{Amount: dec(amount), Reason: reason}
}

func TestComputeChargeAdvanceOnlyChargesIncrease(t *testing.T) {
	prev := &Voucher{AdvanceBalance: dec("100")}

	up := ComputeCharge(prev, dec("150"), nil, "TR-1")
	assert.True(t, up.Total.Equal(dec("50")))
	require.Len(t, up.Entries, 1)
	assert.Equal(t, "Advance balance for trip TR-1", up.Entries[0].Reason)

	down := ComputeCharge(&Voucher{AdvanceBalance: dec("150")}, dec("80"), nil, "TR-1")
	assert.True(t, down.AdvanceDelta.IsZero())
	assert.True(t, down.Total.IsZero())
	assert.Empty(t, down.Entries)
}

func TestComputeChargeAdditionalItems(t *testing.T) {
	prev := &Voucher{AdditionalBalance: []AdditionalBalance{item("20", "fuel"), item("30", "toll")}}
	next := []AdditionalBalance{item("25", "fuel"), item("30", "toll"), item("10", "food")}

	c := ComputeCharge(prev, decimal.Zero, next, "TR-9")
	assert.True(t, c.Total.Equal(dec("15")))
	require.Len(t, c.Entries, 2)
	assert.True(t, c.Entries[0].Amount.Equal(dec("5")))
	assert.Equal(t, "Additional balance for trip TR-9: fuel", c.Entries[0].Reason)
	assert.True(t, c.Entries[1].Amount.Equal(dec("10")))
	assert.Equal(t, "Additional balance for trip TR-9: food", c.Entries[1].Reason)
}

func TestComputeChargeAdditionalNetIsNotClamped(t *testing.T) {
	prev := &Voucher{
		AdvanceBalance:    dec("100"),
		AdditionalBalance: []AdditionalBalance{item("50", "fuel")},
	}
	c := ComputeCharge(prev, dec("120"), []AdditionalBalance{item("10", "fuel")}, "TR-1")
	assert.True(t, c.AdditionalNet.Equal(dec("-40")))
	assert.True(t, c.Total.Equal(dec("-20")))
	assert.Empty(t, c.Entries)
}

func TestComputeChargeMovingMoneyBetweenItems(t *testing.T) {
	prev := &Voucher{AdditionalBalance: []AdditionalBalance{item("20", "a"), item("30", "b")}}
	c := ComputeCharge(prev, decimal.Zero, []AdditionalBalance{item("30", "a"), item("20", "b")}, "TR-1")
	assert.True(t, c.Total.IsZero())
	assert.Empty(t, c.Entries)
}

func TestReconcileChargesDeltaOnly(t *testing.T) {
	f := newFixture(t, "1000")

	res, err := f.edit(t, "100")
	require.NoError(t, err)
	assert.Equal(t, "100.00", res.Charged)

	res, err = f.edit(t, "150")
	require.NoError(t, err)
	assert.Equal(t, "50.00", res.Charged)
	assert.Equal(t, "850.00", res.Balance)
	require.Len(t, res.Transactions, 1)
	assert.True(t, res.Transactions[0].Amount.Equal(dec("-50")))
	assert.Equal(t, enums.WalletTransactionDebit, res.Transactions[0].Type)

	res, err = f.edit(t, "80")
	require.NoError(t, err)
	assert.Equal(t, "0.00", res.Charged)
	assert.Empty(t, res.Transactions)

	w, err := f.svc.GetWallet(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(dec("850")))
	assert.Len(t, w.Transactions, 2)
	assert.True(t, f.storedVoucher(t).AdvanceBalance.Equal(dec("80")))
}

func TestReconcileAdditionalEntries(t *testing.T) {
	f := newFixture(t, "500")
	_, err := f.edit(t, "0", item("20", "fuel"), item("30", "toll"))
	require.NoError(t, err)

	res, err := f.edit(t, "0", item("25", "fuel"), item("30", "toll"), item("10", "food"))
	require.NoError(t, err)
	assert.Equal(t, "15.00", res.Charged)
	require.Len(t, res.Transactions, 2)
	assert.Contains(t, res.Transactions[0].Reason, "fuel")
	assert.Contains(t, res.Transactions[1].Reason, "food")
}

func TestReconcileInsufficientBalanceMutatesNothing(t *testing.T) {
	f := newFixture(t, "40")
	batches := f.store.Batches()

	_, err := f.edit(t, "50")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "40.00", details["available"])
	assert.Equal(t, "50.00", details["required"])

	assert.Equal(t, batches, f.store.Batches())
	assert.Nil(t, f.storedVoucher(t))
}

func TestReconcileBatchFailureIsAtomic(t *testing.T) {
	f := newFixture(t, "100")
	f.store.FailBatches(func([]docstore.Write) error { return errors.New("store offline") })

	_, err := f.edit(t, "30")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))

	f.store.FailBatches(nil)
	w, err := f.svc.GetWallet(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(dec("100")))
	assert.Nil(t, f.storedVoucher(t))
}

func TestReconcileRejectsConcurrentWalletChange(t *testing.T) {
	f := newFixture(t, "100")
	write := f.voucherWrite(t)
	prev := f.storedVoucher(t)

	// The wallet moves after the trip snapshot was taken.
	_, err := f.svc.Credit(context.Background(), "w1", dec("5"), "top up")
	require.NoError(t, err)

	res, err := f.svc.Reconcile(context.Background(), VoucherEdit{
		TripID: "t1", TripCode: "TR-001", Previous: prev, WalletID: "w1",
		AdvanceBalance: dec("10"), VoucherWrite: write,
	})
	require.NoError(t, err, "wallet is re-read inside Reconcile")
	assert.Equal(t, "95.00", res.Balance)

	// A stale trip version is rejected.
	_, err = f.svc.Reconcile(context.Background(), VoucherEdit{
		TripID: "t1", TripCode: "TR-001", Previous: prev, WalletID: "w1",
		AdvanceBalance: dec("20"), VoucherWrite: write,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict))
}

func TestReconcilePreservesTimestamps(t *testing.T) {
	f := newFixture(t, "500")
	_, err := f.edit(t, "10", item("20", "fuel"))
	require.NoError(t, err)
	first := f.storedVoucher(t)

	later := fixedNow.Add(48 * time.Hour)
	f.svc.now = func() time.Time { return later }
	_, err = f.edit(t, "10", item("20", "fuel"), item("5", "food"))
	require.NoError(t, err)

	v := f.storedVoucher(t)
	assert.True(t, v.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, v.UpdatedAt.Equal(later))
	assert.True(t, v.AdditionalBalance[0].Timestamp.Equal(fixedNow))
	assert.True(t, v.AdditionalBalance[1].Timestamp.Equal(later))
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture(t, "100")
	_, err := f.edit(t, "-1")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.edit(t, "0", item("-5", "fuel"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Reconcile(context.Background(), VoucherEdit{
		TripID: "t1", WalletID: "missing", VoucherWrite: f.voucherWrite(t),
		AdvanceBalance: dec("1"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestCredit(t *testing.T) {
	f := newFixture(t, "10")
	w, err := f.svc.Credit(context.Background(), "w1", dec("15.50"), "monthly float")
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(dec("25.50")))
	require.Len(t, w.Transactions, 1)
	assert.Equal(t, enums.WalletTransactionCredit, w.Transactions[0].Type)

	_, err = f.svc.Credit(context.Background(), "w1", decimal.Zero, "nothing")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
