package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vitwit/presale/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store := New(db, nil)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func purchase(ref string, status types.PurchaseStatus) *types.PurchaseRecord {
	return &types.PurchaseRecord{
		Reference:        ref,
		UserID:           "user-1",
		Network:          types.NetworkBase,
		Currency:         types.CurrencyStable,
		TokenAmount:      decimal.NewFromInt(1000),
		PricePerTokenUSD: decimal.NewFromFloat(0.014),
		Status:           status,
	}
}

func TestUpsertCreatesOnce(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchasePending)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchasePending)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	if err := store.db.Model(&types.PurchaseRecord{}).Where("reference = ?", "0xabc").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("purchase rows = %d, want 1", count)
	}
}

func TestUpsertTerminalIsNoOp(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchasePending)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchaseCompleted)); err != nil {
		t.Fatalf("complete upsert: %v", err)
	}

	// A later FAILED write must not overwrite the terminal status.
	rec, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchaseFailed))
	if err != nil {
		t.Fatalf("failed upsert: %v", err)
	}
	if rec.Status != types.PurchaseCompleted {
		t.Fatalf("status = %s, want COMPLETED", rec.Status)
	}
}

func TestMarkPurchaseExactlyOnce(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.UpsertPurchase(ctx, purchase("0xabc", types.PurchasePending)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	won, err := store.MarkPurchase(ctx, "0xabc", types.PurchaseCompleted)
	if err != nil || !won {
		t.Fatalf("first mark = %v, %v; want true, nil", won, err)
	}
	won, err = store.MarkPurchase(ctx, "0xabc", types.PurchaseCompleted)
	if err != nil || won {
		t.Fatalf("second mark = %v, %v; want false, nil", won, err)
	}

	if _, err := store.MarkPurchase(ctx, "0xabc", types.PurchasePending); err == nil {
		t.Fatal("marking a purchase non-terminal must fail")
	}
}

func TestLeaseReferralPayment(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	p := &types.ReferralPayment{
		ReferrerID:        "ref-1",
		PurchaseReference: "0xabc",
		Amount:            decimal.NewFromFloat(0.1575),
		PlatformAmount:    decimal.NewFromFloat(0.0175),
		AmountUSD:         decimal.NewFromFloat(1.4),
		Status:            types.PaymentPending,
	}
	if err := store.CreateReferralPayment(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	leased, err := store.LeaseReferralPayment(ctx, p.ID)
	if err != nil || !leased {
		t.Fatalf("first lease = %v, %v; want true, nil", leased, err)
	}
	leased, err = store.LeaseReferralPayment(ctx, p.ID)
	if err != nil || leased {
		t.Fatalf("second lease = %v, %v; want false, nil", leased, err)
	}

	if err := store.CompleteReferralPayment(ctx, p.ID, "sig-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.FindReferralPaymentByPurchase(ctx, "0xabc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != types.PaymentCompleted || got.TransactionSignature != "sig-1" {
		t.Fatalf("payment = %+v", got)
	}
}

func TestCompleteRequiresLease(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	p := &types.ReferralPayment{ReferrerID: "ref-1", Status: types.PaymentPending}
	if err := store.CreateReferralPayment(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CompleteReferralPayment(ctx, p.ID, "sig-1"); err == nil {
		t.Fatal("completing an unleased payment must fail")
	}
}

func TestPendingReferralPaymentsFilters(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, p := range []*types.ReferralPayment{
		{ReferrerID: "ref-1", Amount: decimal.NewFromInt(5), Status: types.PaymentPending},
		{ReferrerID: "ref-1", Amount: decimal.NewFromInt(7), Status: types.PaymentPending},
		{ReferrerID: "ref-1", Amount: decimal.NewFromInt(3), Status: types.PaymentCompleted},
		{ReferrerID: "ref-2", Amount: decimal.NewFromInt(9), Status: types.PaymentPending},
	} {
		if err := store.CreateReferralPayment(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	pending, err := store.PendingReferralPayments(ctx, "ref-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(pending))
	}
	if !pending[0].Amount.Equal(decimal.NewFromInt(5)) || !pending[1].Amount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("pending order wrong: %s, %s", pending[0].Amount, pending[1].Amount)
	}
}
