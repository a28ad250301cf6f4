package verification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vitwit/presale/types"
)

// memLedger mirrors the real store's write discipline in memory.
type memLedger struct {
	mu      sync.Mutex
	records map[string]*types.PurchaseRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]*types.PurchaseRecord)}
}

func (m *memLedger) UpsertPurchase(ctx context.Context, rec *types.PurchaseRecord) (*types.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[rec.Reference]
	if !ok {
		cp := *rec
		m.records[rec.Reference] = &cp
		return &cp, nil
	}
	if existing.Status.Terminal() || !rec.Status.Terminal() {
		return existing, nil
	}
	existing.Status = rec.Status
	return existing, nil
}

func (m *memLedger) MarkPurchase(ctx context.Context, reference string, status types.PurchaseStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok || rec.Status != types.PurchasePending {
		return false, nil
	}
	rec.Status = status
	return true, nil
}

func (m *memLedger) FindPurchase(ctx context.Context, reference string) (*types.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[reference]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// scriptedClient replays a fixed sequence of statuses and errors.
type scriptedClient struct {
	network types.Network
	mu      sync.Mutex
	script  []func() (types.TxStatus, error)
	calls   int
}

func (c *scriptedClient) GetTransactionStatus(ctx context.Context, ref string) (types.TxStatus, error) {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	c.mu.Unlock()
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	return c.script[idx]()
}

func (c *scriptedClient) Network() types.Network { return c.network }
func (c *scriptedClient) Close()                 {}

// fakeScheduler records waits and never sleeps.
type fakeScheduler struct {
	waits int
}

func (s *fakeScheduler) Wait(ctx context.Context, d time.Duration) error {
	s.waits++
	return nil
}

func pending() func() (types.TxStatus, error) {
	return func() (types.TxStatus, error) { return types.TxStatusPending, nil }
}

func confirmed() func() (types.TxStatus, error) {
	return func() (types.TxStatus, error) { return types.TxStatusConfirmed, nil }
}

func failed() func() (types.TxStatus, error) {
	return func() (types.TxStatus, error) { return types.TxStatusFailed, nil }
}

func rpcError() func() (types.TxStatus, error) {
	return func() (types.TxStatus, error) { return types.TxStatusPending, fmt.Errorf("rpc unavailable") }
}

func testRequest(ref string) *types.VerifyRequest {
	return &types.VerifyRequest{
		Reference:        ref,
		Network:          string(types.NetworkBase),
		Currency:         string(types.CurrencyStable),
		UserID:           "user-1",
		TokenAmount:      "1000",
		PricePerTokenUSD: "0.014",
	}
}

func newTestPoller(ledger Ledger, client *scriptedClient, sched Scheduler) *Poller {
	p := NewPoller(ledger, Config{
		Interval:    5 * time.Second,
		MaxAttempts: 30,
		Scheduler:   sched,
	})
	p.AddClient(client)
	return p
}

func TestConfirmedOnLastAttempt(t *testing.T) {
	store := newMemLedger()
	script := make([]func() (types.TxStatus, error), 0, 30)
	for i := 0; i < 29; i++ {
		script = append(script, pending())
	}
	script = append(script, confirmed())
	client := &scriptedClient{network: types.NetworkBase, script: script}
	sched := &fakeScheduler{}

	result, err := newTestPoller(store, client, sched).Verify(context.Background(), testRequest("0xabc"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified || result.Status != types.PurchaseCompleted {
		t.Fatalf("result = %+v", result)
	}
	if client.calls != 30 {
		t.Fatalf("chain calls = %d, want 30", client.calls)
	}
	if sched.waits != 29 {
		t.Fatalf("waits = %d, want 29", sched.waits)
	}

	rec, err := store.FindPurchase(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("FindPurchase: %v", err)
	}
	if rec.Status != types.PurchaseCompleted {
		t.Fatalf("ledger status = %s, want COMPLETED", rec.Status)
	}
}

func TestExhaustionMarksFailed(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){pending()}}
	sched := &fakeScheduler{}

	result, err := newTestPoller(store, client, sched).Verify(context.Background(), testRequest("0xabc"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("exhausted verification must not verify")
	}
	if result.Status != types.PurchaseFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.Reason == "" {
		t.Fatal("exhaustion must carry a reason")
	}
	if client.calls != 30 {
		t.Fatalf("chain calls = %d, want 30", client.calls)
	}

	rec, _ := store.FindPurchase(context.Background(), "0xabc")
	if rec.Status != types.PurchaseFailed {
		t.Fatalf("ledger status = %s, want FAILED", rec.Status)
	}
}

func TestVerifyTwiceIsIdempotent(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){confirmed()}}
	sched := &fakeScheduler{}
	poller := newTestPoller(store, client, sched)

	first, err := poller.Verify(context.Background(), testRequest("0xabc"))
	if err != nil || !first.Verified {
		t.Fatalf("first verify = %+v, %v", first, err)
	}
	callsAfterFirst := client.calls

	second, err := poller.Verify(context.Background(), testRequest("0xabc"))
	if err != nil || !second.Verified {
		t.Fatalf("second verify = %+v, %v", second, err)
	}
	if client.calls != callsAfterFirst {
		t.Fatal("a completed reference must not touch the chain again")
	}
	if len(store.records) != 1 {
		t.Fatalf("purchase records = %d, want 1", len(store.records))
	}
}

func TestOnChainFailure(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){failed()}}

	result, err := newTestPoller(store, client, &fakeScheduler{}).Verify(context.Background(), testRequest("0xabc"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified || result.Status != types.PurchaseFailed {
		t.Fatalf("result = %+v", result)
	}
	if client.calls != 1 {
		t.Fatalf("chain calls = %d, want 1 (no retry after on-chain failure)", client.calls)
	}
}

func TestTransientErrorsConsumeAttempts(t *testing.T) {
	store := newMemLedger()
	script := []func() (types.TxStatus, error){rpcError(), rpcError(), confirmed()}
	client := &scriptedClient{network: types.NetworkBase, script: script}
	sched := &fakeScheduler{}

	result, err := newTestPoller(store, client, sched).Verify(context.Background(), testRequest("0xabc"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Verified {
		t.Fatalf("result = %+v; transient errors must not fail the purchase", result)
	}
	if client.calls != 3 {
		t.Fatalf("chain calls = %d, want 3", client.calls)
	}
}

func TestUnsupportedNetworkLeavesNoRecord(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){confirmed()}}
	poller := newTestPoller(store, client, &fakeScheduler{})

	req := testRequest("0xabc")
	req.Network = string(types.NetworkSolanaMainnet)

	_, err := poller.Verify(context.Background(), req)
	if types.CodeOf(err) != types.ErrUnsupportedNetwork {
		t.Fatalf("error code = %s, want %s", types.CodeOf(err), types.ErrUnsupportedNetwork)
	}
	if len(store.records) != 0 {
		t.Fatal("an unverifiable reference must not open a PENDING row")
	}
}

func TestFailedReplayCarriesReason(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){failed()}}
	poller := newTestPoller(store, client, &fakeScheduler{})

	if _, err := poller.Verify(context.Background(), testRequest("0xabc")); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	callsAfterFirst := client.calls

	result, err := poller.Verify(context.Background(), testRequest("0xabc"))
	if err != nil {
		t.Fatalf("replay verify: %v", err)
	}
	if result.Verified || result.Status != types.PurchaseFailed {
		t.Fatalf("replay result = %+v", result)
	}
	if result.Reason == "" {
		t.Fatal("a recorded failure must carry a reason on replay")
	}
	if client.calls != callsAfterFirst {
		t.Fatal("replay of a failed reference must not touch the chain")
	}

	status, err := poller.CheckStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if status.Reason == "" {
		t.Fatal("check-status of a failed reference must carry a reason")
	}
}

func TestCheckStatusLedgerOnly(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){confirmed()}}
	poller := newTestPoller(store, client, &fakeScheduler{})

	result, err := poller.CheckStatus(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Verified {
		t.Fatal("unknown reference must not verify")
	}
	if client.calls != 0 {
		t.Fatal("check-status must never touch the chain")
	}

	rec := &types.PurchaseRecord{
		Reference:        "0xabc",
		UserID:           "user-1",
		Network:          types.NetworkBase,
		Currency:         types.CurrencyNative,
		TokenAmount:      decimal.NewFromInt(10),
		PricePerTokenUSD: decimal.NewFromFloat(0.014),
		Status:           types.PurchaseCompleted,
	}
	if _, err := store.UpsertPurchase(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	result, err = poller.CheckStatus(context.Background(), "0xabc")
	if err != nil || !result.Verified {
		t.Fatalf("result = %+v, %v", result, err)
	}
}

func TestBatchVerify(t *testing.T) {
	store := newMemLedger()
	client := &scriptedClient{network: types.NetworkBase, script: []func() (types.TxStatus, error){confirmed()}}
	poller := newTestPoller(store, client, &fakeScheduler{})

	reqs := []*types.VerifyRequest{testRequest("0xaaa"), testRequest("0xbbb")}
	results, err := poller.BatchVerify(context.Background(), reqs)
	if err != nil {
		t.Fatalf("BatchVerify: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for i, r := range results {
		if !r.Verified {
			t.Fatalf("result %d not verified: %+v", i, r)
		}
	}
}
