// Package verification resolves submitted transaction references to final
// purchase outcomes. The poller consults the ledger first so a reference
// that was already counted never touches the chain again, then polls the
// chain client with bounded retries.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vitwit/presale/clients"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/types"
)

const (
	// DefaultInterval and DefaultMaxAttempts bound the poll loop at
	// roughly 150 seconds of worst-case latency.
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 30
)

// Ledger is the slice of the purchase store the poller needs. Implemented
// by *ledger.Store; tests substitute an in-memory fake.
type Ledger interface {
	UpsertPurchase(ctx context.Context, rec *types.PurchaseRecord) (*types.PurchaseRecord, error)
	MarkPurchase(ctx context.Context, reference string, status types.PurchaseStatus) (bool, error)
	FindPurchase(ctx context.Context, reference string) (*types.PurchaseRecord, error)
}

// Config tunes the poll loop. Zero values fall back to defaults.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Scheduler   Scheduler
	Logger      logger.Logger
	Metrics     metrics.Recorder
}

// Poller drives references to terminal purchase outcomes.
type Poller struct {
	ledger      Ledger
	chains      map[types.Network]clients.Client
	interval    time.Duration
	maxAttempts int
	sched       Scheduler
	log         logger.Logger
	rec         metrics.Recorder
}

// NewPoller creates a poller over the ledger. Chain clients are attached
// per network with AddClient.
func NewPoller(ledger Ledger, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	return &Poller{
		ledger:      ledger,
		chains:      make(map[types.Network]clients.Client),
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		sched:       cfg.Scheduler,
		log:         cfg.Logger,
		rec:         cfg.Metrics,
	}
}

// AddClient registers the chain client for a network.
func (p *Poller) AddClient(c clients.Client) {
	p.chains[c.Network()] = c
}

// Verify resolves one reference. Idempotent: a reference whose ledger row
// is already terminal returns immediately, so repeated calls never create
// a second record or re-run referral settlement upstream.
func (p *Poller) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResult, error) {
	if existing, err := p.ledger.FindPurchase(ctx, req.Reference); err == nil && existing.Status.Terminal() {
		return resultForRecord(existing.Status), nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}

	// Resolve the chain client before touching the ledger: a reference on
	// an unconfigured network must not leave a PENDING row behind that
	// nothing can ever drive to a terminal status.
	network := types.Network(req.Network)
	client, ok := p.chains[network]
	if !ok {
		return nil, &types.PresaleError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("no chain client configured for network %s", network),
		}
	}

	pending, err := req.Purchase()
	if err != nil {
		return nil, err
	}
	if _, err := p.ledger.UpsertPurchase(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to open pending purchase: %w", err)
	}

	return p.poll(ctx, client, req.Reference, network)
}

// poll runs the bounded retry loop. Chain errors are transient: they
// consume an attempt but never fail the purchase on their own.
func (p *Poller) poll(ctx context.Context, client clients.Client, reference string, network types.Network) (*types.VerifyResult, error) {
	started := time.Now()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		p.rec.IncCounter(metrics.EventPollAttempt, map[string]string{"network": network.String()})

		status, err := client.GetTransactionStatus(ctx, reference)
		if err != nil {
			p.log.Warn("chain status check failed", map[string]any{
				"reference": reference,
				"attempt":   attempt,
				"error":     err.Error(),
			})
		} else {
			switch status {
			case types.TxStatusConfirmed:
				won, err := p.ledger.MarkPurchase(ctx, reference, types.PurchaseCompleted)
				if err != nil {
					return nil, err
				}
				p.observeOutcome(metrics.EventPurchaseVerified, network, started)
				p.log.Info("purchase confirmed", map[string]any{
					"reference":  reference,
					"attempts":   attempt,
					"firstWrite": won,
				})
				return resultFor(types.PurchaseCompleted, ""), nil

			case types.TxStatusFailed:
				if _, err := p.ledger.MarkPurchase(ctx, reference, types.PurchaseFailed); err != nil {
					return nil, err
				}
				p.observeOutcome(metrics.EventPurchaseFailed, network, started)
				return resultFor(types.PurchaseFailed, "transaction failed on-chain"), nil
			}
		}

		if attempt < p.maxAttempts {
			if err := p.sched.Wait(ctx, p.interval); err != nil {
				return nil, err
			}
		}
	}

	if _, err := p.ledger.MarkPurchase(ctx, reference, types.PurchaseFailed); err != nil {
		return nil, err
	}
	p.observeOutcome(metrics.EventPurchaseFailed, network, started)
	return resultFor(types.PurchaseFailed,
		"transaction sent but unconfirmed; check your wallet or a block explorer before retrying"), nil
}

// CheckStatus is the ledger-only fast path: no chain traffic, just the
// current record state.
func (p *Poller) CheckStatus(ctx context.Context, reference string) (*types.VerifyResult, error) {
	rec, err := p.ledger.FindPurchase(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.VerifyResult{Verified: false, Status: types.PurchasePending, Reason: "unknown reference"}, nil
		}
		return nil, fmt.Errorf("ledger lookup failed: %w", err)
	}
	return resultForRecord(rec.Status), nil
}

// BatchVerify resolves multiple references concurrently. Individual
// failures are carried in the per-item results.
func (p *Poller) BatchVerify(ctx context.Context, reqs []*types.VerifyRequest) ([]*types.VerifyResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no references to verify")
	}

	type verifyOutcome struct {
		index  int
		result *types.VerifyResult
		err    error
	}
	outcomes := make(chan verifyOutcome, len(reqs))

	for i, req := range reqs {
		go func(index int, r *types.VerifyRequest) {
			result, err := p.Verify(ctx, r)
			outcomes <- verifyOutcome{index: index, result: result, err: err}
		}(i, req)
	}

	results := make([]*types.VerifyResult, len(reqs))
	for i := 0; i < len(reqs); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-outcomes:
			if out.err != nil {
				results[out.index] = &types.VerifyResult{
					Verified: false,
					Status:   types.PurchasePending,
					Reason:   out.err.Error(),
				}
				continue
			}
			results[out.index] = out.result
		}
	}
	return results, nil
}

func (p *Poller) observeOutcome(event string, network types.Network, started time.Time) {
	labels := map[string]string{"network": network.String()}
	p.rec.IncCounter(event, labels)
	p.rec.ObserveLatency("verify", time.Since(started), labels)
}

// resultForRecord builds the result for a ledger short-circuit. A recorded
// failure still carries a reason; only the chain-time detail is gone.
func resultForRecord(status types.PurchaseStatus) *types.VerifyResult {
	if status == types.PurchaseFailed {
		return resultFor(status, "purchase previously failed; submit a new transaction to retry")
	}
	return resultFor(status, "")
}

func resultFor(status types.PurchaseStatus, reason string) *types.VerifyResult {
	return &types.VerifyResult{
		Verified: status == types.PurchaseCompleted,
		Status:   status,
		Reason:   reason,
	}
}
