// Package presale wires the purchase verification and referral settlement
// pipeline: chain clients, the purchase ledger, the verification poller,
// the allowance gate and the settlement engine behind one facade.
package presale

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vitwit/presale/allowance"
	"github.com/vitwit/presale/clients"
	"github.com/vitwit/presale/flow"
	"github.com/vitwit/presale/ledger"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/oracle"
	"github.com/vitwit/presale/reconciler"
	"github.com/vitwit/presale/settlement"
	"github.com/vitwit/presale/types"
	"github.com/vitwit/presale/verification"
)

// Presale is the main entry point for the pipeline.
type Presale struct {
	cfg     *types.PresaleConfig
	store   *ledger.Store
	prices  oracle.PriceOracle
	wallets settlement.WalletDirectory

	chains map[types.Network]clients.Client
	poller *verification.Poller
	gate   *allowance.Gate
	sender clients.BonusSender
	engine *settlement.Engine
	recon  *reconciler.Reconciler

	log   logger.Logger
	rec   metrics.Recorder
	sched verification.Scheduler
}

// New creates a Presale instance over the ledger, price oracle and payout
// wallet directory. Chain clients are attached with AddNetwork.
func New(cfg *types.PresaleConfig, store *ledger.Store, prices oracle.PriceOracle, wallets settlement.WalletDirectory, opts ...Option) *Presale {
	if cfg == nil {
		cfg = &types.PresaleConfig{}
	}

	p := &Presale{
		cfg:     cfg,
		store:   store,
		prices:  prices,
		wallets: wallets,
		chains:  make(map[types.Network]clients.Client),
		log:     logger.NoopLogger{},
		rec:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.poller = verification.NewPoller(store, verification.Config{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.MaxPollAttempts,
		Scheduler:   p.sched,
		Logger:      p.log,
		Metrics:     p.rec,
	})
	p.engine = settlement.NewEngine(settlement.Config{
		Store:          store,
		Oracle:         prices,
		Sender:         bonusSenderFunc(p.sendBonus),
		Wallets:        wallets,
		Policy:         settlement.PolicyByName(cfg.Policy),
		PlatformWallet: cfg.PlatformWallet,
		Logger:         p.log,
		Metrics:        p.rec,
	})
	p.recon = reconciler.New(store, p.engine, p.log, p.rec)

	return p
}

// AddNetwork creates and registers the chain client for a network. The
// EVM client carrying a stable token also becomes the allowance gate's
// token; the first Solana client with a payout key becomes the bonus
// sender.
func (p *Presale) AddNetwork(cfg types.ClientConfig) error {
	switch {
	case cfg.Network.IsEVM():
		client, err := clients.NewEVMClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to create EVM client for %s: %w", cfg.Network, err)
		}
		p.chains[cfg.Network] = client
		p.poller.AddClient(client)
		if cfg.TokenAddress != "" {
			p.gate = allowance.NewGate(client, p.cfg.Spender, p.log)
		}
		return nil

	case cfg.Network.IsSolana():
		client, err := clients.NewSolanaClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to create Solana client for %s: %w", cfg.Network, err)
		}
		p.chains[cfg.Network] = client
		p.poller.AddClient(client)
		if p.sender == nil && cfg.OperatorKey != "" {
			p.sender = client
		}
		return nil

	default:
		return &types.PresaleError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", cfg.Network),
		}
	}
}

// Verify resolves a transaction reference to a purchase outcome.
func (p *Presale) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResult, error) {
	return p.poller.Verify(ctx, req)
}

// VerifyAndSettle verifies the purchase and, when it completes, runs
// referral settlement for the request's referrer. Settlement errors are
// logged and swallowed: a failed bonus payout never unwinds or hides the
// buyer's completed purchase.
func (p *Presale) VerifyAndSettle(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResult, error) {
	result, err := p.poller.Verify(ctx, req)
	if err != nil || !result.Verified {
		return result, err
	}

	purchase, err := p.store.FindPurchase(ctx, req.Reference)
	if err != nil {
		return result, nil
	}
	if _, err := p.engine.Settle(ctx, purchase, req.ReferrerID); err != nil {
		p.log.Error("referral settlement failed", map[string]any{
			"reference": req.Reference,
			"referrer":  req.ReferrerID,
			"error":     err.Error(),
		})
	}
	return result, nil
}

// CheckStatus is the ledger-only fast path.
func (p *Presale) CheckStatus(ctx context.Context, reference string) (*types.VerifyResult, error) {
	return p.poller.CheckStatus(ctx, reference)
}

// BatchVerify verifies multiple references concurrently.
func (p *Presale) BatchVerify(ctx context.Context, reqs []*types.VerifyRequest) ([]*types.VerifyResult, error) {
	return p.poller.BatchVerify(ctx, reqs)
}

// Settle runs referral settlement for an already-completed purchase.
func (p *Presale) Settle(ctx context.Context, purchase *types.PurchaseRecord, referrerID string) (*types.ReferralPayment, error) {
	return p.engine.Settle(ctx, purchase, referrerID)
}

// OnWalletVerified pays out the referrer's queued bonuses.
func (p *Presale) OnWalletVerified(ctx context.Context, userID, walletAddress string) (*types.ReconcileReport, error) {
	return p.recon.OnWalletVerified(ctx, userID, walletAddress)
}

// IsApproved reports whether the buyer's allowance covers the amount.
func (p *Presale) IsApproved(ctx context.Context, owner string, required decimal.Decimal) (bool, error) {
	if p.gate == nil {
		return false, fmt.Errorf("no allowance-gated token configured")
	}
	return p.gate.IsApproved(ctx, owner, required)
}

// EnsureApproval establishes the spending approval before a stable-token
// purchase.
func (p *Presale) EnsureApproval(ctx context.Context, owner string, required decimal.Decimal) error {
	if p.gate == nil {
		return fmt.Errorf("no allowance-gated token configured")
	}
	return p.gate.EnsureApproval(ctx, owner, required)
}

// NewPurchaseFlow returns the step machine for a purchase attempt.
func (p *Presale) NewPurchaseFlow(network types.Network, currency types.Currency) *flow.Flow {
	return flow.ForPurchase(network, currency)
}

// NewApprovalFlow returns the approval-flow step machine.
func (p *Presale) NewApprovalFlow() *flow.Flow {
	return flow.ForApproval()
}

// IsNetworkSupported reports whether a chain client is configured.
func (p *Presale) IsNetworkSupported(network types.Network) bool {
	_, ok := p.chains[network]
	return ok
}

// Close closes all chain clients.
func (p *Presale) Close() {
	for _, c := range p.chains {
		c.Close()
	}
}

// sendBonus defers the sender lookup to call time so AddNetwork order
// does not matter.
func (p *Presale) sendBonus(ctx context.Context, referrerWallet, platformWallet string, referrerAmount, platformAmount decimal.Decimal) (string, error) {
	if p.sender == nil {
		return "", fmt.Errorf("no payout-capable chain client configured")
	}
	return p.sender.SendBonusSplit(ctx, referrerWallet, platformWallet, referrerAmount, platformAmount)
}

type bonusSenderFunc func(ctx context.Context, referrerWallet, platformWallet string, referrerAmount, platformAmount decimal.Decimal) (string, error)

func (f bonusSenderFunc) SendBonusSplit(ctx context.Context, referrerWallet, platformWallet string, referrerAmount, platformAmount decimal.Decimal) (string, error) {
	return f(ctx, referrerWallet, platformWallet, referrerAmount, platformAmount)
}

// Version information
const Version = "1.0.0"
