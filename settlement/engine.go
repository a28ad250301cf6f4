// Package settlement computes and pays referral bonuses for completed
// purchases. A settlement failure is never allowed to touch the purchase
// record: the bonus row is left PENDING or FAILED for reconciliation and
// the buyer's purchase stands.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vitwit/presale/clients"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/oracle"
	"github.com/vitwit/presale/types"
)

// PaymentStore is the slice of the ledger the engine writes bonus rows
// through. Implemented by *ledger.Store.
type PaymentStore interface {
	CreateReferralPayment(ctx context.Context, p *types.ReferralPayment) error
	FindReferralPaymentByPurchase(ctx context.Context, reference string) (*types.ReferralPayment, error)
	LeaseReferralPayment(ctx context.Context, id uint) (bool, error)
	CompleteReferralPayment(ctx context.Context, id uint, signature string) error
	FailReferralPayment(ctx context.Context, id uint) error
}

// WalletDirectory resolves a referrer's payout wallet. Backed by the
// external identity collaborator; verified is false for referrers who
// signed up via wallet-only auth and never linked a payout wallet.
type WalletDirectory interface {
	PayoutWallet(ctx context.Context, userID string) (address string, verified bool, err error)
}

// Engine settles referral bonuses from completed purchases.
type Engine struct {
	store          PaymentStore
	prices         oracle.PriceOracle
	sender         clients.BonusSender
	wallets        WalletDirectory
	policy         Policy
	platformWallet string
	log            logger.Logger
	rec            metrics.Recorder
}

// Config wires the engine's collaborators.
type Config struct {
	Store          PaymentStore
	Oracle         oracle.PriceOracle
	Sender         clients.BonusSender
	Wallets        WalletDirectory
	Policy         Policy
	PlatformWallet string
	Logger         logger.Logger
	Metrics        metrics.Recorder
}

// NewEngine builds a settlement engine. The policy defaults to flat.
func NewEngine(cfg Config) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = FlatPolicy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	return &Engine{
		store:          cfg.Store,
		prices:         cfg.Oracle,
		sender:         cfg.Sender,
		wallets:        cfg.Wallets,
		policy:         cfg.Policy,
		platformWallet: cfg.PlatformWallet,
		log:            cfg.Logger,
		rec:            cfg.Metrics,
	}
}

// Settle computes the bonus for a completed purchase and either pays it
// or queues it as PENDING. A missing referrer is a no-op. The purchase
// USD value uses the price captured at purchase time; the bonus-token
// conversion uses the oracle price at settlement time, deliberately, since
// the bonus token drifts between purchase and settlement.
func (e *Engine) Settle(ctx context.Context, purchase *types.PurchaseRecord, referrerID string) (*types.ReferralPayment, error) {
	if referrerID == "" {
		return nil, nil
	}
	if purchase.Status != types.PurchaseCompleted {
		return nil, fmt.Errorf("cannot settle purchase %s in status %s", purchase.Reference, purchase.Status)
	}

	// One bonus row per purchase; a re-settle of the same reference is a
	// no-op so duplicate verification calls cannot double-credit.
	if existing, err := e.store.FindReferralPaymentByPurchase(ctx, purchase.Reference); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("referral payment lookup failed: %w", err)
	}

	bonusUSD := purchase.PurchaseUSD().Mul(e.policy.Rates()[0])

	tokenPrice, err := e.prices.BonusTokenPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("bonus token price unavailable: %w", err)
	}
	if tokenPrice.IsZero() {
		return nil, fmt.Errorf("bonus token price is zero")
	}

	bonusTokens := bonusUSD.Div(tokenPrice)
	platformShare := bonusTokens.Mul(secondTierRate)
	referrerShare := bonusTokens.Sub(platformShare)

	payment := &types.ReferralPayment{
		ReferrerID:        referrerID,
		PurchaseReference: purchase.Reference,
		Amount:            referrerShare,
		PlatformAmount:    platformShare,
		AmountUSD:         bonusUSD,
		Status:            types.PaymentPending,
		PaymentCurrency:   "bonus-token",
	}
	if err := e.store.CreateReferralPayment(ctx, payment); err != nil {
		return nil, err
	}

	wallet, verified, err := e.wallets.PayoutWallet(ctx, referrerID)
	if err != nil {
		e.log.Warn("payout wallet lookup failed, bonus left pending", map[string]any{
			"referrer": referrerID,
			"error":    err.Error(),
		})
		return payment, nil
	}
	if !verified {
		e.rec.IncCounter(metrics.EventSettlementPending, map[string]string{"network": purchase.Network.String()})
		e.log.Info("referrer wallet unverified, bonus queued", map[string]any{
			"referrer": referrerID,
			"amount":   referrerShare.String(),
		})
		return payment, nil
	}

	// Transfer failures are referral-only: log, mark the row, move on.
	if _, err := e.PayPending(ctx, payment, wallet); err != nil {
		e.log.Error("referral transfer failed", map[string]any{
			"referrer": referrerID,
			"payment":  payment.ID,
			"error":    err.Error(),
		})
	}
	return payment, nil
}

// PayPending leases a PENDING bonus row and sends the two-way split. The
// reconciler shares this path so immediate and deferred payouts follow
// identical logic. A row that cannot be leased was taken by a concurrent
// trigger and is skipped: paid is false with no error.
func (e *Engine) PayPending(ctx context.Context, payment *types.ReferralPayment, wallet string) (bool, error) {
	leased, err := e.store.LeaseReferralPayment(ctx, payment.ID)
	if err != nil {
		return false, err
	}
	if !leased {
		e.log.Debug("payment already leased, skipping", map[string]any{"payment": payment.ID})
		return false, nil
	}

	signature, err := e.sender.SendBonusSplit(ctx, wallet, e.platformWallet, payment.Amount, payment.PlatformAmount)
	if err != nil {
		if failErr := e.store.FailReferralPayment(ctx, payment.ID); failErr != nil {
			e.log.Error("failed to mark payment failed", map[string]any{
				"payment": payment.ID,
				"error":   failErr.Error(),
			})
		}
		e.rec.IncCounter(metrics.EventSettlementFailed, nil)
		return false, &types.PresaleError{
			Code:    types.ErrSettlementTransferFailed,
			Message: fmt.Sprintf("bonus transfer failed: %v", err),
		}
	}

	if err := e.store.CompleteReferralPayment(ctx, payment.ID, signature); err != nil {
		return false, err
	}
	payment.Status = types.PaymentCompleted
	payment.TransactionSignature = signature

	e.rec.IncCounter(metrics.EventSettlementPaid, nil)
	e.log.Info("referral bonus paid", map[string]any{
		"payment":   payment.ID,
		"referrer":  payment.ReferrerID,
		"amount":    payment.Amount.String(),
		"signature": signature,
	})
	return true, nil
}

// BonusForLevel exposes the per-level rate math used by the referral-tree
// views: the bonus a level-N ancestor earns from a purchase's USD value.
func (e *Engine) BonusForLevel(purchaseUSD decimal.Decimal, level int) decimal.Decimal {
	rates := e.policy.Rates()
	if level < 1 || level > len(rates) {
		return decimal.Zero
	}
	return purchaseUSD.Mul(rates[level-1])
}
