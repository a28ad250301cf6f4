// Package reconciler pays out referral bonuses that were queued while the
// referrer had no verified payout wallet. It is driven by wallet-verified
// events from the identity collaborator and processes each referrer's
// backlog as a batch: partial failure never rolls back successes already
// written.
package reconciler

import (
	"context"
	"fmt"

	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/types"
)

// PendingSource lists a referrer's queued bonus rows. Implemented by
// *ledger.Store.
type PendingSource interface {
	PendingReferralPayments(ctx context.Context, referrerID string) ([]types.ReferralPayment, error)
}

// Payer sends one leased bonus row; paid is false when the row's lease was
// taken by a concurrent trigger. Implemented by *settlement.Engine.
type Payer interface {
	PayPending(ctx context.Context, payment *types.ReferralPayment, wallet string) (bool, error)
}

// Reconciler drains a referrer's pending bonus backlog.
type Reconciler struct {
	store PendingSource
	payer Payer
	log   logger.Logger
	rec   metrics.Recorder
}

// New builds a reconciler over the ledger and the settlement pay path.
func New(store PendingSource, payer Payer, log logger.Logger, rec metrics.Recorder) *Reconciler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Reconciler{store: store, payer: payer, log: log, rec: rec}
}

// OnWalletVerified pays every PENDING bonus for the referrer to the newly
// verified wallet. Each row is leased before its transfer, so a second
// concurrent trigger (the user re-verifying, a replayed event) skips rows
// already taken rather than double-paying them. FAILED rows stay failed
// for manual re-trigger.
func (r *Reconciler) OnWalletVerified(ctx context.Context, userID, walletAddress string) (*types.ReconcileReport, error) {
	if userID == "" || walletAddress == "" {
		return nil, fmt.Errorf("wallet-verified event missing user or wallet")
	}

	pending, err := r.store.PendingReferralPayments(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &types.ReconcileReport{}
	for i := range pending {
		payment := pending[i]
		report.Processed++

		paid, err := r.payer.PayPending(ctx, &payment, walletAddress)
		if err != nil {
			report.Failed++
			r.log.Warn("pending bonus payout failed", map[string]any{
				"referrer": userID,
				"payment":  payment.ID,
				"error":    err.Error(),
			})
			continue
		}
		if paid {
			report.Succeeded++
		}
	}

	r.rec.IncCounter(metrics.EventReconcileProcessed, nil)
	r.log.Info("reconciliation finished", map[string]any{
		"referrer":  userID,
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
	return report, nil
}
