package ledger

import (
	"context"
	"fmt"

	"github.com/vitwit/presale/types"
)

// CreateReferralPayment writes a new bonus row. At most one row exists per
// settled purchase: the settlement engine checks for an existing row by
// purchase reference before creating.
func (s *Store) CreateReferralPayment(ctx context.Context, p *types.ReferralPayment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("referral payment create failed: %w", err)
	}
	return nil
}

// FindReferralPaymentByPurchase looks up the bonus row settled from a
// purchase reference, if any.
func (s *Store) FindReferralPaymentByPurchase(ctx context.Context, reference string) (*types.ReferralPayment, error) {
	var p types.ReferralPayment
	err := s.db.WithContext(ctx).Where("purchase_reference = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingReferralPayments returns every PENDING bonus row for a referrer,
// oldest first.
func (s *Store) PendingReferralPayments(ctx context.Context, referrerID string) ([]types.ReferralPayment, error) {
	var out []types.ReferralPayment
	err := s.db.WithContext(ctx).
		Where("referrer_id = ? AND status = ?", referrerID, types.PaymentPending).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("pending payment query failed: %w", err)
	}
	return out, nil
}

// LeaseReferralPayment moves a row PENDING to PROCESSING. The conditional
// update is the double-payment guard: only one of two concurrent triggers
// observes RowsAffected == 1 and may attempt the transfer.
func (s *Store) LeaseReferralPayment(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&types.ReferralPayment{}).
		Where("id = ? AND status = ?", id, types.PaymentPending).
		Update("status", types.PaymentProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("payment lease failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CompleteReferralPayment records a successful transfer with its on-chain
// signature.
func (s *Store) CompleteReferralPayment(ctx context.Context, id uint, signature string) error {
	res := s.db.WithContext(ctx).
		Model(&types.ReferralPayment{}).
		Where("id = ? AND status = ?", id, types.PaymentProcessing).
		Updates(map[string]interface{}{
			"status":                types.PaymentCompleted,
			"transaction_signature": signature,
		})
	if res.Error != nil {
		return fmt.Errorf("payment completion failed: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("payment %d was not in processing state", id)
	}
	return nil
}

// FailReferralPayment marks a leased row FAILED. No automatic retry:
// FAILED rows wait for a manual re-trigger.
func (s *Store) FailReferralPayment(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&types.ReferralPayment{}).
		Where("id = ? AND status = ?", id, types.PaymentProcessing).
		Update("status", types.PaymentFailed)
	if res.Error != nil {
		return fmt.Errorf("payment failure update failed: %w", res.Error)
	}
	return nil
}
