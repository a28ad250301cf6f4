// Package types defines the core data model for the presale purchase
// pipeline: transaction references, purchase records, referral payments
// and the shared configuration structs.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the on-chain status of a submitted transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// PurchaseStatus is the lifecycle status of a purchase record.
// A record is created PENDING and transitions to COMPLETED or FAILED
// exactly once; it is never deleted.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "PENDING"
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseFailed    PurchaseStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed
}

// ReferralPaymentStatus is the lifecycle status of a referral bonus payout.
// PROCESSING is a lease state held while a transfer is in flight; it exists
// so that two concurrent reconcile triggers cannot pay the same row twice.
type ReferralPaymentStatus string

const (
	PaymentPending    ReferralPaymentStatus = "PENDING"
	PaymentProcessing ReferralPaymentStatus = "PROCESSING"
	PaymentCompleted  ReferralPaymentStatus = "COMPLETED"
	PaymentFailed     ReferralPaymentStatus = "FAILED"
)

// TransactionReference identifies a submitted on-chain transaction:
// an EVM tx hash or a Solana signature, plus the network and settlement
// currency it was sent with. The Ref string is the idempotency key for
// the purchase ledger; it is immutable once the transaction is broadcast.
type TransactionReference struct {
	Ref      string   `json:"ref"`
	Network  Network  `json:"network"`
	Currency Currency `json:"currency"`
}

// Validate checks the reference shape against the network's hash format.
func (r TransactionReference) Validate() error {
	if r.Ref == "" {
		return fmt.Errorf("transaction reference is empty")
	}
	switch {
	case r.Network.IsEVM():
		if len(r.Ref) != 66 || r.Ref[:2] != "0x" {
			return fmt.Errorf("invalid EVM transaction hash: %s", r.Ref)
		}
	case r.Network.IsSolana():
		if len(r.Ref) < 80 || len(r.Ref) > 90 {
			return fmt.Errorf("invalid Solana signature length: %d", len(r.Ref))
		}
	default:
		return &PresaleError{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", r.Network),
		}
	}
	return nil
}

// PurchaseRecord is the durable record of one token purchase, keyed by
// the transaction reference. The unique index on Reference is what
// guarantees at-most-one credited purchase per on-chain transaction.
type PurchaseRecord struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	Reference        string          `json:"reference" gorm:"not null;size:100;uniqueIndex"`
	UserID           string          `json:"userId" gorm:"not null;size:64;index"`
	Network          Network         `json:"network" gorm:"not null;size:32"`
	Currency         Currency        `json:"currency" gorm:"not null;size:16"`
	TokenAmount      decimal.Decimal `json:"tokenAmount" gorm:"type:numeric(36,18)"`
	PricePerTokenUSD decimal.Decimal `json:"pricePerTokenUsd" gorm:"type:numeric(36,18)"`
	Status           PurchaseStatus  `json:"status" gorm:"not null;size:16;index"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (PurchaseRecord) TableName() string { return "purchases" }

// PurchaseUSD is the USD value of the purchase at purchase time.
func (p *PurchaseRecord) PurchaseUSD() decimal.Decimal {
	return p.TokenAmount.Mul(p.PricePerTokenUSD)
}

// ReferralPayment is one computed referral bonus. Amount is the referrer's
// share in bonus-token units; PlatformAmount is the fixed second-tier cut.
// One row is written per settled purchase with an attributable referrer,
// regardless of how many transfers its settlement produces.
type ReferralPayment struct {
	ID                   uint                  `json:"id" gorm:"primaryKey"`
	ReferrerID           string                `json:"referrerId" gorm:"not null;size:64;index"`
	PurchaseReference    string                `json:"purchaseReference" gorm:"size:100;index"`
	Amount               decimal.Decimal       `json:"amount" gorm:"type:numeric(36,18)"`
	PlatformAmount       decimal.Decimal       `json:"platformAmount" gorm:"type:numeric(36,18)"`
	AmountUSD            decimal.Decimal       `json:"amountUsd" gorm:"type:numeric(36,18)"`
	Status               ReferralPaymentStatus `json:"status" gorm:"not null;size:16;index"`
	TransactionSignature string                `json:"transactionSignature,omitempty" gorm:"size:100"`
	PaymentCurrency      string                `json:"paymentCurrency" gorm:"size:16"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

func (ReferralPayment) TableName() string { return "referral_payments" }

// AllowanceState is an ephemeral snapshot of an ERC-20 allowance check.
// It is recomputed on demand and never persisted; a purchase may only
// proceed once CurrentAllowance covers RequiredAmount.
type AllowanceState struct {
	Owner            string          `json:"owner"`
	Spender          string          `json:"spender"`
	CurrentAllowance decimal.Decimal `json:"currentAllowance"`
	RequiredAmount   decimal.Decimal `json:"requiredAmount"`
}

// Approved reports whether the current allowance covers the requirement.
func (a AllowanceState) Approved() bool {
	return a.CurrentAllowance.GreaterThanOrEqual(a.RequiredAmount)
}

// VerifyResult is the outcome of resolving a transaction reference.
type VerifyResult struct {
	Verified bool           `json:"verified"`
	Status   PurchaseStatus `json:"status"`
	Reason   string         `json:"reason,omitempty"`
}

// ReconcileReport aggregates the outcome of one reconciliation batch.
type ReconcileReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// VerifyRequest is the HTTP payload for POST /verify. It carries the
// transaction reference plus the purchase details needed to open the
// PENDING ledger row the moment the reference is known.
type VerifyRequest struct {
	Reference        string `json:"reference" validate:"required"`
	Network          string `json:"network" validate:"required"`
	Currency         string `json:"currency" validate:"required,oneof=native stable"`
	UserID           string `json:"userId" validate:"required"`
	ReferrerID       string `json:"referrerId,omitempty"`
	TokenAmount      string `json:"tokenAmount" validate:"required"`
	PricePerTokenUSD string `json:"pricePerTokenUsd" validate:"required"`
}

// Purchase converts the request into a PENDING ledger row.
func (v *VerifyRequest) Purchase() (*PurchaseRecord, error) {
	amount, err := decimal.NewFromString(v.TokenAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid token amount %q: %w", v.TokenAmount, err)
	}
	price, err := decimal.NewFromString(v.PricePerTokenUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid token price %q: %w", v.PricePerTokenUSD, err)
	}
	if amount.IsNegative() || price.IsNegative() {
		return nil, fmt.Errorf("token amount and price must be non-negative")
	}
	return &PurchaseRecord{
		Reference:        v.Reference,
		UserID:           v.UserID,
		Network:          Network(v.Network),
		Currency:         Currency(v.Currency),
		TokenAmount:      amount,
		PricePerTokenUSD: price,
		Status:           PurchasePending,
	}, nil
}

// ClientConfig contains configuration for one blockchain client.
type ClientConfig struct {
	Network       Network       `json:"network"`
	RPCUrl        string        `json:"rpcUrl"`
	TokenAddress  string        `json:"tokenAddress,omitempty"`  // stable token contract / bonus token mint
	TokenDecimals int32         `json:"tokenDecimals,omitempty"` // token base-unit decimals
	OperatorKey   string        `json:"operatorKey,omitempty"`   // hex/base58 key for approval and payout sends
	Timeout       time.Duration `json:"timeout,omitempty"`
}

// PresaleConfig contains global configuration for the pipeline.
type PresaleConfig struct {
	DefaultTimeout  time.Duration `json:"defaultTimeout,omitempty"`
	PollInterval    time.Duration `json:"pollInterval,omitempty"`
	MaxPollAttempts int           `json:"maxPollAttempts,omitempty"`
	Policy          string        `json:"policy,omitempty"` // "flat" or "tiered"
	PlatformWallet  string        `json:"platformWallet,omitempty"`
	Spender         string        `json:"spender,omitempty"` // presale contract approved to pull stable tokens
	LogLevel        string        `json:"logLevel,omitempty"`
	EnableMetrics   bool          `json:"enableMetrics,omitempty"`
}
