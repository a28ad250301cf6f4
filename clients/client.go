// Package clients provides the chain client implementations the pipeline
// verifies and settles against. Transaction submission is handled by the
// buyer's wallet outside this module; clients only resolve references,
// read allowances and send referral payouts from the operator key.
package clients

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vitwit/presale/types"
)

// Client is the minimal per-network capability the verification poller
// needs: resolve a submitted transaction reference to its on-chain status.
type Client interface {
	GetTransactionStatus(ctx context.Context, ref string) (types.TxStatus, error)
	Network() types.Network
	Close()
}

// ERC20 is the allowance-token capability of EVM clients. Reads are never
// cached; every call hits the chain so allowance comparisons cannot go
// stale.
type ERC20 interface {
	BalanceOf(ctx context.Context, owner string) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error)
	Approve(ctx context.Context, spender string, amount decimal.Decimal) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string) error
}

// BonusSender sends a referral bonus as a single transaction carrying both
// the referrer transfer and the platform second-tier transfer, so the split
// lands atomically where the chain supports multi-instruction transactions.
type BonusSender interface {
	SendBonusSplit(ctx context.Context, referrerWallet, platformWallet string, referrerAmount, platformAmount decimal.Decimal) (string, error)
}
