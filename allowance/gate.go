// Package allowance implements the approve-then-spend gate for ERC-20
// settlement currencies. A purchase with an allowance-based token may only
// be submitted once the presale spender's allowance covers the purchase
// amount; the gate decides whether an approval transaction must run first.
package allowance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vitwit/presale/clients"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/types"
)

// approvalHeadroom is the multiplier applied to the required amount when
// submitting an approval. Approving at least twice the purchase amount
// spares the buyer a second approval on the next purchase.
var approvalHeadroom = decimal.NewFromInt(2)

// Gate checks and establishes spending approval against a single ERC-20
// token. Allowance reads are never cached; each call goes to the chain.
type Gate struct {
	token   clients.ERC20
	spender string
	log     logger.Logger
}

// NewGate builds a gate over the stable token client for the presale
// spender contract.
func NewGate(token clients.ERC20, spender string, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Gate{token: token, spender: spender, log: log}
}

// Check refetches the current allowance and returns the comparison state.
func (g *Gate) Check(ctx context.Context, owner string, required decimal.Decimal) (types.AllowanceState, error) {
	current, err := g.token.Allowance(ctx, owner, g.spender)
	if err != nil {
		return types.AllowanceState{}, fmt.Errorf("allowance read failed: %w", err)
	}
	return types.AllowanceState{
		Owner:            owner,
		Spender:          g.spender,
		CurrentAllowance: current,
		RequiredAmount:   required,
	}, nil
}

// IsApproved reports whether the owner's freshly-fetched allowance covers
// the required amount.
func (g *Gate) IsApproved(ctx context.Context, owner string, required decimal.Decimal) (bool, error) {
	state, err := g.Check(ctx, owner, required)
	if err != nil {
		return false, err
	}
	return state.Approved(), nil
}

// EnsureApproval establishes an allowance covering required before
// returning. Order matters: the balance check runs first so a buyer who
// cannot afford the purchase is told so before being asked to sign an
// approval. An already-sufficient allowance short-circuits with no
// on-chain action.
func (g *Gate) EnsureApproval(ctx context.Context, owner string, required decimal.Decimal) error {
	balance, err := g.token.BalanceOf(ctx, owner)
	if err != nil {
		return fmt.Errorf("balance read failed: %w", err)
	}
	if balance.LessThan(required) {
		return &types.PresaleError{
			Code:    types.ErrInsufficientBalance,
			Message: fmt.Sprintf("balance %s is below the required %s", balance, required),
		}
	}

	state, err := g.Check(ctx, owner, required)
	if err != nil {
		return err
	}
	if state.Approved() {
		g.log.Debug("allowance already sufficient", map[string]any{
			"owner":     owner,
			"allowance": state.CurrentAllowance.String(),
			"required":  required.String(),
		})
		return nil
	}

	approveAmount := required.Mul(approvalHeadroom)
	txHash, err := g.token.Approve(ctx, g.spender, approveAmount)
	if err != nil {
		return fmt.Errorf("approval submission failed: %w", err)
	}

	g.log.Info("approval submitted", map[string]any{
		"owner":  owner,
		"amount": approveAmount.String(),
		"tx":     txHash,
	})

	if err := g.token.WaitForConfirmation(ctx, txHash); err != nil {
		// A timeout here is soft: the approval may still confirm, so the
		// caller is told to retry rather than to assume loss of funds.
		return err
	}

	// The confirmed approval must have landed on the owner's allowance.
	// An approve signed by a different account (a misconfigured operator
	// key, a wallet switch mid-flow) confirms fine without granting the
	// owner anything, so success is only reported off a fresh read.
	state, err = g.Check(ctx, owner, required)
	if err != nil {
		return err
	}
	if !state.Approved() {
		return &types.PresaleError{
			Code: types.ErrInsufficientAllowance,
			Message: fmt.Sprintf("approval confirmed but allowance %s still below the required %s",
				state.CurrentAllowance, required),
		}
	}

	return nil
}
