package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/vitwit/presale/types"
)

// SolanaClient resolves signature references and sends referral bonus
// payouts. The bonus token is an SPL mint; the two-way split is built as
// one transaction with two transfer-checked instructions so both legs
// land or neither does.
type SolanaClient struct {
	network      types.Network
	rpcURL       string
	client       *rpc.Client
	payoutKey    solana.PrivateKey
	mint         solana.PublicKey
	mintDecimals uint8
	confirmPoll  time.Duration
	confirmTries int
}

var (
	_ Client      = (*SolanaClient)(nil)
	_ BonusSender = (*SolanaClient)(nil)
)

// NewSolanaClient builds a client for a Solana network. OperatorKey is the
// base58 payout key; without it SendBonusSplit returns an error and the
// client is verification-only.
func NewSolanaClient(cfg types.ClientConfig) (*SolanaClient, error) {
	if !cfg.Network.IsSolana() {
		return nil, &types.PresaleError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not a Solana network", cfg.Network),
		}
	}

	c := &SolanaClient{
		network:      cfg.Network,
		rpcURL:       cfg.RPCUrl,
		client:       rpc.New(cfg.RPCUrl),
		mintDecimals: uint8(cfg.TokenDecimals),
		confirmPoll:  3 * time.Second,
		confirmTries: 5,
	}

	if cfg.TokenAddress != "" {
		mint, err := solana.PublicKeyFromBase58(cfg.TokenAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid bonus token mint: %w", err)
		}
		c.mint = mint
	}

	if cfg.OperatorKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.OperatorKey)
		if err != nil {
			return nil, fmt.Errorf("invalid payout key: %w", err)
		}
		c.payoutKey = key
	}

	return c, nil
}

// GetTransactionStatus maps signature status semantics onto the pipeline's
// three-state status. An unknown signature is pending: Solana drops
// signatures from status history only well after finalization windows the
// poller operates in.
func (c *SolanaClient) GetTransactionStatus(ctx context.Context, ref string) (types.TxStatus, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return types.TxStatusFailed, fmt.Errorf("%s: %w", ErrInvalidReference, err)
	}

	out, err := c.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return types.TxStatusPending, fmt.Errorf("%s: %w", ErrUnexpectedRPCFailure, err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return types.TxStatusPending, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return types.TxStatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return types.TxStatusConfirmed, nil
	default:
		return types.TxStatusPending, nil
	}
}

// SendBonusSplit transfers the referrer share and the platform second-tier
// share of a bonus in one transaction and waits for confirmation.
func (c *SolanaClient) SendBonusSplit(
	ctx context.Context,
	referrerWallet, platformWallet string,
	referrerAmount, platformAmount decimal.Decimal,
) (string, error) {
	if c.payoutKey == nil {
		return "", fmt.Errorf("%s: payout requires an operator key", ErrNoOperatorKey)
	}

	referrer, err := solana.PublicKeyFromBase58(referrerWallet)
	if err != nil {
		return "", fmt.Errorf("%s: invalid referrer wallet: %w", ErrPayoutBuildFailed, err)
	}
	platform, err := solana.PublicKeyFromBase58(platformWallet)
	if err != nil {
		return "", fmt.Errorf("%s: invalid platform wallet: %w", ErrPayoutBuildFailed, err)
	}

	payer := c.payoutKey.PublicKey()
	sourceATA, _, err := solana.FindAssociatedTokenAddress(payer, c.mint)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrPayoutBuildFailed, err)
	}

	referrerInst, err := c.transferInstruction(sourceATA, referrer, payer, referrerAmount)
	if err != nil {
		return "", err
	}
	platformInst, err := c.transferInstruction(sourceATA, platform, payer, platformAmount)
	if err != nil {
		return "", err
	}

	recent, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrPayoutBuildFailed, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{referrerInst, platformInst},
		recent.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrPayoutBuildFailed, err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &c.payoutKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrPayoutBuildFailed, err)
	}

	sig, err := c.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ErrPayoutBroadcastFailed, err)
	}

	// Confirmation loop mirrors the verification poller in miniature: the
	// payout is not reported settled until the signature finalizes.
	for i := 0; i < c.confirmTries; i++ {
		select {
		case <-ctx.Done():
			return sig.String(), ctx.Err()
		case <-time.After(c.confirmPoll):
		}

		status, err := c.GetTransactionStatus(ctx, sig.String())
		if err != nil {
			continue
		}
		switch status {
		case types.TxStatusConfirmed:
			return sig.String(), nil
		case types.TxStatusFailed:
			return sig.String(), fmt.Errorf("%s: payout transaction failed on-chain", ErrPayoutBroadcastFailed)
		}
	}

	return sig.String(), fmt.Errorf("%s: %s", ErrPayoutConfirmationTimeout, sig)
}

func (c *SolanaClient) transferInstruction(
	sourceATA, destWallet, owner solana.PublicKey,
	amount decimal.Decimal,
) (solana.Instruction, error) {
	destATA, _, err := solana.FindAssociatedTokenAddress(destWallet, c.mint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrPayoutBuildFailed, err)
	}

	raw := amount.Shift(int32(c.mintDecimals)).BigInt()
	if !raw.IsUint64() {
		return nil, fmt.Errorf("%s: amount %s out of range", ErrPayoutBuildFailed, amount)
	}

	inst := token.NewTransferCheckedInstruction(
		raw.Uint64(),
		c.mintDecimals,
		sourceATA,
		c.mint,
		destATA,
		owner,
		nil,
	).Build()

	return inst, nil
}

func (c *SolanaClient) Network() types.Network { return c.network }

func (c *SolanaClient) Close() {}
