package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/vitwit/presale/types"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// EVMClient resolves transaction references on an EVM network and exposes
// the ERC-20 reads and approval path for the allowance-gated stable token.
type EVMClient struct {
	network       types.Network
	rpcURL        string
	client        *ethclient.Client
	token         *bind.BoundContract
	tokenDecimals int32
	transactor    *bind.TransactOpts
	receiptPoll   time.Duration
}

var (
	_ Client = (*EVMClient)(nil)
	_ ERC20  = (*EVMClient)(nil)
)

// NewEVMClient dials the RPC endpoint and binds the stable token contract.
// OperatorKey is optional; without it the client is read-only and Approve
// returns an error.
func NewEVMClient(cfg types.ClientConfig) (*EVMClient, error) {
	if !cfg.Network.IsEVM() {
		return nil, &types.PresaleError{
			Code:    types.ErrUnsupportedNetwork,
			Message: fmt.Sprintf("network %s is not an EVM network", cfg.Network),
		}
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial EVM rpc %s: %w", cfg.RPCUrl, err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	c := &EVMClient{
		network:       cfg.Network,
		rpcURL:        cfg.RPCUrl,
		client:        client,
		tokenDecimals: cfg.TokenDecimals,
		receiptPoll:   3 * time.Second,
	}

	if cfg.TokenAddress != "" {
		bound := bind.NewBoundContract(common.HexToAddress(cfg.TokenAddress), parsed, client, client, client)
		c.token = bound
	}

	if cfg.OperatorKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid operator key: %w", err)
		}
		chainID, err := client.ChainID(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, fmt.Errorf("failed to build transactor: %w", err)
		}
		c.transactor = opts
	}

	return c, nil
}

// GetTransactionStatus maps receipt lookup semantics onto the pipeline's
// three-state status. A missing receipt means the transaction is still in
// flight, not that it failed.
func (c *EVMClient) GetTransactionStatus(ctx context.Context, ref string) (types.TxStatus, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(ref))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return types.TxStatusPending, nil
		}
		return types.TxStatusPending, fmt.Errorf("%s: %w", ErrUnexpectedRPCFailure, err)
	}

	if receipt.Status == 1 {
		return types.TxStatusConfirmed, nil
	}
	return types.TxStatusFailed, nil
}

// BalanceOf returns the owner's stable token balance in token units.
func (c *EVMClient) BalanceOf(ctx context.Context, owner string) (decimal.Decimal, error) {
	out, err := c.callToken(ctx, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(out, -c.tokenDecimals), nil
}

// Allowance returns the current spender allowance in token units. Always a
// fresh chain read.
func (c *EVMClient) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	out, err := c.callToken(ctx, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(out, -c.tokenDecimals), nil
}

// Approve submits an ERC-20 approve from the operator key and returns the
// transaction hash without waiting for confirmation.
func (c *EVMClient) Approve(ctx context.Context, spender string, amount decimal.Decimal) (string, error) {
	if c.token == nil {
		return "", fmt.Errorf("%s: no stable token bound for %s", ErrInvalidReference, c.network)
	}
	if c.transactor == nil {
		return "", fmt.Errorf("%s: approve requires an operator key", ErrNoOperatorKey)
	}

	opts := *c.transactor
	opts.Context = ctx

	raw := amount.Shift(c.tokenDecimals).BigInt()
	tx, err := c.token.Transact(&opts, "approve", common.HexToAddress(spender), raw)
	if err != nil {
		return "", fmt.Errorf("approve transaction failed: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// WaitForConfirmation polls the receipt until the transaction lands or ctx
// expires. A reverted approval is a hard error; ctx expiry is the soft
// confirmation-timeout case.
func (c *EVMClient) WaitForConfirmation(ctx context.Context, txHash string) error {
	for {
		status, err := c.GetTransactionStatus(ctx, txHash)
		if err == nil {
			switch status {
			case types.TxStatusConfirmed:
				return nil
			case types.TxStatusFailed:
				return fmt.Errorf("%s: %s", ErrApprovalReverted, txHash)
			}
		}

		select {
		case <-ctx.Done():
			return &types.PresaleError{
				Code:    types.ErrConfirmationTimeout,
				Message: fmt.Sprintf("transaction %s sent but unconfirmed", txHash),
			}
		case <-time.After(c.receiptPoll):
		}
	}
}

func (c *EVMClient) callToken(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	if c.token == nil {
		return nil, fmt.Errorf("no stable token bound for network %s", c.network)
	}

	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected type %T", method, out[0])
	}
	return v, nil
}

func (c *EVMClient) Network() types.Network { return c.network }

func (c *EVMClient) Close() {
	c.client.Close()
}
