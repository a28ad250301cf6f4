package types

// Network represents supported blockchain networks.
type Network string

const (
	// EVM networks
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet

	// Solana networks
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
)

// Currency is the settlement currency a buyer pays with on a network:
// the chain's native coin or a stable token.
type Currency string

const (
	CurrencyNative Currency = "native"
	CurrencyStable Currency = "stable"
)

func (n Network) IsEVM() bool {
	return n == NetworkBase || n == NetworkBaseSepolia
}

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkSolanaDevnet
}

func (n Network) String() string {
	return string(n)
}

// RequiresAllowance reports whether paying with the currency on the
// network needs an ERC-20 approval before the purchase transaction.
// Only allowance-based stable tokens on EVM chains do; native coins and
// Solana SPL transfers move funds directly.
func (n Network) RequiresAllowance(c Currency) bool {
	return n.IsEVM() && c == CurrencyStable
}
