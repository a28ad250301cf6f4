// Package config loads server configuration from the environment, with a
// local .env file honored in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Mode string

	// Storage
	DatabaseURL string
	RedisURL    string

	// Collaborators
	PriceFeedURL string
	IdentityURL  string

	// Chains
	EVMNetwork          string
	EVMRPCUrl           string
	EVMStableToken      string
	EVMStableDecimals   int
	EVMOperatorKey      string
	PresaleSpender      string
	SolanaNetwork       string
	SolanaRPCUrl        string
	SolanaBonusMint     string
	SolanaBonusDecimals int
	SolanaPayoutKey     string

	// Pipeline
	PollIntervalSeconds int
	MaxPollAttempts     int
	ReferralPolicy      string
	PlatformWallet      string
	LogLevel            string
	EnableMetrics       bool
}

// Load reads the environment into a Config. A missing .env file is fine.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		Mode:                getEnv("GIN_MODE", "debug"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PriceFeedURL:        getEnv("PRICE_FEED_URL", ""),
		IdentityURL:         getEnv("IDENTITY_URL", "http://localhost:8081"),
		EVMNetwork:          getEnv("EVM_NETWORK", "base"),
		EVMRPCUrl:           getEnv("EVM_RPC_URL", ""),
		EVMStableToken:      getEnv("EVM_STABLE_TOKEN", ""),
		EVMStableDecimals:   getEnvInt("EVM_STABLE_DECIMALS", 6),
		EVMOperatorKey:      getEnv("EVM_OPERATOR_KEY", ""),
		PresaleSpender:      getEnv("PRESALE_SPENDER", ""),
		SolanaNetwork:       getEnv("SOLANA_NETWORK", "solana-mainnet"),
		SolanaRPCUrl:        getEnv("SOLANA_RPC_URL", ""),
		SolanaBonusMint:     getEnv("SOLANA_BONUS_MINT", ""),
		SolanaBonusDecimals: getEnvInt("SOLANA_BONUS_DECIMALS", 9),
		SolanaPayoutKey:     getEnv("SOLANA_PAYOUT_KEY", ""),
		PollIntervalSeconds: getEnvInt("POLL_INTERVAL_SECONDS", 5),
		MaxPollAttempts:     getEnvInt("MAX_POLL_ATTEMPTS", 30),
		ReferralPolicy:      getEnv("REFERRAL_POLICY", "flat"),
		PlatformWallet:      getEnv("PLATFORM_WALLET", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		EnableMetrics:       getEnvBool("ENABLE_METRICS", false),
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
