package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	presale "github.com/vitwit/presale"
	"github.com/vitwit/presale/config"
	"github.com/vitwit/presale/identity"
	"github.com/vitwit/presale/ledger"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/oracle"
	"github.com/vitwit/presale/server"
	"github.com/vitwit/presale/types"
)

func main() {
	cfg := config.Load()
	zlog := logger.NewZapLogger(cfg.LogLevel)

	store, err := ledger.Open(cfg.DatabaseURL, zlog)
	if err != nil {
		log.Fatal("failed to open ledger:", err)
	}
	defer store.Close()

	rdb := openRedis(cfg.RedisURL, zlog)
	prices := oracle.NewCachedOracle(cfg.PriceFeedURL, rdb, zlog)
	wallets := identity.NewHTTPDirectory(cfg.IdentityURL)

	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.EnableMetrics {
		rec = metrics.NewPrometheusRecorder()
	}

	app := presale.New(
		&types.PresaleConfig{
			PollInterval:    cfg.PollInterval(),
			MaxPollAttempts: cfg.MaxPollAttempts,
			Policy:          cfg.ReferralPolicy,
			PlatformWallet:  cfg.PlatformWallet,
			Spender:         cfg.PresaleSpender,
			LogLevel:        cfg.LogLevel,
			EnableMetrics:   cfg.EnableMetrics,
		},
		store, prices, wallets,
		presale.WithLogger(zlog),
		presale.WithMetrics(rec),
	)
	defer app.Close()

	if cfg.EVMRPCUrl != "" {
		err := app.AddNetwork(types.ClientConfig{
			Network:       types.Network(cfg.EVMNetwork),
			RPCUrl:        cfg.EVMRPCUrl,
			TokenAddress:  cfg.EVMStableToken,
			TokenDecimals: int32(cfg.EVMStableDecimals),
			OperatorKey:   cfg.EVMOperatorKey,
		})
		if err != nil {
			log.Fatal("failed to add EVM network:", err)
		}
	}
	if cfg.SolanaRPCUrl != "" {
		err := app.AddNetwork(types.ClientConfig{
			Network:       types.Network(cfg.SolanaNetwork),
			RPCUrl:        cfg.SolanaRPCUrl,
			TokenAddress:  cfg.SolanaBonusMint,
			TokenDecimals: int32(cfg.SolanaBonusDecimals),
			OperatorKey:   cfg.SolanaPayoutKey,
		})
		if err != nil {
			log.Fatal("failed to add Solana network:", err)
		}
	}

	gin.SetMode(cfg.Mode)
	r := server.NewRouter(app, zlog, cfg.EnableMetrics)

	zlog.Info("starting presale server", map[string]any{"port": cfg.Port})
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server:", err)
	}
}

// openRedis connects the price cache; a missing redis is tolerated and
// the oracle just skips caching.
func openRedis(url string, zlog logger.Logger) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		zlog.Warn("invalid redis url, price caching disabled", map[string]any{"error": err.Error()})
		return nil
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis unreachable, price caching disabled", map[string]any{"error": err.Error()})
		return nil
	}
	return client
}
