// Package oracle adapts an external price feed into the pipeline's USD
// price lookups. Prices are cached in redis for about five minutes and
// fall back to hardcoded values when the feed is unreachable, so a feed
// outage degrades pricing accuracy rather than blocking purchases.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/types"
)

// PricePair is the USD price of the two settlement currencies on a chain.
type PricePair struct {
	Native decimal.Decimal `json:"native"`
	Stable decimal.Decimal `json:"stable"`
}

// PriceOracle is the collaborator contract consumed by settlement and the
// purchase flow.
type PriceOracle interface {
	Prices(ctx context.Context, network types.Network) (PricePair, error)
	BonusTokenPrice(ctx context.Context) (decimal.Decimal, error)
}

const (
	cacheTTL      = 5 * time.Minute
	priceKeyTmpl  = "presale:prices:%s"
	bonusPriceKey = "presale:prices:bonus-token"
)

// CachedOracle fetches prices over HTTP with a redis cache in front.
type CachedOracle struct {
	endpoint      string
	http          *http.Client
	cache         *redis.Client
	fallbacks     map[types.Network]PricePair
	bonusFallback decimal.Decimal
	log           logger.Logger
}

// NewCachedOracle builds the oracle. The redis client may be nil, in which
// case every lookup goes to the feed (or its fallback).
func NewCachedOracle(endpoint string, cache *redis.Client, log logger.Logger) *CachedOracle {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &CachedOracle{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		fallbacks: map[types.Network]PricePair{
			types.NetworkBase:          {Native: decimal.NewFromFloat(3000), Stable: decimal.NewFromInt(1)},
			types.NetworkBaseSepolia:   {Native: decimal.NewFromFloat(3000), Stable: decimal.NewFromInt(1)},
			types.NetworkSolanaMainnet: {Native: decimal.NewFromFloat(150), Stable: decimal.NewFromInt(1)},
			types.NetworkSolanaDevnet:  {Native: decimal.NewFromFloat(150), Stable: decimal.NewFromInt(1)},
		},
		bonusFallback: decimal.NewFromFloat(8.0),
		log:           log,
	}
}

var _ PriceOracle = (*CachedOracle)(nil)

// Prices returns the current USD prices for a network's settlement
// currencies, cached for roughly five minutes.
func (o *CachedOracle) Prices(ctx context.Context, network types.Network) (PricePair, error) {
	key := fmt.Sprintf(priceKeyTmpl, network)
	if cached, ok := o.fromCache(ctx, key); ok {
		var pair PricePair
		if err := json.Unmarshal([]byte(cached), &pair); err == nil {
			return pair, nil
		}
	}

	var pair PricePair
	if err := o.fetch(ctx, fmt.Sprintf("%s/prices?network=%s", o.endpoint, network), &pair); err != nil {
		o.log.Warn("price feed unavailable, using fallback", map[string]any{
			"network": network.String(),
			"error":   err.Error(),
		})
		fallback, ok := o.fallbacks[network]
		if !ok {
			return PricePair{}, fmt.Errorf("no price available for network %s: %w", network, err)
		}
		return fallback, nil
	}

	o.toCache(ctx, key, pair)
	return pair, nil
}

// BonusTokenPrice returns the bonus token's current USD price. Settlement
// calls this at payout time, not purchase time.
func (o *CachedOracle) BonusTokenPrice(ctx context.Context) (decimal.Decimal, error) {
	if cached, ok := o.fromCache(ctx, bonusPriceKey); ok {
		if price, err := decimal.NewFromString(cached); err == nil {
			return price, nil
		}
	}

	var out struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := o.fetch(ctx, o.endpoint+"/prices/bonus-token", &out); err != nil {
		o.log.Warn("bonus token price unavailable, using fallback", map[string]any{
			"error": err.Error(),
		})
		return o.bonusFallback, nil
	}

	o.toCache(ctx, bonusPriceKey, out.Price.String())
	return out.Price, nil
}

func (o *CachedOracle) fetch(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (o *CachedOracle) fromCache(ctx context.Context, key string) (string, bool) {
	if o.cache == nil {
		return "", false
	}
	val, err := o.cache.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (o *CachedOracle) toCache(ctx context.Context, key string, value interface{}) {
	if o.cache == nil {
		return
	}
	var payload string
	switch v := value.(type) {
	case string:
		payload = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		payload = string(raw)
	}
	if err := o.cache.Set(ctx, key, payload, cacheTTL).Err(); err != nil {
		o.log.Debug("price cache write failed", map[string]any{"key": key, "error": err.Error()})
	}
}
