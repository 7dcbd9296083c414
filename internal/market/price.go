// Package market resolves canonical USD prices and token market data.
// Stablecoins are pinned to $1.00; everything else goes to DexScreener
// first, CoinGecko on failure or zero-result. Unknown prices come back nil
// so analytics can fall back to cost-held valuation.
package market

import (
	"context"
	"log"
	"strings"
	"time"
)

type PriceQuote struct {
	Contract string
	Chain    string
	Price    float64
	Source   string
	AsOf     time.Time
}

// TokenInfo carries market cap and liquidity for the consensus filters.
type TokenInfo struct {
	Contract  string
	Chain     string
	Symbol    string
	PriceUSD  float64
	MarketCap float64
	Liquidity float64
}

// PriceSource is one upstream quote API.
type PriceSource interface {
	Price(ctx context.Context, contract, chain string) (*PriceQuote, error)
	Name() string
}

// TokenInfoSource enriches a contract with market cap and liquidity.
type TokenInfoSource interface {
	TokenInfo(ctx context.Context, contract, chain string) (*TokenInfo, error)
}

var stablecoins = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"DAI":   true,
	"BUSD":  true,
	"FDUSD": true,
	"TUSD":  true,
	"USDP":  true,
	"GUSD":  true,
	"USDE":  true,
	"PYUSD": true,
}

// IsStablecoin reports whether a symbol belongs to the pinned set.
func IsStablecoin(symbol string) bool {
	return stablecoins[strings.ToUpper(symbol)]
}

// Resolver is the price oracle facade the pipeline uses.
type Resolver struct {
	primary   PriceSource
	secondary PriceSource
	info      TokenInfoSource
	cache     *PriceCache
}

func NewResolver(primary, secondary PriceSource, info TokenInfoSource) *Resolver {
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		info:      info,
		cache:     NewPriceCache(15 * time.Minute),
	}
}

// Price returns the USD quote for a token, or nil when no source knows it.
// Stablecoin symbols short-circuit to $1.00 without a network call.
func (r *Resolver) Price(ctx context.Context, contract, chain, symbol string) *PriceQuote {
	if IsStablecoin(symbol) {
		return &PriceQuote{Contract: contract, Chain: chain, Price: 1.0, Source: "stable", AsOf: time.Now()}
	}
	if contract == "" {
		return nil
	}

	if q, ok := r.cache.Get(contract); ok {
		return q
	}

	if q := r.query(ctx, r.primary, contract, chain); q != nil {
		r.cache.Put(contract, q)
		return q
	}
	if q := r.query(ctx, r.secondary, contract, chain); q != nil {
		r.cache.Put(contract, q)
		return q
	}
	return nil
}

func (r *Resolver) query(ctx context.Context, src PriceSource, contract, chain string) *PriceQuote {
	if src == nil {
		return nil
	}
	q, err := src.Price(ctx, contract, chain)
	if err != nil {
		log.Printf("[Market] %s lookup failed for %s: %v", src.Name(), contract, err)
		return nil
	}
	if q == nil || q.Price <= 0 {
		return nil
	}
	return q
}

// TokenInfo returns market cap and liquidity for the consensus filters, or
// nil when the info source has nothing.
func (r *Resolver) TokenInfo(ctx context.Context, contract, chain string) *TokenInfo {
	if r.info == nil || contract == "" {
		return nil
	}
	info, err := r.info.TokenInfo(ctx, contract, chain)
	if err != nil {
		log.Printf("[Market] token info failed for %s: %v", contract, err)
		return nil
	}
	return info
}
