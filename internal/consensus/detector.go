// Package consensus detects tokens that several elected wallets entered
// inside the same window with conviction-sized positions.
package consensus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"walletintel/internal/market"
	"walletintel/internal/models"
)

type Config struct {
	// MinWhales is the minimum number of qualifying wallets per token.
	MinWhales int
	// Window bounds how far back buys count toward a signal.
	Window time.Duration
	// McapMin / McapMax keep signals on tokens small enough to move and
	// large enough to exit.
	McapMin float64
	McapMax float64
}

// Store is the persistence surface the detector needs.
type Store interface {
	RecentSmartWalletBuys(ctx context.Context, since time.Time) ([]models.ConsensusBuy, error)
	UpsertConsensusSignal(ctx context.Context, s models.ConsensusSignal) error
	DeactivateStaleSignals(ctx context.Context, cutoff time.Time) (int64, error)
}

// InfoSource resolves market cap and liquidity; nil means unknown.
type InfoSource interface {
	TokenInfo(ctx context.Context, contract, chain string) *market.TokenInfo
}

type Detector struct {
	store Store
	info  InfoSource
	cfg   Config

	// OnSignal, when set, receives each newly upserted signal.
	OnSignal func(models.ConsensusSignal)
}

func NewDetector(store Store, info InfoSource, cfg Config) *Detector {
	return &Detector{store: store, info: info, cfg: cfg}
}

// Run executes one detection pass: build signals from the window's buys,
// upsert them, then retire signals whose window has fully passed.
func (d *Detector) Run(ctx context.Context) ([]models.ConsensusSignal, error) {
	now := time.Now()
	since := now.Add(-d.cfg.Window)

	buys, err := d.store.RecentSmartWalletBuys(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("recent buys: %w", err)
	}

	signals := detectSignals(ctx, buys, d.info, since, now, d.cfg)
	for _, s := range signals {
		if err := d.store.UpsertConsensusSignal(ctx, s); err != nil {
			return nil, err
		}
		log.Printf("[Consensus] %s %s: %d whales (%d exceptional), $%.0f",
			s.SignalType, s.Symbol, s.WhaleCount, s.ExceptionalCount, s.TotalInvestment)
		if d.OnSignal != nil {
			d.OnSignal(s)
		}
	}

	stale, err := d.store.DeactivateStaleSignals(ctx, since)
	if err != nil {
		return nil, err
	}
	if stale > 0 {
		log.Printf("[Consensus] deactivated %d stale signals", stale)
	}

	return signals, nil
}

// Detect evaluates one window of buys without touching storage. The live
// detector and the backtester share this path.
func Detect(ctx context.Context, buys []models.ConsensusBuy, info InfoSource, periodStart, periodEnd time.Time, cfg Config) []models.ConsensusSignal {
	return detectSignals(ctx, buys, info, periodStart, periodEnd, cfg)
}

// walletStake is one wallet's aggregate entry into a token inside the window.
type walletStake struct {
	wallet      string
	invested    float64
	quantity    float64
	optimalTier int
	status      models.ThresholdStatus
	firstBuy    time.Time
	lastBuy     time.Time
}

// detectSignals groups the window's buys per token and keeps tokens where
// enough wallets each invested at least their own optimal tier. A wallet's
// conviction bar is personal: what counts as a real position for a $3k
// player is noise for a $12k one.
func detectSignals(ctx context.Context, buys []models.ConsensusBuy, info InfoSource, periodStart, periodEnd time.Time, cfg Config) []models.ConsensusSignal {
	type tokenAgg struct {
		symbol   string
		contract string
		chain    string
		stakes   map[string]*walletStake
	}

	tokens := make(map[string]*tokenAgg)
	var order []string
	for _, b := range buys {
		if b.ContractAddress == "" || market.IsStablecoin(b.Symbol) {
			continue
		}
		agg, ok := tokens[b.ContractAddress]
		if !ok {
			agg = &tokenAgg{symbol: b.Symbol, contract: b.ContractAddress, stakes: make(map[string]*walletStake)}
			tokens[b.ContractAddress] = agg
			order = append(order, b.ContractAddress)
		}
		if agg.chain == "" {
			agg.chain = b.Chain
		}
		st, ok := agg.stakes[b.Wallet]
		if !ok {
			st = &walletStake{wallet: b.Wallet, optimalTier: b.OptimalTier, status: b.Status, firstBuy: b.Timestamp, lastBuy: b.Timestamp}
			agg.stakes[b.Wallet] = st
		}
		st.invested += b.ValueUSD
		st.quantity += b.Quantity
		if b.Timestamp.Before(st.firstBuy) {
			st.firstBuy = b.Timestamp
		}
		if b.Timestamp.After(st.lastBuy) {
			st.lastBuy = b.Timestamp
		}
	}

	var signals []models.ConsensusSignal
	for _, contract := range order {
		agg := tokens[contract]

		var whales []*walletStake
		for _, st := range agg.stakes {
			if st.invested >= float64(st.optimalTier) {
				whales = append(whales, st)
			}
		}
		if len(whales) < cfg.MinWhales {
			continue
		}
		sort.Slice(whales, func(i, j int) bool { return whales[i].wallet < whales[j].wallet })

		chain := agg.chain
		if chain == "" {
			chain = "ethereum"
		}
		ti := info.TokenInfo(ctx, contract, chain)
		if ti == nil {
			log.Printf("[Consensus] %s: no market data, skipping", agg.symbol)
			continue
		}
		if ti.MarketCap < cfg.McapMin || ti.MarketCap > cfg.McapMax {
			continue
		}

		s := models.ConsensusSignal{
			Symbol:          agg.symbol,
			ContractAddress: contract,
			Chain:           ti.Chain,
			DetectionDate:   periodEnd,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
			MarketCap:       ti.MarketCap,
			Liquidity:       ti.Liquidity,
			IsActive:        true,
		}
		if s.Chain == "" {
			s.Chain = chain
		}

		var totalQty float64
		s.FirstBuy = whales[0].firstBuy
		s.LastBuy = whales[0].lastBuy
		for _, w := range whales {
			s.WhaleCount++
			s.TotalInvestment += w.invested
			totalQty += w.quantity
			s.Wallets = append(s.Wallets, w.wallet)
			if w.status == models.ThresholdExceptional || w.status == models.ThresholdExcellent {
				s.ExceptionalCount++
			}
			if w.firstBuy.Before(s.FirstBuy) {
				s.FirstBuy = w.firstBuy
			}
			if w.lastBuy.After(s.LastBuy) {
				s.LastBuy = w.lastBuy
			}
		}
		if totalQty > 0 {
			s.AvgEntryPrice = s.TotalInvestment / totalQty
		}

		s.SignalType = models.SignalMixedConsensus
		if s.ExceptionalCount > 0 {
			s.SignalType = models.SignalExceptionalConsensus
		}

		signals = append(signals, s)
	}

	return signals
}
