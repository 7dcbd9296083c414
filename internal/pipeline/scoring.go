package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"walletintel/internal/fifo"
	"walletintel/internal/market"
	"walletintel/internal/models"
	"walletintel/internal/scoring"
)

// ScoringStore is the persistence surface the scoring stage needs.
type ScoringStore interface {
	ListWalletsForScoring(ctx context.Context) ([]models.Wallet, error)
	ListWalletTransfers(ctx context.Context, wallet string) ([]models.Transfer, error)
	UpsertTokenAnalytics(ctx context.Context, a models.TokenAnalytics) error
	ReplaceQualifiedWallets(ctx context.Context, wallets []models.QualifiedWallet) error
	UpsertTierPerformance(ctx context.Context, tiers []models.TierPerformance) error
	UpsertSmartWallet(ctx context.Context, sw models.SmartWallet) error
	RemoveSmartWallet(ctx context.Context, wallet string) error
	MarkScored(ctx context.Context, address string, scored bool) error
}

// PriceResolver is the slice of the market resolver the stage needs.
type PriceResolver interface {
	Price(ctx context.Context, contract, chain, symbol string) *market.PriceQuote
}

// Scoring rebuilds analytics from the transfer log, qualifies wallets and
// elects smart wallets through the tier grid and the threshold selector.
type Scoring struct {
	store     ScoringStore
	prices    PriceResolver
	fifoCfg   fifo.Config
	scorerCfg scoring.ScorerConfig
	tierCfg   scoring.TierConfig
	thrCfg    scoring.ThresholdConfig
	workers   int
}

func NewScoring(store ScoringStore, prices PriceResolver, workers int) *Scoring {
	return &Scoring{
		store:     store,
		prices:    prices,
		fifoCfg:   fifo.DefaultConfig(),
		scorerCfg: scoring.DefaultScorerConfig(),
		tierCfg:   scoring.DefaultTierConfig(),
		thrCfg:    scoring.DefaultThresholdConfig(),
		workers:   workers,
	}
}

// Configure overrides the default knobs. Zero-valued fields in the arguments
// are taken as given; callers pass fully built configs.
func (s *Scoring) Configure(fifoCfg fifo.Config, scorerCfg scoring.ScorerConfig, tierCfg scoring.TierConfig, thrCfg scoring.ThresholdConfig) {
	s.fifoCfg = fifoCfg
	s.scorerCfg = scorerCfg
	s.tierCfg = tierCfg
	s.thrCfg = thrCfg
}

func (s *Scoring) Run(ctx context.Context) (Summary, error) {
	wallets, err := s.store.ListWalletsForScoring(ctx)
	if err != nil {
		return Summary{}, err
	}
	log.Printf("[Scoring] %d wallets pending", len(wallets))

	var (
		mu        sync.Mutex
		qualified []models.QualifiedWallet
		elected   int
	)

	sum, err := runParallel(ctx, "Scoring", wallets, s.workers, func(ctx context.Context, w models.Wallet) error {
		qw, isElected, err := s.ScoreOne(ctx, w)
		if err != nil || qw == nil {
			return err
		}

		mu.Lock()
		qualified = append(qualified, *qw)
		if isElected {
			elected++
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		return sum, err
	}

	if err := s.store.ReplaceQualifiedWallets(ctx, qualified); err != nil {
		return sum, err
	}

	log.Printf("[Scoring] done: %d scored, %d qualified, %d elected", sum.Succeeded, len(qualified), elected)
	return sum, nil
}

// ScoreOne rebuilds, scores and elects a single wallet. A nil qualified
// wallet with a nil error means the wallet failed the qualification gates;
// its prior election, if any, has been removed. The qualified-wallets
// snapshot is only rewritten by Run.
func (s *Scoring) ScoreOne(ctx context.Context, w models.Wallet) (*models.QualifiedWallet, bool, error) {
	analytics, err := s.rebuildAnalytics(ctx, w.Address)
	if err != nil {
		return nil, false, err
	}

	qw, ok := scoring.ScoreWallet(w.Address, analytics, s.scorerCfg)
	if !ok {
		// Disqualified wallets lose any prior election.
		if err := s.store.RemoveSmartWallet(ctx, w.Address); err != nil {
			return nil, false, err
		}
		return nil, false, s.store.MarkScored(ctx, w.Address, true)
	}

	tiers := scoring.AnalyzeTiers(w.Address, analytics, s.tierCfg)
	sw, isElected := scoring.SelectThreshold(w.Address, w.DiscoveryPeriod, tiers, globalMetrics(analytics, s.scorerCfg), s.thrCfg)
	if isElected {
		for i := range tiers {
			tiers[i].IsOptimal = tiers[i].TierUSD == sw.OptimalTier
		}
	}

	if err := s.store.UpsertTierPerformance(ctx, tiers); err != nil {
		return nil, false, err
	}
	if isElected {
		if err := s.store.UpsertSmartWallet(ctx, sw); err != nil {
			return nil, false, err
		}
	} else {
		if err := s.store.RemoveSmartWallet(ctx, w.Address); err != nil {
			return nil, false, err
		}
	}
	if err := s.store.MarkScored(ctx, w.Address, true); err != nil {
		return nil, false, err
	}
	return qw, isElected, nil
}

// rebuildAnalytics replays the wallet's full transfer log per token and
// persists a fresh analytics row for each. The replay is idempotent, so a
// rerun after a partial failure converges.
func (s *Scoring) rebuildAnalytics(ctx context.Context, wallet string) ([]models.TokenAnalytics, error) {
	transfers, err := s.store.ListWalletTransfers(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("list transfers %s: %w", wallet, err)
	}

	var analytics []models.TokenAnalytics
	for start := 0; start < len(transfers); {
		end := start
		for end < len(transfers) && transfers[end].FungibleID == transfers[start].FungibleID {
			end++
		}
		group := transfers[start:end]
		start = end

		var price *float64
		if q := s.prices.Price(ctx, group[0].ContractAddress, "ethereum", group[0].Symbol); q != nil {
			price = &q.Price
		}

		a := fifo.Compute(group, price, s.fifoCfg)
		if err := s.store.UpsertTokenAnalytics(ctx, a); err != nil {
			return nil, err
		}
		analytics = append(analytics, a)
	}
	return analytics, nil
}

// globalMetrics condenses the whole trade set into the snapshot stored on
// the smart_wallets row.
func globalMetrics(analytics []models.TokenAnalytics, cfg scoring.ScorerConfig) scoring.GlobalMetrics {
	trades := scoring.Trades(analytics, cfg.AirdropMaxInvested)
	var g scoring.GlobalMetrics
	g.Trades = len(trades)
	if g.Trades == 0 {
		return g
	}

	var invested, weightedSum float64
	wins := 0
	for _, t := range trades {
		invested += t.TotalInvested
		weightedSum += t.TotalInvested * t.ROIPercentage
		if t.ROIPercentage >= cfg.WinROI {
			wins++
		}
	}
	if invested > 0 {
		g.ROI = weightedSum / invested
	}
	g.WinRate = float64(wins) / float64(g.Trades) * 100
	return g
}
