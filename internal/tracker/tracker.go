// Package tracker follows elected wallets live: balance snapshots are diffed
// into position changes, and tokens that moved get their transfer history
// rebuilt and re-analyzed.
package tracker

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"walletintel/internal/fifo"
	"walletintel/internal/market"
	"walletintel/internal/models"
	"walletintel/internal/provider"

	"github.com/google/uuid"
)

type Config struct {
	// HoursLookback bounds which logged changes trigger a history rebuild.
	HoursLookback int
	// MinTokenValueUSD filters rebuild candidates; dust moves are logged
	// but never cost a provider crawl.
	MinTokenValueUSD float64
	// AmountDeltaPct is the relative move (percent) below which an amount
	// difference is considered noise.
	AmountDeltaPct float64

	BalanceOnly      bool
	TransactionsOnly bool
}

// Store is the persistence surface the tracker needs.
type Store interface {
	ListSmartWalletsWithValue(ctx context.Context) ([]models.Wallet, error)
	GetPositions(ctx context.Context, wallet string, inPortfolioOnly bool) (map[string]models.TokenPosition, error)
	HasTokenHistory(ctx context.Context, wallet, fungibleID string) (bool, error)
	ApplyBalanceSnapshot(ctx context.Context, wallet string, positions []models.TokenPosition, changes []models.PositionChange, totalValue float64) error
	ListChangedTokens(ctx context.Context, wallet string, cutoff time.Time, minUSD float64) ([]models.TokenPosition, error)
	ReplaceHistory(ctx context.Context, wallet, fungibleID string, transfers []models.Transfer) error
	UpsertTokenAnalytics(ctx context.Context, a models.TokenAnalytics) error
}

// PriceResolver is the slice of the market resolver the rebuild needs.
type PriceResolver interface {
	Price(ctx context.Context, contract, chain, symbol string) *market.PriceQuote
}

// Summary reports one tracking pass.
type Summary struct {
	Wallets    int
	Changes    int
	Rebuilt    int
	Migrations int
	Errors     int
}

type Tracker struct {
	store   Store
	client  provider.Client
	prices  PriceResolver
	fifoCfg fifo.Config
	cfg     Config

	// OnChanges, when set, receives each wallet's committed change rows.
	OnChanges func(wallet string, changes []models.PositionChange)

	// Migrations, when set, checks each wallet for a portfolio migration at
	// the end of its pass. The partial modes skip it.
	Migrations *MigrationDetector
}

func New(store Store, client provider.Client, prices PriceResolver, cfg Config) *Tracker {
	return &Tracker{
		store:   store,
		client:  client,
		prices:  prices,
		fifoCfg: fifo.DefaultConfig(),
		cfg:     cfg,
	}
}

// Run executes one tracking pass over every elected wallet. A failing wallet
// is logged and skipped; the pass continues.
func (t *Tracker) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	wallets, err := t.store.ListSmartWalletsWithValue(ctx)
	if err != nil {
		return sum, fmt.Errorf("list tracked wallets: %w", err)
	}
	sum.Wallets = len(wallets)

	sessionID := uuid.NewString()
	log.Printf("[Tracker] session %s: %d wallets", sessionID, len(wallets))

	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if !t.cfg.TransactionsOnly {
			n, err := t.trackBalances(ctx, sessionID, w.Address)
			if err != nil {
				log.Printf("[Tracker] balances %s: %v", w.Address, err)
				sum.Errors++
				continue
			}
			sum.Changes += n
		}

		if !t.cfg.BalanceOnly {
			n, err := t.rebuildChanged(ctx, w.Address)
			if err != nil {
				log.Printf("[Tracker] rebuild %s: %v", w.Address, err)
				sum.Errors++
				continue
			}
			sum.Rebuilt += n
		}

		if t.Migrations != nil && !t.cfg.BalanceOnly && !t.cfg.TransactionsOnly {
			ok, err := t.Migrations.CheckWallet(ctx, w)
			if err != nil {
				log.Printf("[Tracker] migration %s: %v", w.Address, err)
				sum.Errors++
				continue
			}
			if ok {
				sum.Migrations++
			}
		}
	}

	log.Printf("[Tracker] session %s done: %d changes, %d tokens rebuilt, %d migrations, %d errors",
		sessionID, sum.Changes, sum.Rebuilt, sum.Migrations, sum.Errors)
	return sum, nil
}

// trackBalances snapshots one wallet's current portfolio, diffs it against
// the stored positions and commits the result atomically.
func (t *Tracker) trackBalances(ctx context.Context, sessionID, wallet string) (int, error) {
	balances, err := t.client.ListBalances(ctx, wallet)
	if err != nil {
		return 0, err
	}

	old, err := t.store.GetPositions(ctx, wallet, true)
	if err != nil {
		return 0, err
	}

	positions, changes, totalValue, err := diffPositions(ctx, sessionID, wallet, old, balances, t.cfg.AmountDeltaPct, t.store.HasTokenHistory)
	if err != nil {
		return 0, err
	}

	if err := t.store.ApplyBalanceSnapshot(ctx, wallet, positions, changes, totalValue); err != nil {
		return 0, err
	}

	if len(changes) > 0 && t.OnChanges != nil {
		t.OnChanges(wallet, changes)
	}
	return len(changes), nil
}

// dustAmount is the reported quantity under which a position counts as
// emptied rather than held.
const dustAmount = 1e-9

// diffPositions turns a fresh balance snapshot into upsert rows and change
// rows. hasHistory distinguishes a first entry (NEW) from a re-entry
// (RETOUR) for tokens without a live position.
func diffPositions(ctx context.Context, sessionID, wallet string, old map[string]models.TokenPosition, balances []provider.Balance, deltaPct float64, hasHistory func(context.Context, string, string) (bool, error)) ([]models.TokenPosition, []models.PositionChange, float64, error) {
	now := time.Now()
	var (
		positions  []models.TokenPosition
		changes    []models.PositionChange
		totalValue float64
	)

	seen := make(map[string]bool, len(balances))
	for _, b := range balances {
		if b.Amount < dustAmount {
			// The provider keeps listing fully drained tokens with a zero
			// quantity; treat them as gone so the exit pass below fires.
			continue
		}
		seen[b.FungibleID] = true
		totalValue += b.USDValue

		positions = append(positions, models.TokenPosition{
			Wallet:          wallet,
			FungibleID:      b.FungibleID,
			Symbol:          b.Symbol,
			ContractAddress: b.ContractAddress,
			Chain:           b.Chain,
			Amount:          b.Amount,
			USDValue:        b.USDValue,
			PricePerToken:   b.PricePerToken,
			InPortfolio:     true,
			LastUpdated:     now,
		})

		prev, held := old[b.FungibleID]
		if !held {
			changeType := models.ChangeNew
			known, err := hasHistory(ctx, wallet, b.FungibleID)
			if err != nil {
				return nil, nil, 0, err
			}
			if known {
				changeType = models.ChangeReturn
			}
			changes = append(changes, models.PositionChange{
				SessionID:       sessionID,
				Wallet:          wallet,
				Symbol:          b.Symbol,
				ContractAddress: b.ContractAddress,
				FungibleID:      b.FungibleID,
				Type:            changeType,
				NewAmount:       b.Amount,
				AmountChange:    b.Amount,
				ChangePct:       100,
				NewUSDValue:     b.USDValue,
				USDChange:       b.USDValue,
				DetectedAt:      now,
			})
			continue
		}

		if prev.Amount <= 0 {
			continue
		}
		pct := (b.Amount - prev.Amount) / prev.Amount * 100
		if math.Abs(pct) < deltaPct {
			continue
		}

		changeType := models.ChangeAccumulation
		if pct < 0 {
			changeType = models.ChangeReduction
		}
		changes = append(changes, models.PositionChange{
			SessionID:       sessionID,
			Wallet:          wallet,
			Symbol:          b.Symbol,
			ContractAddress: b.ContractAddress,
			FungibleID:      b.FungibleID,
			Type:            changeType,
			OldAmount:       prev.Amount,
			NewAmount:       b.Amount,
			AmountChange:    b.Amount - prev.Amount,
			ChangePct:       pct,
			OldUSDValue:     prev.USDValue,
			NewUSDValue:     b.USDValue,
			USDChange:       b.USDValue - prev.USDValue,
			DetectedAt:      now,
		})
	}

	for id, prev := range old {
		if seen[id] {
			continue
		}
		changes = append(changes, models.PositionChange{
			SessionID:       sessionID,
			Wallet:          wallet,
			Symbol:          prev.Symbol,
			ContractAddress: prev.ContractAddress,
			FungibleID:      id,
			Type:            models.ChangeExit,
			OldAmount:       prev.Amount,
			AmountChange:    -prev.Amount,
			ChangePct:       -100,
			OldUSDValue:     prev.USDValue,
			USDChange:       -prev.USDValue,
			DetectedAt:      now,
		})
	}

	return positions, changes, totalValue, nil
}

// rebuildChanged re-ingests the full transfer history of every token that
// logged a change inside the lookback window and re-derives its analytics
// row. replace-then-recompute keeps the log and the analytics consistent even
// when the provider's pagination boundaries shifted.
func (t *Tracker) rebuildChanged(ctx context.Context, wallet string) (int, error) {
	cutoff := time.Now().Add(-time.Duration(t.cfg.HoursLookback) * time.Hour)
	tokens, err := t.store.ListChangedTokens(ctx, wallet, cutoff, t.cfg.MinTokenValueUSD)
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}

		var history []models.Transfer
		err := t.client.FetchFullHistory(ctx, wallet, tok.FungibleID, func(page []models.Transfer) error {
			history = append(history, page...)
			return nil
		})
		if err != nil {
			log.Printf("[Tracker] history %s/%s: %v", wallet, tok.Symbol, err)
			continue
		}

		if err := t.store.ReplaceHistory(ctx, wallet, tok.FungibleID, history); err != nil {
			return rebuilt, err
		}

		var price *float64
		if q := t.prices.Price(ctx, tok.ContractAddress, tok.Chain, tok.Symbol); q != nil {
			price = &q.Price
		}

		a := fifo.Compute(history, price, t.fifoCfg)
		if a.Wallet == "" {
			continue
		}
		if err := t.store.UpsertTokenAnalytics(ctx, a); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}
