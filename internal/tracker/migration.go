package tracker

import (
	"context"
	"fmt"
	"log"
	"time"

	"walletintel/internal/models"
	"walletintel/internal/provider"
)

// MigrationConfig tunes wallet-migration detection.
type MigrationConfig struct {
	// PortfolioFraction is the share of portfolio value that must leave to
	// a single recipient before it reads as a migration.
	PortfolioFraction float64
	// Window bounds how far back outgoing transfers are considered.
	Window time.Duration
}

// MigrationStore is the persistence surface migration detection needs.
type MigrationStore interface {
	ListSmartWalletsWithValue(ctx context.Context) ([]models.Wallet, error)
	InsertWalletIgnore(ctx context.Context, address string, period models.DiscoveryPeriod) (bool, error)
	InsertMigrationIgnore(ctx context.Context, m models.WalletMigration) (bool, error)
	InsertTransfers(ctx context.Context, transfers []models.Transfer) (int64, error)
	WeightedAvgBuyPrice(ctx context.Context, wallet, symbol string) (float64, bool, error)
	InheritPrices(ctx context.Context, parent, child, symbol string, price float64) (int64, error)
	SetWalletActive(ctx context.Context, address string, active bool) error
}

// MigrationDetector finds elected wallets that moved their portfolio to a
// fresh address and carries their track record over.
type MigrationDetector struct {
	store  MigrationStore
	client provider.Client
	cfg    MigrationConfig
}

func NewMigrationDetector(store MigrationStore, client provider.Client, cfg MigrationConfig) *MigrationDetector {
	return &MigrationDetector{store: store, client: client, cfg: cfg}
}

// recipientAgg accumulates everything one address received from the wallet
// inside the window.
type recipientAgg struct {
	recipient string
	totalUSD  float64
	tokens    []models.TransferredToken
	firstSend time.Time
	lastSend  time.Time
}

// Run scans every elected wallet for a migration. Detections are independent;
// one failing wallet does not stop the scan.
func (d *MigrationDetector) Run(ctx context.Context) (int, error) {
	wallets, err := d.store.ListSmartWalletsWithValue(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wallets: %w", err)
	}

	detected := 0
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return detected, err
		}
		ok, err := d.CheckWallet(ctx, w)
		if err != nil {
			log.Printf("[Migration] %s: %v", w.Address, err)
			continue
		}
		if ok {
			detected++
		}
	}

	log.Printf("[Migration] scan done: %d wallets, %d migrations", len(wallets), detected)
	return detected, nil
}

// CheckWallet evaluates a single wallet and, on detection, records the
// migration, registers the child and carries the cost basis over. Reports
// whether a new migration was recorded.
func (d *MigrationDetector) CheckWallet(ctx context.Context, w models.Wallet) (bool, error) {
	if w.TotalPortfolioValue <= 0 {
		return false, nil
	}

	sends, err := d.client.FetchRecentSends(ctx, w.Address, d.cfg.Window)
	if err != nil {
		return false, err
	}
	if len(sends) == 0 {
		return false, nil
	}

	agg := dominantRecipient(aggregateSends(sends), w.TotalPortfolioValue, d.cfg.PortfolioFraction)
	if agg == nil {
		return false, nil
	}

	if !provider.ValidAddress(agg.recipient) {
		return false, nil
	}

	// A failed contract check means the recipient's nature is unknown, and
	// an unknown recipient is never treated as a migration target.
	isContract, err := d.client.IsContract(ctx, agg.recipient)
	if err != nil {
		return false, fmt.Errorf("contract check %s: %w", agg.recipient, err)
	}
	if isContract {
		log.Printf("[Migration] %s -> %s: recipient is a contract, skipping", w.Address, agg.recipient)
		return false, nil
	}

	child := provider.NormalizeAddress(agg.recipient)
	pct := agg.totalUSD / w.TotalPortfolioValue * 100

	inserted, err := d.store.InsertMigrationIgnore(ctx, models.WalletMigration{
		OldWallet:     w.Address,
		NewWallet:     child,
		MigrationDate: agg.lastSend,
		Tokens:        agg.tokens,
		TotalValue:    agg.totalUSD,
		TransferPct:   pct,
		IsValidated:   true,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		// Already recorded on a previous scan.
		return false, nil
	}

	log.Printf("[Migration] %s -> %s: %.1f%% of portfolio (%d tokens, $%.0f)",
		w.Address, child, pct, len(agg.tokens), agg.totalUSD)

	if _, err := d.store.InsertWalletIgnore(ctx, child, models.PeriodMigration); err != nil {
		return false, err
	}

	if err := d.inheritCostBasis(ctx, w.Address, child, agg.tokens); err != nil {
		return false, err
	}

	if err := d.store.SetWalletActive(ctx, w.Address, false); err != nil {
		return false, err
	}

	return true, nil
}

// inheritCostBasis ingests the child's history for each transferred token and
// stamps the parent's weighted average entry price onto the child's inbound
// rows. The update only touches rows whose inherited price is still unset, so
// a rerun converges to zero rows.
func (d *MigrationDetector) inheritCostBasis(ctx context.Context, parent, child string, tokens []models.TransferredToken) error {
	for _, tok := range tokens {
		var history []models.Transfer
		err := d.client.FetchFullHistory(ctx, child, tok.FungibleID, func(page []models.Transfer) error {
			history = append(history, page...)
			return nil
		})
		if err != nil {
			log.Printf("[Migration] child history %s/%s: %v", child, tok.Symbol, err)
			continue
		}
		if _, err := d.store.InsertTransfers(ctx, history); err != nil {
			return err
		}

		avg, ok, err := d.store.WeightedAvgBuyPrice(ctx, parent, tok.Symbol)
		if err != nil {
			return err
		}
		if !ok || avg <= 0 {
			log.Printf("[Migration] %s: no entry price for %s, child keeps observed prices", parent, tok.Symbol)
			continue
		}

		n, err := d.store.InheritPrices(ctx, parent, child, tok.Symbol, avg)
		if err != nil {
			return err
		}
		log.Printf("[Migration] %s -> %s: inherited %s @ %.6f on %d rows", parent, child, tok.Symbol, avg, n)
	}
	return nil
}

// aggregateSends groups outgoing transfers by recipient.
func aggregateSends(sends []provider.Send) map[string]*recipientAgg {
	byRecipient := make(map[string]*recipientAgg)
	for _, s := range sends {
		if s.Recipient == "" {
			continue
		}
		agg, ok := byRecipient[s.Recipient]
		if !ok {
			agg = &recipientAgg{recipient: s.Recipient, firstSend: s.Timestamp, lastSend: s.Timestamp}
			byRecipient[s.Recipient] = agg
		}
		agg.totalUSD += s.ValueUSD
		if s.Timestamp.Before(agg.firstSend) {
			agg.firstSend = s.Timestamp
		}
		if s.Timestamp.After(agg.lastSend) {
			agg.lastSend = s.Timestamp
		}

		merged := false
		for i := range agg.tokens {
			if agg.tokens[i].FungibleID == s.FungibleID {
				agg.tokens[i].Quantity += s.Quantity
				agg.tokens[i].ValueUSD += s.ValueUSD
				merged = true
				break
			}
		}
		if !merged {
			agg.tokens = append(agg.tokens, models.TransferredToken{
				Symbol:          s.Symbol,
				FungibleID:      s.FungibleID,
				ContractAddress: s.ContractAddress,
				Quantity:        s.Quantity,
				ValueUSD:        s.ValueUSD,
			})
		}
	}
	return byRecipient
}

// dominantRecipient picks the recipient that received more than fraction of
// the portfolio, largest first. Nil when nobody crosses the bar.
func dominantRecipient(byRecipient map[string]*recipientAgg, portfolioValue, fraction float64) *recipientAgg {
	var best *recipientAgg
	for _, agg := range byRecipient {
		if agg.totalUSD <= portfolioValue*fraction {
			continue
		}
		if best == nil || agg.totalUSD > best.totalUSD {
			best = agg
		}
	}
	return best
}
