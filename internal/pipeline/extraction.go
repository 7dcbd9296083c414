package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"walletintel/internal/models"
	"walletintel/internal/provider"
)

// ExtractionStore is the persistence surface extraction needs.
type ExtractionStore interface {
	ListWalletsForExtraction(ctx context.Context) ([]models.Wallet, error)
	ApplyBalanceSnapshot(ctx context.Context, wallet string, positions []models.TokenPosition, changes []models.PositionChange, totalValue float64) error
	InsertTransfers(ctx context.Context, transfers []models.Transfer) (int64, error)
	MarkTransactionsExtracted(ctx context.Context, address string) error
}

// Extraction pulls each registered wallet's current portfolio and the full
// transfer history of every held token. A wallet is marked extracted only
// after all of its tokens landed; a partial wallet is retried whole on the
// next run, which the dedup index makes a cheap no-op for finished tokens.
type Extraction struct {
	store   ExtractionStore
	client  provider.Client
	workers int
}

func NewExtraction(store ExtractionStore, client provider.Client, workers int) *Extraction {
	return &Extraction{store: store, client: client, workers: workers}
}

func (e *Extraction) Run(ctx context.Context) (Summary, error) {
	wallets, err := e.store.ListWalletsForExtraction(ctx)
	if err != nil {
		return Summary{}, err
	}
	log.Printf("[Extraction] %d wallets pending", len(wallets))

	return runParallel(ctx, "Extraction", wallets, e.workers, func(ctx context.Context, w models.Wallet) error {
		return e.extractWallet(ctx, w.Address)
	})
}

func (e *Extraction) extractWallet(ctx context.Context, wallet string) error {
	balances, err := e.client.ListBalances(ctx, wallet)
	if err != nil {
		return &provider.IngestError{Wallet: wallet, Transient: true, Err: err}
	}

	now := time.Now()
	var (
		positions  []models.TokenPosition
		totalValue float64
	)
	for _, b := range balances {
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
	}

	if err := e.store.ApplyBalanceSnapshot(ctx, wallet, positions, nil, totalValue); err != nil {
		return fmt.Errorf("store positions %s: %w", wallet, err)
	}

	var inserted int64
	for _, b := range balances {
		err := e.client.FetchFullHistory(ctx, wallet, b.FungibleID, func(page []models.Transfer) error {
			n, err := e.store.InsertTransfers(ctx, page)
			inserted += n
			return err
		})
		if err != nil {
			return &provider.IngestError{Wallet: wallet, Token: b.Symbol, Transient: true, Err: err}
		}
	}

	if err := e.store.MarkTransactionsExtracted(ctx, wallet); err != nil {
		return err
	}
	log.Printf("[Extraction] %s: %d tokens, %d transfers", wallet, len(balances), inserted)
	return nil
}
