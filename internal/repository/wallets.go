package repository

import (
	"context"
	"fmt"
	"time"

	"walletintel/internal/models"

	"github.com/jackc/pgx/v5"
)

// InsertWalletIgnore registers a wallet if it is not already known. Returns
// true when a new row was created. An existing row keeps its original
// discovery_period.
func (r *Repository) InsertWalletIgnore(ctx context.Context, address string, period models.DiscoveryPeriod) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO wallets (address, discovery_period, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING`,
		address, period,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert wallet %s: %w", address, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) GetWallet(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	var lastSync *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT address, discovery_period, total_portfolio_value_usd, token_count,
		       is_active, is_scored, transactions_extracted, last_sync, created_at, updated_at
		FROM wallets WHERE address = $1`, address).
		Scan(&w.Address, &w.DiscoveryPeriod, &w.TotalPortfolioValue, &w.TokenCount,
			&w.IsActive, &w.IsScored, &w.TransactionsExtracted, &lastSync, &w.CreatedAt, &w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSync != nil {
		w.LastSync = *lastSync
	}
	return &w, nil
}

// ListWalletsForExtraction returns active wallets whose transfer history has
// not been pulled yet.
func (r *Repository) ListWalletsForExtraction(ctx context.Context) ([]models.Wallet, error) {
	return r.listWallets(ctx, `
		SELECT address, discovery_period, total_portfolio_value_usd, token_count,
		       is_active, is_scored, transactions_extracted, created_at, updated_at
		FROM wallets
		WHERE is_active = TRUE AND transactions_extracted = FALSE
		ORDER BY created_at ASC`)
}

// ListWalletsForScoring returns active wallets with extracted histories.
func (r *Repository) ListWalletsForScoring(ctx context.Context) ([]models.Wallet, error) {
	return r.listWallets(ctx, `
		SELECT address, discovery_period, total_portfolio_value_usd, token_count,
		       is_active, is_scored, transactions_extracted, created_at, updated_at
		FROM wallets
		WHERE is_active = TRUE AND transactions_extracted = TRUE
		ORDER BY address ASC`)
}

func (r *Repository) listWallets(ctx context.Context, query string, args ...any) ([]models.Wallet, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.Address, &w.DiscoveryPeriod, &w.TotalPortfolioValue, &w.TokenCount,
			&w.IsActive, &w.IsScored, &w.TransactionsExtracted, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (r *Repository) MarkTransactionsExtracted(ctx context.Context, address string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE wallets SET transactions_extracted = TRUE, updated_at = NOW()
		WHERE address = $1`, address)
	return err
}

func (r *Repository) MarkScored(ctx context.Context, address string, scored bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE wallets SET is_scored = $2, updated_at = NOW()
		WHERE address = $1`, address, scored)
	return err
}

func (r *Repository) SetWalletActive(ctx context.Context, address string, active bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE wallets SET is_active = $2, updated_at = NOW()
		WHERE address = $1`, address, active)
	return err
}
