package repository

import (
	"context"
	"fmt"
	"time"

	"walletintel/internal/models"
)

// UpsertTokenAnalytics writes one recomputed analytics row. Keyed by
// (wallet, fungible_id) so reruns overwrite instead of appending.
func (r *Repository) UpsertTokenAnalytics(ctx context.Context, a models.TokenAnalytics) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_analytics (wallet, symbol, contract_address, fungible_id,
			total_invested_usd, total_realized_usd, gains_airdrops_usd, current_value_usd,
			profit_loss_usd, roi_percentage, remaining_quantity, remaining_cost_basis,
			weighted_avg_buy_price, weighted_avg_sell_price, current_price, price_known,
			status, total_entries, total_exits, first_transaction_date, last_transaction_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (wallet, fungible_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			contract_address = EXCLUDED.contract_address,
			total_invested_usd = EXCLUDED.total_invested_usd,
			total_realized_usd = EXCLUDED.total_realized_usd,
			gains_airdrops_usd = EXCLUDED.gains_airdrops_usd,
			current_value_usd = EXCLUDED.current_value_usd,
			profit_loss_usd = EXCLUDED.profit_loss_usd,
			roi_percentage = EXCLUDED.roi_percentage,
			remaining_quantity = EXCLUDED.remaining_quantity,
			remaining_cost_basis = EXCLUDED.remaining_cost_basis,
			weighted_avg_buy_price = EXCLUDED.weighted_avg_buy_price,
			weighted_avg_sell_price = EXCLUDED.weighted_avg_sell_price,
			current_price = EXCLUDED.current_price,
			price_known = EXCLUDED.price_known,
			status = EXCLUDED.status,
			total_entries = EXCLUDED.total_entries,
			total_exits = EXCLUDED.total_exits,
			first_transaction_date = EXCLUDED.first_transaction_date,
			last_transaction_date = EXCLUDED.last_transaction_date,
			updated_at = EXCLUDED.updated_at`,
		a.Wallet, a.Symbol, a.ContractAddress, a.FungibleID,
		a.TotalInvested, a.TotalRealized, a.GainsAirdrops, a.CurrentValue,
		a.ProfitLoss, a.ROIPercentage, a.RemainingQty, a.RemainingCost,
		a.AvgBuyPrice, a.AvgSellPrice, a.CurrentPrice, a.PriceKnown,
		a.Status, a.TotalEntries, a.TotalExits, a.FirstTransaction, a.LastTransaction, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analytics %s/%s: %w", a.Wallet, a.FungibleID, err)
	}
	return nil
}

func (r *Repository) ListTokenAnalytics(ctx context.Context, wallet string) ([]models.TokenAnalytics, error) {
	rows, err := r.db.Query(ctx, `
		SELECT wallet, symbol, contract_address, fungible_id,
		       total_invested_usd, total_realized_usd, gains_airdrops_usd, current_value_usd,
		       profit_loss_usd, roi_percentage, remaining_quantity, remaining_cost_basis,
		       weighted_avg_buy_price, weighted_avg_sell_price, current_price, price_known,
		       status, total_entries, total_exits,
		       COALESCE(first_transaction_date, 'epoch'::timestamptz),
		       COALESCE(last_transaction_date, 'epoch'::timestamptz)
		FROM token_analytics
		WHERE wallet = $1
		ORDER BY fungible_id ASC`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TokenAnalytics
	for rows.Next() {
		var a models.TokenAnalytics
		if err := rows.Scan(&a.Wallet, &a.Symbol, &a.ContractAddress, &a.FungibleID,
			&a.TotalInvested, &a.TotalRealized, &a.GainsAirdrops, &a.CurrentValue,
			&a.ProfitLoss, &a.ROIPercentage, &a.RemainingQty, &a.RemainingCost,
			&a.AvgBuyPrice, &a.AvgSellPrice, &a.CurrentPrice, &a.PriceKnown,
			&a.Status, &a.TotalEntries, &a.TotalExits,
			&a.FirstTransaction, &a.LastTransaction); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceQualifiedWallets swaps the whole qualified set; qualification is a
// full recomputation, not an incremental update.
func (r *Repository) ReplaceQualifiedWallets(ctx context.Context, wallets []models.QualifiedWallet) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM qualified_wallets`); err != nil {
		return fmt.Errorf("failed to clear qualified wallets: %w", err)
	}

	for _, q := range wallets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO qualified_wallets (wallet, score, classification, weighted_roi, win_rate,
				trade_count, n_winners, n_losers, n_neutral, total_invested,
				roi_score, activity_score, success_score, quality_bonus, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			q.Wallet, q.Score, q.Classification, q.WeightedROI, q.WinRate,
			q.TradeCount, q.Winners, q.Losers, q.Neutrals, q.TotalInvested,
			q.ROIScore, q.ActivityScore, q.SuccessScore, q.QualityBonus, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to insert qualified wallet %s: %w", q.Wallet, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListQualifiedWallets(ctx context.Context) ([]models.QualifiedWallet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT wallet, score, classification, weighted_roi, win_rate,
		       trade_count, n_winners, n_losers, n_neutral, total_invested,
		       roi_score, activity_score, success_score, quality_bonus
		FROM qualified_wallets
		ORDER BY score DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QualifiedWallet
	for rows.Next() {
		var q models.QualifiedWallet
		if err := rows.Scan(&q.Wallet, &q.Score, &q.Classification, &q.WeightedROI, &q.WinRate,
			&q.TradeCount, &q.Winners, &q.Losers, &q.Neutrals, &q.TotalInvested,
			&q.ROIScore, &q.ActivityScore, &q.SuccessScore, &q.QualityBonus); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpsertTierPerformance writes a wallet's full tier grid, empty tiers
// included.
func (r *Repository) UpsertTierPerformance(ctx context.Context, tiers []models.TierPerformance) error {
	if len(tiers) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, tp := range tiers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tier_performance (wallet, tier_usd, roi_percentage, win_rate,
				n_trades, n_winners, n_losers, n_neutral, total_invested, is_optimal_tier, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (wallet, tier_usd) DO UPDATE SET
				roi_percentage = EXCLUDED.roi_percentage,
				win_rate = EXCLUDED.win_rate,
				n_trades = EXCLUDED.n_trades,
				n_winners = EXCLUDED.n_winners,
				n_losers = EXCLUDED.n_losers,
				n_neutral = EXCLUDED.n_neutral,
				total_invested = EXCLUDED.total_invested,
				is_optimal_tier = EXCLUDED.is_optimal_tier,
				updated_at = EXCLUDED.updated_at`,
			tp.Wallet, tp.TierUSD, tp.ROIPercentage, tp.WinRate,
			tp.Trades, tp.Winners, tp.Losers, tp.Neutrals, tp.TotalInvested, tp.IsOptimal, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to upsert tier %s/%d: %w", tp.Wallet, tp.TierUSD, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListTierPerformance(ctx context.Context, wallet string) ([]models.TierPerformance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT wallet, tier_usd, roi_percentage, win_rate,
		       n_trades, n_winners, n_losers, n_neutral, total_invested, is_optimal_tier
		FROM tier_performance
		WHERE wallet = $1
		ORDER BY tier_usd ASC`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TierPerformance
	for rows.Next() {
		var tp models.TierPerformance
		if err := rows.Scan(&tp.Wallet, &tp.TierUSD, &tp.ROIPercentage, &tp.WinRate,
			&tp.Trades, &tp.Winners, &tp.Losers, &tp.Neutrals, &tp.TotalInvested, &tp.IsOptimal); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// UpsertSmartWallet records an election result.
func (r *Repository) UpsertSmartWallet(ctx context.Context, sw models.SmartWallet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO smart_wallets (wallet, optimal_threshold_tier, quality_score, threshold_status,
			optimal_roi, optimal_win_rate, optimal_trades, optimal_winners, optimal_losers, optimal_neutral,
			global_roi, global_win_rate, global_trades, j_score_max, j_score_avg, reliable_tiers, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (wallet) DO UPDATE SET
			optimal_threshold_tier = EXCLUDED.optimal_threshold_tier,
			quality_score = EXCLUDED.quality_score,
			threshold_status = EXCLUDED.threshold_status,
			optimal_roi = EXCLUDED.optimal_roi,
			optimal_win_rate = EXCLUDED.optimal_win_rate,
			optimal_trades = EXCLUDED.optimal_trades,
			optimal_winners = EXCLUDED.optimal_winners,
			optimal_losers = EXCLUDED.optimal_losers,
			optimal_neutral = EXCLUDED.optimal_neutral,
			global_roi = EXCLUDED.global_roi,
			global_win_rate = EXCLUDED.global_win_rate,
			global_trades = EXCLUDED.global_trades,
			j_score_max = EXCLUDED.j_score_max,
			j_score_avg = EXCLUDED.j_score_avg,
			reliable_tiers = EXCLUDED.reliable_tiers,
			updated_at = EXCLUDED.updated_at`,
		sw.Wallet, sw.OptimalTier, sw.QualityScore, sw.Status,
		sw.OptimalROI, sw.OptimalWinRate, sw.OptimalTrades, sw.OptimalWinners, sw.OptimalLosers, sw.OptimalNeutrals,
		sw.GlobalROI, sw.GlobalWinRate, sw.GlobalTrades, sw.JScoreMax, sw.JScoreAvg, sw.ReliableTiers, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert smart wallet %s: %w", sw.Wallet, err)
	}
	return nil
}

// RemoveSmartWallet drops a wallet from the elected set, e.g. when a rescore
// lands below the quality floor.
func (r *Repository) RemoveSmartWallet(ctx context.Context, wallet string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM smart_wallets WHERE wallet = $1`, wallet)
	return err
}

func (r *Repository) GetSmartWallet(ctx context.Context, wallet string) (*models.SmartWallet, error) {
	rows, err := r.listSmartWallets(ctx, `WHERE wallet = $1`, wallet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *Repository) ListSmartWallets(ctx context.Context) ([]models.SmartWallet, error) {
	return r.listSmartWallets(ctx, ``)
}

func (r *Repository) listSmartWallets(ctx context.Context, where string, args ...any) ([]models.SmartWallet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT wallet, optimal_threshold_tier, quality_score, threshold_status,
		       optimal_roi, optimal_win_rate, optimal_trades, optimal_winners, optimal_losers, optimal_neutral,
		       global_roi, global_win_rate, global_trades, j_score_max, j_score_avg, reliable_tiers
		FROM smart_wallets `+where+`
		ORDER BY quality_score DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SmartWallet
	for rows.Next() {
		var sw models.SmartWallet
		if err := rows.Scan(&sw.Wallet, &sw.OptimalTier, &sw.QualityScore, &sw.Status,
			&sw.OptimalROI, &sw.OptimalWinRate, &sw.OptimalTrades, &sw.OptimalWinners, &sw.OptimalLosers, &sw.OptimalNeutrals,
			&sw.GlobalROI, &sw.GlobalWinRate, &sw.GlobalTrades, &sw.JScoreMax, &sw.JScoreAvg, &sw.ReliableTiers); err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// ListSmartWalletsWithValue joins the elected set with the wallet rollup; the
// migration handler needs the current portfolio value alongside the election.
func (r *Repository) ListSmartWalletsWithValue(ctx context.Context) ([]models.Wallet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.address, w.discovery_period, w.total_portfolio_value_usd, w.token_count,
		       w.is_active, w.is_scored, w.transactions_extracted, w.created_at, w.updated_at
		FROM wallets w
		JOIN smart_wallets sw ON sw.wallet = w.address
		WHERE w.is_active = TRUE
		ORDER BY w.total_portfolio_value_usd DESC`)
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
