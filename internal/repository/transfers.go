package repository

import (
	"context"
	"fmt"
	"time"

	"walletintel/internal/models"

	"github.com/jackc/pgx/v5"
)

const transferColumns = `wallet, transaction_hash, symbol, contract_address, fungible_id,
	direction, action_type, quantity, price_per_token, total_value_usd,
	inherited_price_per_token, is_inherited_from_wallet, counterparty_address,
	timestamp, block_number`

// InsertTransfers appends rows to the transfer log atomically. Duplicate
// (wallet, transaction_hash, fungible_id) rows are silently skipped, so
// re-ingesting a provider response is a no-op.
func (r *Repository) InsertTransfers(ctx context.Context, transfers []models.Transfer) (int64, error) {
	if len(transfers) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, t := range transfers {
		tag, err := tx.Exec(ctx, `
			INSERT INTO transfers (`+transferColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (wallet, transaction_hash, fungible_id) DO NOTHING`,
			t.Wallet, t.TransactionHash, t.Symbol, t.ContractAddress, t.FungibleID,
			t.Direction, t.ActionType, t.Quantity, t.PricePerToken, t.TotalValueUSD,
			t.InheritedPrice, t.InheritedFrom, t.Counterparty,
			t.Timestamp, t.BlockNumber,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transfer %s/%s: %w", t.Wallet, t.TransactionHash, err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, tx.Commit(ctx)
}

// ReplaceHistory swaps the full transfer set for one (wallet, fungible_id) in
// a single transaction. Used after pagination boundaries shift: delete plus
// fresh insert sidesteps dedup edge cases.
func (r *Repository) ReplaceHistory(ctx context.Context, wallet, fungibleID string, transfers []models.Transfer) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM transfers WHERE wallet = $1 AND fungible_id = $2`,
		wallet, fungibleID); err != nil {
		return fmt.Errorf("failed to clear history %s/%s: %w", wallet, fungibleID, err)
	}

	for _, t := range transfers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transfers (`+transferColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (wallet, transaction_hash, fungible_id) DO NOTHING`,
			t.Wallet, t.TransactionHash, t.Symbol, t.ContractAddress, t.FungibleID,
			t.Direction, t.ActionType, t.Quantity, t.PricePerToken, t.TotalValueUSD,
			t.InheritedPrice, t.InheritedFrom, t.Counterparty,
			t.Timestamp, t.BlockNumber,
		); err != nil {
			return fmt.Errorf("failed to insert transfer %s/%s: %w", t.Wallet, t.TransactionHash, err)
		}
	}

	return tx.Commit(ctx)
}

// ListTransfers returns the event stream for one (wallet, fungible_id) in the
// deterministic processing order.
func (r *Repository) ListTransfers(ctx context.Context, wallet, fungibleID string) ([]models.Transfer, error) {
	return r.listTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE wallet = $1 AND fungible_id = $2
		ORDER BY timestamp ASC, block_number ASC, transaction_hash ASC`,
		wallet, fungibleID)
}

// ListWalletTransfers returns every transfer of a wallet, ordered for
// deterministic per-token grouping by the caller.
func (r *Repository) ListWalletTransfers(ctx context.Context, wallet string) ([]models.Transfer, error) {
	return r.listTransfers(ctx, `
		SELECT `+transferColumns+`
		FROM transfers
		WHERE wallet = $1
		ORDER BY fungible_id ASC, timestamp ASC, block_number ASC, transaction_hash ASC`,
		wallet)
}

func (r *Repository) listTransfers(ctx context.Context, query string, args ...any) ([]models.Transfer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.Wallet, &t.TransactionHash, &t.Symbol, &t.ContractAddress, &t.FungibleID,
			&t.Direction, &t.ActionType, &t.Quantity, &t.PricePerToken, &t.TotalValueUSD,
			&t.InheritedPrice, &t.InheritedFrom, &t.Counterparty,
			&t.Timestamp, &t.BlockNumber); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// WeightedAvgBuyPrice computes a wallet's quantity-weighted average entry
// price for a symbol from its buy rows with a known nonzero price.
func (r *Repository) WeightedAvgBuyPrice(ctx context.Context, wallet, symbol string) (float64, bool, error) {
	var avg *float64
	err := r.db.QueryRow(ctx, `
		SELECT SUM(quantity * price_per_token) / NULLIF(SUM(quantity), 0)
		FROM transfers
		WHERE wallet = $1 AND symbol = $2 AND action_type = 'buy'
		  AND price_per_token IS NOT NULL AND price_per_token > 0`,
		wallet, symbol).Scan(&avg)
	if err == pgx.ErrNoRows || (err == nil && avg == nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return *avg, true, nil
}

// InheritPrices stamps an inherited cost basis onto a recipient wallet's
// inbound rows for one symbol. The IS NULL guard makes repeated runs
// converge: a second invocation touches zero rows. price_per_token is never
// modified here.
func (r *Repository) InheritPrices(ctx context.Context, parent, child, symbol string, price float64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE transfers
		SET inherited_price_per_token = $4, is_inherited_from_wallet = $1
		WHERE wallet = $2 AND symbol = $3 AND direction = 'in'
		  AND inherited_price_per_token IS NULL`,
		parent, child, symbol, price)
	if err != nil {
		return 0, fmt.Errorf("failed to inherit prices %s->%s %s: %w", parent, child, symbol, err)
	}
	return tag.RowsAffected(), nil
}

// RecentSmartWalletBuys returns buys by elected wallets inside the consensus
// window, newest last. The chain comes from the buyer's position row; buys
// for tokens no longer tracked there carry an empty chain.
func (r *Repository) RecentSmartWalletBuys(ctx context.Context, since time.Time) ([]models.ConsensusBuy, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.wallet, t.symbol, t.contract_address, COALESCE(tp.chain, ''), t.fungible_id,
		       t.quantity, t.total_value_usd, COALESCE(t.price_per_token, 0), t.timestamp,
		       sw.optimal_threshold_tier, sw.quality_score, sw.threshold_status
		FROM transfers t
		JOIN smart_wallets sw ON sw.wallet = t.wallet
		LEFT JOIN token_positions tp ON tp.wallet = t.wallet AND tp.fungible_id = t.fungible_id
		WHERE t.action_type = 'buy' AND t.timestamp >= $1
		ORDER BY t.timestamp ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buys []models.ConsensusBuy
	for rows.Next() {
		var b models.ConsensusBuy
		if err := rows.Scan(&b.Wallet, &b.Symbol, &b.ContractAddress, &b.Chain, &b.FungibleID,
			&b.Quantity, &b.ValueUSD, &b.PricePerToken, &b.Timestamp,
			&b.OptimalTier, &b.QualityScore, &b.Status); err != nil {
			return nil, err
		}
		buys = append(buys, b)
	}
	return buys, rows.Err()
}
