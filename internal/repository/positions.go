package repository

import (
	"context"
	"fmt"
	"time"

	"walletintel/internal/models"
)

// GetPositions returns a wallet's token positions keyed by fungible_id.
// With inPortfolioOnly, rows for exited tokens are skipped.
func (r *Repository) GetPositions(ctx context.Context, wallet string, inPortfolioOnly bool) (map[string]models.TokenPosition, error) {
	query := `
		SELECT wallet, fungible_id, symbol, contract_address, chain,
		       current_amount, current_usd_value, current_price_per_token, in_portfolio, last_updated
		FROM token_positions
		WHERE wallet = $1`
	if inPortfolioOnly {
		query += ` AND in_portfolio = TRUE`
	}

	rows, err := r.db.Query(ctx, query, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make(map[string]models.TokenPosition)
	for rows.Next() {
		var p models.TokenPosition
		if err := rows.Scan(&p.Wallet, &p.FungibleID, &p.Symbol, &p.ContractAddress, &p.Chain,
			&p.Amount, &p.USDValue, &p.PricePerToken, &p.InPortfolio, &p.LastUpdated); err != nil {
			return nil, err
		}
		positions[p.FungibleID] = p
	}
	return positions, rows.Err()
}

// HasTokenHistory reports whether a wallet ever held a token, including
// exited positions. Used to tell a re-entry (RETOUR) from a first entry.
func (r *Repository) HasTokenHistory(ctx context.Context, wallet, fungibleID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM token_positions WHERE wallet = $1 AND fungible_id = $2
		)`, wallet, fungibleID).Scan(&exists)
	return exists, err
}

// ApplyBalanceSnapshot commits one tracking pass for a wallet atomically:
// upserts the fresh positions, flags vanished tokens out of the portfolio,
// appends the change rows, and refreshes the wallet rollup. Everything or
// nothing, so a cancelled pass leaves the prior state intact.
func (r *Repository) ApplyBalanceSnapshot(ctx context.Context, wallet string, positions []models.TokenPosition, changes []models.PositionChange, totalValue float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE token_positions SET in_portfolio = FALSE, last_updated = NOW()
		WHERE wallet = $1`, wallet); err != nil {
		return fmt.Errorf("failed to reset positions for %s: %w", wallet, err)
	}

	for _, p := range positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO token_positions (wallet, fungible_id, symbol, contract_address, chain,
				current_amount, current_usd_value, current_price_per_token, in_portfolio, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
			ON CONFLICT (wallet, fungible_id) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				contract_address = EXCLUDED.contract_address,
				chain = EXCLUDED.chain,
				current_amount = EXCLUDED.current_amount,
				current_usd_value = EXCLUDED.current_usd_value,
				current_price_per_token = EXCLUDED.current_price_per_token,
				in_portfolio = TRUE,
				last_updated = EXCLUDED.last_updated`,
			p.Wallet, p.FungibleID, p.Symbol, p.ContractAddress, p.Chain,
			p.Amount, p.USDValue, p.PricePerToken, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to upsert position %s/%s: %w", p.Wallet, p.FungibleID, err)
		}
	}

	for _, c := range changes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO position_changes (session_id, wallet, symbol, contract_address, fungible_id,
				change_type, old_amount, new_amount, amount_change, change_percentage,
				old_usd_value, new_usd_value, usd_change, detected_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.SessionID, c.Wallet, c.Symbol, c.ContractAddress, c.FungibleID,
			c.Type, c.OldAmount, c.NewAmount, c.AmountChange, c.ChangePct,
			c.OldUSDValue, c.NewUSDValue, c.USDChange, c.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert position change %s/%s: %w", c.Wallet, c.FungibleID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET total_portfolio_value_usd = $2, token_count = $3, last_sync = NOW(), updated_at = NOW()
		WHERE address = $1`,
		wallet, totalValue, len(positions)); err != nil {
		return fmt.Errorf("failed to update wallet rollup %s: %w", wallet, err)
	}

	return tx.Commit(ctx)
}

// ListChangedTokens returns current positions whose tokens logged a change
// after cutoff with USD value at or above minUSD. These are the candidates
// for a selective history rebuild.
func (r *Repository) ListChangedTokens(ctx context.Context, wallet string, cutoff time.Time, minUSD float64) ([]models.TokenPosition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (tp.fungible_id)
		       tp.wallet, tp.fungible_id, tp.symbol, tp.contract_address, tp.chain,
		       tp.current_amount, tp.current_usd_value, tp.current_price_per_token, tp.in_portfolio, tp.last_updated
		FROM token_positions tp
		JOIN position_changes pc ON pc.wallet = tp.wallet AND pc.fungible_id = tp.fungible_id
		WHERE tp.wallet = $1 AND pc.detected_at >= $2 AND tp.current_usd_value >= $3
		ORDER BY tp.fungible_id`, wallet, cutoff, minUSD)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []models.TokenPosition
	for rows.Next() {
		var p models.TokenPosition
		if err := rows.Scan(&p.Wallet, &p.FungibleID, &p.Symbol, &p.ContractAddress, &p.Chain,
			&p.Amount, &p.USDValue, &p.PricePerToken, &p.InPortfolio, &p.LastUpdated); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
