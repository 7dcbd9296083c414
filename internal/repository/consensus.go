package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"walletintel/internal/models"
)

// UpsertConsensusSignal writes a signal keyed by (contract_address,
// period_start): a repeated detection in the same window updates the
// aggregates instead of duplicating the row.
func (r *Repository) UpsertConsensusSignal(ctx context.Context, s models.ConsensusSignal) error {
	walletsJSON, err := json.Marshal(s.Wallets)
	if err != nil {
		return fmt.Errorf("failed to marshal signal wallets: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO consensus_signals (symbol, contract_address, chain, signal_type, detection_date,
			whale_count, exceptional_count, total_investment, avg_entry_price,
			first_buy, last_buy, period_start, period_end, market_cap, liquidity,
			wallet_addresses, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (contract_address, period_start) DO UPDATE SET
			signal_type = EXCLUDED.signal_type,
			detection_date = EXCLUDED.detection_date,
			whale_count = EXCLUDED.whale_count,
			exceptional_count = EXCLUDED.exceptional_count,
			total_investment = EXCLUDED.total_investment,
			avg_entry_price = EXCLUDED.avg_entry_price,
			first_buy = EXCLUDED.first_buy,
			last_buy = EXCLUDED.last_buy,
			period_end = EXCLUDED.period_end,
			market_cap = EXCLUDED.market_cap,
			liquidity = EXCLUDED.liquidity,
			wallet_addresses = EXCLUDED.wallet_addresses,
			is_active = EXCLUDED.is_active`,
		s.Symbol, s.ContractAddress, s.Chain, s.SignalType, s.DetectionDate,
		s.WhaleCount, s.ExceptionalCount, s.TotalInvestment, s.AvgEntryPrice,
		s.FirstBuy, s.LastBuy, s.PeriodStart, s.PeriodEnd, s.MarketCap, s.Liquidity,
		walletsJSON, s.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert consensus signal %s: %w", s.ContractAddress, err)
	}
	return nil
}

func (r *Repository) ListActiveSignals(ctx context.Context, limit int) ([]models.ConsensusSignal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT symbol, contract_address, chain, signal_type, detection_date,
		       whale_count, exceptional_count, total_investment, avg_entry_price,
		       first_buy, last_buy, period_start, period_end, market_cap, liquidity,
		       wallet_addresses, is_active
		FROM consensus_signals
		WHERE is_active = TRUE
		ORDER BY detection_date DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConsensusSignal
	for rows.Next() {
		var s models.ConsensusSignal
		var walletsJSON []byte
		if err := rows.Scan(&s.Symbol, &s.ContractAddress, &s.Chain, &s.SignalType, &s.DetectionDate,
			&s.WhaleCount, &s.ExceptionalCount, &s.TotalInvestment, &s.AvgEntryPrice,
			&s.FirstBuy, &s.LastBuy, &s.PeriodStart, &s.PeriodEnd, &s.MarketCap, &s.Liquidity,
			&walletsJSON, &s.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(walletsJSON, &s.Wallets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal wallets: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeactivateStaleSignals flips is_active off for signals whose window closed
// before cutoff. Returns the number of rows touched.
func (r *Repository) DeactivateStaleSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE consensus_signals SET is_active = FALSE
		WHERE is_active = TRUE AND period_end < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
