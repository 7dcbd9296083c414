package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"walletintel/internal/models"
)

// InsertMigrationIgnore records a detected migration. Returns true when the
// row is new; a replay of the same (old, new, date) is a no-op.
func (r *Repository) InsertMigrationIgnore(ctx context.Context, m models.WalletMigration) (bool, error) {
	tokensJSON, err := json.Marshal(m.Tokens)
	if err != nil {
		return false, fmt.Errorf("failed to marshal migration tokens: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO wallet_migrations (old_wallet, new_wallet, migration_date,
			tokens_transferred, total_value_transferred, transfer_percentage, is_validated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (old_wallet, new_wallet, migration_date) DO NOTHING`,
		m.OldWallet, m.NewWallet, m.MigrationDate,
		tokensJSON, m.TotalValue, m.TransferPct, m.IsValidated,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert migration %s->%s: %w", m.OldWallet, m.NewWallet, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListMigrationsFrom returns all recorded migrations out of a wallet.
func (r *Repository) ListMigrationsFrom(ctx context.Context, oldWallet string) ([]models.WalletMigration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT old_wallet, new_wallet, migration_date, tokens_transferred,
		       total_value_transferred, transfer_percentage, is_validated
		FROM wallet_migrations
		WHERE old_wallet = $1
		ORDER BY migration_date ASC`, oldWallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WalletMigration
	for rows.Next() {
		var m models.WalletMigration
		var tokensJSON []byte
		if err := rows.Scan(&m.OldWallet, &m.NewWallet, &m.MigrationDate, &tokensJSON,
			&m.TotalValue, &m.TransferPct, &m.IsValidated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tokensJSON, &m.Tokens); err != nil {
			return nil, fmt.Errorf("failed to unmarshal migration tokens: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MigrationChain follows old->new links starting from a wallet and returns
// the addresses in order, the starting wallet first. Cycles stop the walk.
func (r *Repository) MigrationChain(ctx context.Context, wallet string) ([]string, error) {
	chain := []string{wallet}
	seen := map[string]bool{wallet: true}

	current := wallet
	for {
		var next string
		err := r.db.QueryRow(ctx, `
			SELECT new_wallet FROM wallet_migrations
			WHERE old_wallet = $1
			ORDER BY migration_date DESC
			LIMIT 1`, current).Scan(&next)
		if err != nil {
			break
		}
		if seen[next] {
			break
		}
		chain = append(chain, next)
		seen[next] = true
		current = next
	}

	return chain, nil
}
