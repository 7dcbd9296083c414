package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"walletintel/internal/models"
	"walletintel/internal/provider"
)

// SeedSource yields candidate wallet addresses for registration.
type SeedSource interface {
	Seeds(ctx context.Context) ([]string, error)
}

// FileSeedSource reads seeds from a JSON file: either a bare array of
// addresses or an object with a "wallets" array.
type FileSeedSource struct {
	Path string
}

func (f FileSeedSource) Seeds(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var addresses []string
	if err := json.Unmarshal(data, &addresses); err == nil {
		return addresses, nil
	}

	var wrapped struct {
		Wallets []string `json:"wallets"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", f.Path, err)
	}
	return wrapped.Wallets, nil
}

// DiscoveryStore is the persistence surface discovery needs.
type DiscoveryStore interface {
	InsertWalletIgnore(ctx context.Context, address string, period models.DiscoveryPeriod) (bool, error)
}

// Discovery registers seed wallets for extraction. Already-known addresses
// are skipped without touching their state.
type Discovery struct {
	store  DiscoveryStore
	source SeedSource
	period models.DiscoveryPeriod
}

func NewDiscovery(store DiscoveryStore, source SeedSource, period models.DiscoveryPeriod) *Discovery {
	return &Discovery{store: store, source: source, period: period}
}

func (d *Discovery) Run(ctx context.Context) (Summary, error) {
	seeds, err := d.source.Seeds(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: len(seeds)}
	registered := 0
	for _, addr := range seeds {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if !provider.ValidAddress(addr) {
			log.Printf("[Discovery] skipping malformed address %q", addr)
			sum.Failed++
			continue
		}
		inserted, err := d.store.InsertWalletIgnore(ctx, provider.NormalizeAddress(addr), d.period)
		if err != nil {
			log.Printf("[Discovery] register %s: %v", addr, err)
			sum.Failed++
			continue
		}
		sum.Succeeded++
		if inserted {
			registered++
		}
	}

	log.Printf("[Discovery] %d seeds: %d new, %d known, %d rejected",
		sum.Total, registered, sum.Succeeded-registered, sum.Failed)
	return sum, nil
}
