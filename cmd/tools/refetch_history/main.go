// Refetch a wallet's transfer history from the data provider and replace the
// stored log, either for one token or for every token currently held.
// Analytics are not touched; run rescore_wallet afterwards.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"walletintel/internal/config"
	"walletintel/internal/models"
	"walletintel/internal/provider"
	"walletintel/internal/repository"
)

func main() {
	var (
		configPath string
		wallet     string
		fungibleID string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the yaml config file")
	flag.StringVar(&wallet, "wallet", "", "wallet address to refetch")
	flag.StringVar(&fungibleID, "token", "", "fungible id to refetch (default: every held token)")
	flag.Parse()

	if !provider.ValidAddress(wallet) {
		log.Fatalf("-wallet must be a valid address, got %q", wallet)
	}
	wallet = provider.NormalizeAddress(wallet)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect repository: %v", err)
	}
	defer repo.Close()

	pool, err := provider.NewKeyPool(cfg.Provider.APIKeys, cfg.Provider.RatePerSecond, cfg.Provider.Burst)
	if err != nil {
		log.Fatalf("provider keys: %v", err)
	}
	timeout := time.Duration(cfg.Provider.RequestTimeout) * time.Second
	client := provider.NewZerionClient(cfg.Provider.BaseURL, pool, timeout, cfg.Provider.MaxRetries, cfg.Provider.PageSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := []string{fungibleID}
	if fungibleID == "" {
		balances, err := client.ListBalances(ctx, wallet)
		if err != nil {
			log.Fatalf("[refetch_history] list balances: %v", err)
		}
		tokens = tokens[:0]
		for _, b := range balances {
			tokens = append(tokens, b.FungibleID)
		}
		log.Printf("[refetch_history] %s holds %d tokens", wallet, len(tokens))
	}

	started := time.Now()
	replaced := 0
	for _, token := range tokens {
		var history []models.Transfer
		err := client.FetchFullHistory(ctx, wallet, token, func(page []models.Transfer) error {
			history = append(history, page...)
			return nil
		})
		if err != nil {
			log.Printf("[refetch_history] %s/%s fetch failed: %v", wallet, token, err)
			continue
		}
		prev, err := repo.ListTransfers(ctx, wallet, token)
		if err != nil {
			log.Fatalf("[refetch_history] %s/%s list failed: %v", wallet, token, err)
		}
		if err := repo.ReplaceHistory(ctx, wallet, token, history); err != nil {
			log.Fatalf("[refetch_history] %s/%s replace failed: %v", wallet, token, err)
		}
		log.Printf("[refetch_history] %s/%s: %d transfers (was %d)", wallet, token, len(history), len(prev))
		replaced++
	}

	log.Printf("[refetch_history] done: %d/%d tokens in %s", replaced, len(tokens), time.Since(started).Truncate(time.Second))
}
