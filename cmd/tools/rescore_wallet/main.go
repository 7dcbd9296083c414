// Rescore a single wallet outside the batch scoring pass: rebuild its token
// analytics from the transfer log, re-run qualification, tiers and threshold
// selection. Useful after a manual history fix.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"walletintel/internal/config"
	"walletintel/internal/market"
	"walletintel/internal/pipeline"
	"walletintel/internal/provider"
	"walletintel/internal/repository"
)

func main() {
	var (
		configPath string
		wallet     string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the yaml config file")
	flag.StringVar(&wallet, "wallet", "", "wallet address to rescore")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := repo.GetWallet(ctx, wallet)
	if err != nil {
		log.Fatalf("load wallet: %v", err)
	}
	if w == nil {
		log.Fatalf("wallet %s is not registered", wallet)
	}

	dex := market.NewDexScreener()
	scorer := pipeline.NewScoring(repo, market.NewResolver(dex, market.NewCoinGecko(), dex), 1)

	started := time.Now()
	qw, elected, err := scorer.ScoreOne(ctx, *w)
	if err != nil {
		log.Fatalf("[rescore_wallet] %s failed: %v", wallet, err)
	}

	switch {
	case qw == nil:
		log.Printf("[rescore_wallet] %s did not qualify", wallet)
	case elected:
		log.Printf("[rescore_wallet] %s qualified (score %.1f, %s) and is elected", wallet, qw.Score, qw.Classification)
	default:
		log.Printf("[rescore_wallet] %s qualified (score %.1f, %s) but no tier elected it", wallet, qw.Score, qw.Classification)
	}
	log.Printf("[rescore_wallet] done in %s", time.Since(started).Truncate(time.Millisecond))
}
