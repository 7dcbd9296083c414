// Manually carry a parent wallet's weighted average buy price onto a child
// wallet's priceless acquisitions of one token. The migration handler does
// this automatically; this tool covers migrations recorded by hand.
package main

import (
	"context"
	"flag"
	"log"

	"walletintel/internal/config"
	"walletintel/internal/provider"
	"walletintel/internal/repository"
)

func main() {
	var (
		configPath string
		parent     string
		child      string
		symbol     string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to the yaml config file")
	flag.StringVar(&parent, "parent", "", "wallet whose cost basis is inherited")
	flag.StringVar(&child, "child", "", "wallet receiving the cost basis")
	flag.StringVar(&symbol, "symbol", "", "token symbol to inherit")
	flag.Parse()

	if !provider.ValidAddress(parent) || !provider.ValidAddress(child) {
		log.Fatal("-parent and -child must be valid addresses")
	}
	if symbol == "" {
		log.Fatal("-symbol is required")
	}
	parent = provider.NormalizeAddress(parent)
	child = provider.NormalizeAddress(child)

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

	price, ok, err := repo.WeightedAvgBuyPrice(ctx, parent, symbol)
	if err != nil {
		log.Fatalf("[inherit_prices] parent avg price: %v", err)
	}
	if !ok {
		log.Fatalf("[inherit_prices] %s has no priced %s buys to inherit from", parent, symbol)
	}

	n, err := repo.InheritPrices(ctx, parent, child, symbol, price)
	if err != nil {
		log.Fatalf("[inherit_prices] inherit failed: %v", err)
	}
	log.Printf("[inherit_prices] %s -> %s: stamped %d %s transfers at $%.6f", parent, child, n, symbol, price)
}
