package backtest

import (
	"context"
	"testing"
	"time"

	"walletintel/internal/consensus"
	"walletintel/internal/market"
	"walletintel/internal/models"
)

type fakeStore struct {
	buys []models.ConsensusBuy
}

func (s *fakeStore) RecentSmartWalletBuys(_ context.Context, since time.Time) ([]models.ConsensusBuy, error) {
	var out []models.ConsensusBuy
	for _, b := range s.buys {
		if !b.Timestamp.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeInfo struct{}

func (fakeInfo) TokenInfo(_ context.Context, contract, _ string) *market.TokenInfo {
	return &market.TokenInfo{Contract: contract, Chain: "ethereum", MarketCap: 2_000_000}
}

func mkBuy(wallet, contract string, usd float64, ts time.Time) models.ConsensusBuy {
	return models.ConsensusBuy{
		Wallet:          wallet,
		Symbol:          "TKN",
		ContractAddress: contract,
		Quantity:        usd,
		ValueUSD:        usd,
		Timestamp:       ts,
		OptimalTier:     4000,
		Status:          models.ThresholdGood,
	}
}

func TestRunEmitsOncePerToken(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(8 * 24 * time.Hour)
	// Two wallets enter 0xc1 on day two; the same pair shows up again on
	// day five, inside later windows, and must not re-emit.
	store := &fakeStore{buys: []models.ConsensusBuy{
		mkBuy("0xaaa", "0xc1", 5000, from.Add(30*time.Hour)),
		mkBuy("0xbbb", "0xc1", 6000, from.Add(40*time.Hour)),
		mkBuy("0xaaa", "0xc1", 5000, from.Add(120*time.Hour)),
		mkBuy("0xbbb", "0xc1", 6000, from.Add(121*time.Hour)),
	}}

	r := NewRunner(store, fakeInfo{}, Config{
		Detection: consensus.Config{MinWhales: 2, Window: 48 * time.Hour, McapMin: 100_000, McapMax: 100_000_000},
		Step:      12 * time.Hour,
	})

	report, err := r.Run(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Emissions) != 1 {
		t.Fatalf("emissions = %d, want 1 distinct token", len(report.Emissions))
	}
	e := report.Emissions[0]
	if e.Signal.ContractAddress != "0xc1" {
		t.Fatalf("emitted %s, want 0xc1", e.Signal.ContractAddress)
	}
	if e.Lag <= 0 || e.Lag > 48*time.Hour {
		t.Fatalf("Lag = %s, want inside the window", e.Lag)
	}
	if report.Windows == 0 {
		t.Fatal("no windows evaluated")
	}
}

func TestRunEmptyRange(t *testing.T) {
	t.Parallel()

	r := NewRunner(&fakeStore{}, fakeInfo{}, Config{
		Detection: consensus.Config{MinWhales: 2, Window: 48 * time.Hour},
	})
	now := time.Now()
	if _, err := r.Run(context.Background(), now, now); err == nil {
		t.Fatal("empty range must error")
	}
}

func TestRunBelowWhaleBarEmitsNothing(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{buys: []models.ConsensusBuy{
		mkBuy("0xaaa", "0xc1", 5000, from.Add(2*time.Hour)),
	}}

	r := NewRunner(store, fakeInfo{}, Config{
		Detection: consensus.Config{MinWhales: 2, Window: 48 * time.Hour, McapMin: 100_000, McapMax: 100_000_000},
		Step:      24 * time.Hour,
	})

	report, err := r.Run(context.Background(), from, from.Add(4*24*time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Emissions) != 0 {
		t.Fatalf("emissions = %+v, want none", report.Emissions)
	}
}
