package scoring

import (
	"testing"

	"walletintel/internal/models"
)

func TestAnalyzeTiersFullGrid(t *testing.T) {
	t.Parallel()

	analytics := []models.TokenAnalytics{
		mkAnalytics("AAA", 3500, 100),
		mkAnalytics("BBB", 5000, 60),
		mkAnalytics("CCC", 4500, -30),
	}

	cfg := DefaultTierConfig()
	rows := AnalyzeTiers("0xwallet", analytics, cfg)

	if len(rows) != len(cfg.Grid) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(cfg.Grid))
	}

	byTier := make(map[int]models.TierPerformance, len(rows))
	for _, r := range rows {
		if r.Wallet != "0xwallet" {
			t.Fatalf("Wallet = %q, want 0xwallet", r.Wallet)
		}
		byTier[r.TierUSD] = r
	}

	t3000 := byTier[3000]
	if t3000.Trades != 3 || t3000.Winners != 2 || t3000.Losers != 1 {
		t.Fatalf("tier 3000 = %+v, want 3 trades, 2 winners, 1 loser", t3000)
	}
	wantROI := (3500*100.0 + 5000*60 + 4500*-30) / 13000
	if !almostEqual(t3000.ROIPercentage, wantROI) {
		t.Fatalf("tier 3000 ROI = %v, want %v", t3000.ROIPercentage, wantROI)
	}

	t4000 := byTier[4000]
	if t4000.Trades != 2 || t4000.Winners != 1 || t4000.Losers != 1 {
		t.Fatalf("tier 4000 = %+v, want 2 trades, 1 winner, 1 loser", t4000)
	}
	if !almostEqual(t4000.WinRate, 50) {
		t.Fatalf("tier 4000 WinRate = %v, want 50", t4000.WinRate)
	}

	t5000 := byTier[5000]
	if t5000.Trades != 1 || t5000.Winners != 1 {
		t.Fatalf("tier 5000 = %+v, want the single 5000 position", t5000)
	}

	// No token reaches 6000; those tiers must still be present as zero rows.
	for _, tier := range []int{6000, 7000, 8000, 9000, 10000, 11000, 12000} {
		r, ok := byTier[tier]
		if !ok {
			t.Fatalf("tier %d missing from grid", tier)
		}
		if r.Trades != 0 || r.ROIPercentage != 0 || r.TotalInvested != 0 {
			t.Fatalf("tier %d = %+v, want zero row", tier, r)
		}
	}
}

func TestAnalyzeTiersLossBoundary(t *testing.T) {
	t.Parallel()

	// -20 is neutral; losses start strictly below it.
	analytics := []models.TokenAnalytics{
		mkAnalytics("AAA", 4000, -20),
		mkAnalytics("BBB", 4000, -20.01),
		mkAnalytics("CCC", 4000, 50),
	}

	rows := AnalyzeTiers("0xwallet", analytics, DefaultTierConfig())
	t3000 := rows[0]
	if t3000.TierUSD != 3000 {
		t.Fatalf("rows[0].TierUSD = %d, want 3000", t3000.TierUSD)
	}
	if t3000.Winners != 1 || t3000.Losers != 1 || t3000.Neutrals != 1 {
		t.Fatalf("tier 3000 = %+v, want 1 winner, 1 loser, 1 neutral", t3000)
	}
}
