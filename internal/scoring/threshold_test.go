package scoring

import (
	"testing"

	"walletintel/internal/models"
)

func mkTier(tier, trades, winners, losers int, roi float64) models.TierPerformance {
	return models.TierPerformance{
		Wallet:        "0xwallet",
		TierUSD:       tier,
		Trades:        trades,
		Winners:       winners,
		Losers:        losers,
		Neutrals:      trades - winners - losers,
		WinRate:       float64(winners) / float64(trades) * 100,
		ROIPercentage: roi,
		TotalInvested: float64(tier * trades),
	}
}

func TestPercentileInterpolation(t *testing.T) {
	t.Parallel()

	vals := []float64{0.35, 0.40, 0.50, 0.56, 0.57, 0.58, 0.60}
	// rank 0.6*(7-1) = 3.6 between 0.56 and 0.57.
	got := percentile(vals, 60)
	if !almostEqual(got, 0.566) {
		t.Fatalf("percentile(60) = %v, want 0.566", got)
	}
	if !almostEqual(percentile(vals, 0), 0.35) {
		t.Fatalf("percentile(0) = %v, want min", percentile(vals, 0))
	}
	if !almostEqual(percentile(vals, 100), 0.60) {
		t.Fatalf("percentile(100) = %v, want max", percentile(vals, 100))
	}
	if percentile(nil, 60) != 0 {
		t.Fatal("empty input must return 0")
	}
}

func TestSelectPlateauWalksDownFromAnchor(t *testing.T) {
	t.Parallel()

	// Maximum at 5000, floor 0.54. The anchor lands on 7000 (largest tier
	// above both the P60 of 0.566 and the floor); the walk extends down to
	// 4000 and stops at 3000, which falls under the floor.
	tiers := []int{3000, 4000, 5000, 6000, 7000, 8000, 9000}
	j := map[int]float64{
		3000: 0.50,
		4000: 0.56,
		5000: 0.60,
		6000: 0.58,
		7000: 0.57,
		8000: 0.40,
		9000: 0.35,
	}

	tau, plateau := selectPlateau(tiers, j, DefaultThresholdConfig())
	if tau != 4000 {
		t.Fatalf("tau = %d, want 4000", tau)
	}
	want := []int{4000, 5000, 6000, 7000}
	if len(plateau) != len(want) {
		t.Fatalf("plateau = %v, want %v", plateau, want)
	}
	for i := range want {
		if plateau[i] != want[i] {
			t.Fatalf("plateau = %v, want %v", plateau, want)
		}
	}
}

func TestSelectPlateauSingleTier(t *testing.T) {
	t.Parallel()

	tau, plateau := selectPlateau([]int{5000}, map[int]float64{5000: 0.7}, DefaultThresholdConfig())
	if tau != 5000 || len(plateau) != 1 {
		t.Fatalf("tau = %d plateau = %v, want the lone tier", tau, plateau)
	}
}

func TestSelectThresholdElects(t *testing.T) {
	t.Parallel()

	tiers := []models.TierPerformance{
		mkTier(3000, 10, 5, 2, 150),
		mkTier(4000, 8, 5, 1, 250),
		mkTier(5000, 6, 4, 1, 300),
		mkTier(8000, 2, 2, 0, 400),  // too few trades
		mkTier(9000, 6, 2, 3, -10),  // negative ROI
		mkTier(10000, 6, 1, 4, 100), // win rate under 20
	}

	global := GlobalMetrics{ROI: 180, WinRate: 55, Trades: 14}
	sw, elected := SelectThreshold("0xwallet", models.Period30d, tiers, global, DefaultThresholdConfig())

	if !elected {
		t.Fatal("wallet should be elected")
	}
	if sw.ReliableTiers != 3 {
		t.Fatalf("ReliableTiers = %d, want 3", sw.ReliableTiers)
	}
	// The 3000 tier's J falls under the stability floor of the 5000
	// maximum, so the plateau is {4000, 5000} and 4000 wins.
	if sw.OptimalTier != 4000 {
		t.Fatalf("OptimalTier = %d, want 4000", sw.OptimalTier)
	}
	if sw.Status != models.ThresholdExcellent {
		t.Fatalf("Status = %s, want %s", sw.Status, models.ThresholdExcellent)
	}
	if sw.OptimalTrades != 8 || sw.OptimalWinners != 5 {
		t.Fatalf("optimal tier metrics = %d trades / %d winners, want 8/5", sw.OptimalTrades, sw.OptimalWinners)
	}
	if sw.GlobalROI != 180 || sw.GlobalTrades != 14 {
		t.Fatalf("global snapshot not carried: %+v", sw)
	}
	if sw.QualityScore <= 0.7 || sw.QualityScore >= 0.9 {
		t.Fatalf("QualityScore = %v, want inside the EXCELLENT band", sw.QualityScore)
	}
	if sw.JScoreMax < sw.JScoreAvg {
		t.Fatalf("JScoreMax %v < JScoreAvg %v", sw.JScoreMax, sw.JScoreAvg)
	}
}

func TestSelectThresholdNoReliableTiers(t *testing.T) {
	t.Parallel()

	tiers := []models.TierPerformance{
		mkTier(3000, 2, 1, 0, 100),
		mkTier(4000, 6, 2, 3, -50),
	}

	sw, elected := SelectThreshold("0xwallet", models.Period30d, tiers, GlobalMetrics{}, DefaultThresholdConfig())
	if elected {
		t.Fatal("wallet must not be elected without reliable tiers")
	}
	if sw.Status != models.ThresholdNoReliableTiers {
		t.Fatalf("Status = %s, want %s", sw.Status, models.ThresholdNoReliableTiers)
	}
	if sw.ReliableTiers != 0 {
		t.Fatalf("ReliableTiers = %d, want 0", sw.ReliableTiers)
	}
}

func TestSelectThresholdPeriodStatusTags(t *testing.T) {
	t.Parallel()

	tiers := []models.TierPerformance{
		mkTier(3000, 10, 6, 2, 200),
		mkTier(4000, 8, 5, 1, 250),
	}

	for _, tc := range []struct {
		period models.DiscoveryPeriod
		want   models.ThresholdStatus
	}{
		{models.PeriodMigration, models.ThresholdMigration},
		{models.PeriodManual, models.ThresholdManual},
	} {
		sw, elected := SelectThreshold("0xwallet", tc.period, tiers, GlobalMetrics{}, DefaultThresholdConfig())
		if !elected {
			t.Fatalf("period %s: wallet should be elected", tc.period)
		}
		if sw.Status != tc.want {
			t.Fatalf("period %s: Status = %s, want %s", tc.period, sw.Status, tc.want)
		}
	}
}
