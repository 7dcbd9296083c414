package scoring

import (
	"math"
	"sort"

	"walletintel/internal/models"
)

type ThresholdConfig struct {
	MinTrades  int
	MinWinRate float64
	// ROICap bounds the ROI term of the J-score in percent.
	ROICap float64
	// AlphaBayesian smooths small-sample win rates toward the 0.5 prior.
	AlphaBayesian float64
	// Percentile and StabilityDrop shape the plateau search: a tier joins
	// the walk while its J stays within StabilityDrop of the maximum.
	Percentile    float64
	StabilityDrop float64
	// QualitySlope / QualityMidpoint parameterize the sigmoid mapping the
	// plateau's mean J to a [0,1] quality score; the midpoint sits at the
	// J a barely-reliable wallet produces, so quality lands near 0.5
	// there.
	QualitySlope    float64
	QualityMidpoint float64
}

func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MinTrades:       5,
		MinWinRate:      20,
		ROICap:          500,
		AlphaBayesian:   30,
		Percentile:      60,
		StabilityDrop:   0.10,
		QualitySlope:    4.0,
		QualityMidpoint: 0.45,
	}
}

// GlobalMetrics is the whole-portfolio snapshot stored beside the
// optimal-tier metrics.
type GlobalMetrics struct {
	ROI     float64
	WinRate float64
	Trades  int
}

// jScore folds one reliable tier into a single comparable number: capped
// ROI, Bayesian-smoothed win rate and a log trade-volume term.
func jScore(tp models.TierPerformance, cfg ThresholdConfig) float64 {
	roiNorm := math.Min(1, tp.ROIPercentage/cfg.ROICap)
	smoothedWinRate := (float64(tp.Winners) + cfg.AlphaBayesian*0.5) / (float64(tp.Trades) + cfg.AlphaBayesian)
	return 0.6*roiNorm + 0.4*smoothedWinRate + 0.1*math.Log(1+float64(tp.Trades))
}

// percentile returns the p-th percentile of vals with linear interpolation.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// selectPlateau finds the optimal threshold on the reliable tiers. The
// anchor is the largest tier whose J reaches the P-th percentile and sits
// within StabilityDrop of the maximum; the walk then descends the grid while
// that stability holds. The returned plateau is ascending; the optimal
// threshold is its smallest tier, the largest bet the wallet sustains.
func selectPlateau(tiersAsc []int, j map[int]float64, cfg ThresholdConfig) (int, []int) {
	if len(tiersAsc) == 0 {
		return 0, nil
	}

	vals := make([]float64, 0, len(j))
	for _, t := range tiersAsc {
		vals = append(vals, j[t])
	}
	pN := percentile(vals, cfg.Percentile)

	maxJ := vals[0]
	for _, v := range vals {
		if v > maxJ {
			maxJ = v
		}
	}
	floor := maxJ * (1 - cfg.StabilityDrop)

	anchor := -1
	for i := len(tiersAsc) - 1; i >= 0; i-- {
		t := tiersAsc[i]
		if j[t] >= pN && j[t] >= floor {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		// The maximum itself always satisfies both conditions, so this
		// only happens with an empty reliable set.
		return 0, nil
	}

	start := anchor
	for start > 0 && j[tiersAsc[start-1]] >= floor {
		start--
	}

	plateau := append([]int(nil), tiersAsc[start:anchor+1]...)
	return plateau[0], plateau
}

// SelectThreshold elects or rejects one wallet from its tier grid. The
// returned SmartWallet always carries the computed status; elected reports
// whether it belongs in the smart wallet set.
func SelectThreshold(wallet string, period models.DiscoveryPeriod, tiers []models.TierPerformance, global GlobalMetrics, cfg ThresholdConfig) (models.SmartWallet, bool) {
	sw := models.SmartWallet{
		Wallet:        wallet,
		GlobalROI:     global.ROI,
		GlobalWinRate: global.WinRate,
		GlobalTrades:  global.Trades,
	}

	reliable := make(map[int]models.TierPerformance)
	var tiersAsc []int
	for _, tp := range tiers {
		if tp.Trades >= cfg.MinTrades && tp.WinRate >= cfg.MinWinRate && tp.ROIPercentage > 0 {
			reliable[tp.TierUSD] = tp
			tiersAsc = append(tiersAsc, tp.TierUSD)
		}
	}
	sort.Ints(tiersAsc)
	sw.ReliableTiers = len(tiersAsc)

	if len(tiersAsc) == 0 {
		sw.Status = models.ThresholdNoReliableTiers
		return sw, false
	}

	j := make(map[int]float64, len(tiersAsc))
	for _, t := range tiersAsc {
		j[t] = jScore(reliable[t], cfg)
	}

	tau, plateau := selectPlateau(tiersAsc, j, cfg)
	if len(plateau) == 0 {
		sw.Status = models.ThresholdNoReliableTiers
		return sw, false
	}

	var jSum, jMax, plateauSum float64
	for _, t := range tiersAsc {
		jSum += j[t]
		if j[t] > jMax {
			jMax = j[t]
		}
	}
	for _, t := range plateau {
		plateauSum += j[t]
	}
	meanJ := plateauSum / float64(len(plateau))

	quality := 1 / (1 + math.Exp(-cfg.QualitySlope*(meanJ-cfg.QualityMidpoint)))
	quality = clamp(quality, 0, 1)

	opt := reliable[tau]
	sw.OptimalTier = tau
	sw.QualityScore = quality
	sw.OptimalROI = opt.ROIPercentage
	sw.OptimalWinRate = opt.WinRate
	sw.OptimalTrades = opt.Trades
	sw.OptimalWinners = opt.Winners
	sw.OptimalLosers = opt.Losers
	sw.OptimalNeutrals = opt.Neutrals
	sw.JScoreMax = jMax
	sw.JScoreAvg = jSum / float64(len(tiersAsc))

	sw.Status = statusForQuality(quality)
	elected := sw.Status != models.ThresholdNeutral

	// Elected migration and manual wallets keep their origin visible in
	// the status column.
	if elected {
		switch period {
		case models.PeriodMigration:
			sw.Status = models.ThresholdMigration
		case models.PeriodManual:
			sw.Status = models.ThresholdManual
		}
	}

	return sw, elected
}

func statusForQuality(q float64) models.ThresholdStatus {
	switch {
	case q >= 0.9:
		return models.ThresholdExceptional
	case q >= 0.7:
		return models.ThresholdExcellent
	case q >= 0.5:
		return models.ThresholdGood
	case q >= 0.3:
		return models.ThresholdAverage
	case q >= 0.1:
		return models.ThresholdPoor
	default:
		return models.ThresholdNeutral
	}
}
