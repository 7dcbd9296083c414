package scoring

import (
	"walletintel/internal/models"
)

type TierConfig struct {
	Grid []int
	// WinROI / LossROI bound the tier win and loss counting in percent.
	WinROI  float64
	LossROI float64
	// AirdropMaxInvested excludes zero-cost positions, as in the scorer.
	AirdropMaxInvested float64
}

func DefaultTierConfig() TierConfig {
	return TierConfig{
		Grid:               []int{3000, 4000, 5000, 6000, 7000, 8000, 9000, 10000, 11000, 12000},
		WinROI:             50,
		LossROI:            -20,
		AirdropMaxInvested: 0.01,
	}
}

// AnalyzeTiers computes a wallet's performance at every grid tier,
// considering only tokens whose total investment reaches the tier. Empty
// tiers produce zero rows so the stored grid is always complete.
func AnalyzeTiers(wallet string, analytics []models.TokenAnalytics, cfg TierConfig) []models.TierPerformance {
	trades := Trades(analytics, cfg.AirdropMaxInvested)

	out := make([]models.TierPerformance, 0, len(cfg.Grid))
	for _, tier := range cfg.Grid {
		tp := models.TierPerformance{Wallet: wallet, TierUSD: tier}

		var invested, weightedSum float64
		for _, t := range trades {
			if t.TotalInvested < float64(tier) {
				continue
			}
			tp.Trades++
			invested += t.TotalInvested
			weightedSum += t.TotalInvested * t.ROIPercentage
			switch {
			case t.ROIPercentage >= cfg.WinROI:
				tp.Winners++
			case t.ROIPercentage < cfg.LossROI:
				tp.Losers++
			default:
				tp.Neutrals++
			}
		}

		if tp.Trades > 0 && invested > 0 {
			tp.ROIPercentage = weightedSum / invested
			tp.WinRate = float64(tp.Winners) / float64(tp.Trades) * 100
			tp.TotalInvested = invested
		}

		out = append(out, tp)
	}
	return out
}
