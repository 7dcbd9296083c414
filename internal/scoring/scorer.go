// Package scoring qualifies wallets, analyzes them across investment tiers
// and elects smart wallets through optimal-threshold selection.
package scoring

import (
	"math"
	"sort"

	"walletintel/internal/market"
	"walletintel/internal/models"
)

type ScorerConfig struct {
	MinScore       float64
	MinWeightedROI float64
	MinTrades      int
	// WinROI is the win-rate counting threshold in percent.
	WinROI float64
	// SignificantWinROI and MinSignificantWins gate out wallets without
	// repeated meaningful wins.
	SignificantWinROI  float64
	MinSignificantWins int
	// ConcentrationTopN / ConcentrationMaxRatio reject wallets whose
	// positive ROI mass sits almost entirely in a handful of tokens.
	ConcentrationTopN     int
	ConcentrationMaxRatio float64
	// AirdropMaxInvested excludes zero-cost positions from the trade set.
	AirdropMaxInvested float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MinScore:              20,
		MinWeightedROI:        50,
		MinTrades:             3,
		WinROI:                80,
		SignificantWinROI:     50,
		MinSignificantWins:    3,
		ConcentrationTopN:     3,
		ConcentrationMaxRatio: 0.99,
		AirdropMaxInvested:    0.01,
	}
}

const (
	roiScoreBase         = 50
	roiScoreDivisor      = 4.5
	activityLogMaxTrades = 21 // log(1+n) saturates at n=20
)

// Trades filters analytics rows down to the scored trade set: real
// investments only, stablecoins and airdrops excluded.
func Trades(analytics []models.TokenAnalytics, airdropMaxInvested float64) []models.TokenAnalytics {
	var trades []models.TokenAnalytics
	for _, a := range analytics {
		if a.TotalInvested <= airdropMaxInvested {
			continue
		}
		if market.IsStablecoin(a.Symbol) {
			continue
		}
		trades = append(trades, a)
	}
	return trades
}

// ScoreWallet computes the composite score for one wallet from its analytics
// rows. Returns (nil, false) when any qualification gate fails.
func ScoreWallet(wallet string, analytics []models.TokenAnalytics, cfg ScorerConfig) (*models.QualifiedWallet, bool) {
	trades := Trades(analytics, cfg.AirdropMaxInvested)
	n := len(trades)
	if n < cfg.MinTrades {
		return nil, false
	}

	significant := 0
	for _, t := range trades {
		if t.ROIPercentage > cfg.SignificantWinROI {
			significant++
		}
	}
	if significant < cfg.MinSignificantWins {
		return nil, false
	}

	// Concentration guard: if the top-N positive contributions carry
	// nearly all the positive ROI mass, the track record is one lucky
	// trade wearing a portfolio.
	var positive []float64
	for _, t := range trades {
		if t.ROIPercentage > 0 {
			positive = append(positive, t.TotalInvested*t.ROIPercentage)
		}
	}
	if len(positive) >= cfg.ConcentrationTopN {
		sort.Sort(sort.Reverse(sort.Float64Slice(positive)))
		var total, top float64
		for i, c := range positive {
			total += c
			if i < cfg.ConcentrationTopN {
				top += c
			}
		}
		if total > 0 && top/total > cfg.ConcentrationMaxRatio {
			return nil, false
		}
	}

	var totalInvested, weightedSum float64
	winners, losers := 0, 0
	for _, t := range trades {
		totalInvested += t.TotalInvested
		weightedSum += t.TotalInvested * t.ROIPercentage
		switch t.Status {
		case models.StatusWinner, models.StatusAirdropWinner:
			winners++
		case models.StatusLoser:
			losers++
		}
	}
	if totalInvested <= 0 {
		return nil, false
	}

	weightedROI := weightedSum / totalInvested
	if weightedROI < cfg.MinWeightedROI {
		return nil, false
	}

	winCount := 0
	for _, t := range trades {
		if t.ROIPercentage >= cfg.WinROI {
			winCount++
		}
	}
	winRate := float64(winCount) / float64(n)

	roiScore := clamp((weightedROI-roiScoreBase)/roiScoreDivisor, 0, 100)
	activityScore := clamp(math.Log(1+float64(n))/math.Log(activityLogMaxTrades)*100, 0, 100)
	successScore := winRate * 100

	score := 0.6*roiScore + 0.3*successScore + 0.1*activityScore
	if score < cfg.MinScore {
		return nil, false
	}

	qualityBonus := clamp((float64(winners)-float64(losers))/float64(n)*50, 0, 50)

	return &models.QualifiedWallet{
		Wallet:         wallet,
		Score:          score,
		Classification: classify(score),
		WeightedROI:    weightedROI,
		WinRate:        winRate * 100,
		TradeCount:     n,
		Winners:        winners,
		Losers:         losers,
		Neutrals:       n - winners - losers,
		TotalInvested:  totalInvested,
		ROIScore:       roiScore,
		ActivityScore:  activityScore,
		SuccessScore:   successScore,
		QualityBonus:   qualityBonus,
	}, true
}

func classify(score float64) models.Classification {
	switch {
	case score >= 80:
		return models.ClassElite
	case score >= 60:
		return models.ClassExcellent
	case score >= 40:
		return models.ClassGood
	case score >= 20:
		return models.ClassAverage
	default:
		return models.ClassWeak
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
