// Package fifo reconstructs per-(wallet, token) profit and loss from the
// transfer log with first-in-first-out lot accounting.
package fifo

import (
	"log"
	"sort"

	"walletintel/internal/models"
)

type Config struct {
	// WinROI is the GAGNANT status threshold in percent.
	WinROI float64
	// AirdropMaxInvested is the invested floor below which a position
	// counts as pure airdrop.
	AirdropMaxInvested float64
	// AirdropROICap is the display ROI for profitable zero-cost positions,
	// where the real ratio is unbounded.
	AirdropROICap float64
	// MaxCurrentPrice guards against aberrant oracle quotes; above it the
	// price is treated as unknown.
	MaxCurrentPrice float64
}

func DefaultConfig() Config {
	return Config{
		WinROI:             80,
		AirdropMaxInvested: 0.01,
		AirdropROICap:      999_999,
		MaxCurrentPrice:    1_000_000,
	}
}

const epsilon = 1e-9

type lot struct {
	qty      float64
	unitCost float64
}

// Compute runs the lot accounting for one (wallet, token) event stream and
// returns the derived analytics row. The input is sorted defensively on the
// (timestamp, block_number, transaction_hash) tie-break so the result is
// bit-identical for any input permutation. currentPrice nil means the oracle
// has no quote; the surviving inventory is then valued at cost.
func Compute(transfers []models.Transfer, currentPrice *float64, cfg Config) models.TokenAnalytics {
	events := make([]models.Transfer, len(transfers))
	copy(events, transfers)
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.TransactionHash < b.TransactionHash
	})

	var (
		lots          []lot
		invested      float64
		realized      float64
		gainsAirdrops float64
		buyQty        float64
		buyCost       float64
		sellQty       float64
		sellProceeds  float64
		entries       int
		exits         int
	)

	a := models.TokenAnalytics{}

	for _, t := range events {
		if a.Wallet == "" {
			a.Wallet = t.Wallet
			a.Symbol = t.Symbol
			a.ContractAddress = t.ContractAddress
			a.FungibleID = t.FungibleID
			a.FirstTransaction = t.Timestamp
		}
		if t.Symbol != "" {
			a.Symbol = t.Symbol
		}
		a.LastTransaction = t.Timestamp

		switch t.ActionType {
		case models.ActionBuy, models.ActionTransferIn:
			entries++
			cost := t.EffectiveCost()
			if cost == nil {
				// Inbound with no cost basis: a free lot.
				lots = append(lots, lot{qty: t.Quantity, unitCost: 0})
				continue
			}
			lots = append(lots, lot{qty: t.Quantity, unitCost: *cost})
			invested += t.Quantity * *cost
			buyQty += t.Quantity
			buyCost += t.Quantity * *cost

		case models.ActionAirdrop:
			entries++
			lots = append(lots, lot{qty: t.Quantity, unitCost: 0})

		case models.ActionSell, models.ActionTransferOut:
			exits++
			remaining := t.Quantity
			salePrice := t.PricePerToken

			for remaining > epsilon && len(lots) > 0 {
				head := &lots[0]
				taken := min(head.qty, remaining)

				// An unquoted outflow moves inventory at cost:
				// no P&L, the lot just leaves.
				unit := head.unitCost
				if salePrice != nil {
					unit = *salePrice
				}

				if head.unitCost == 0 {
					gainsAirdrops += taken * unit
				} else {
					realized += taken * (unit - head.unitCost)
				}
				if salePrice != nil {
					sellQty += taken
					sellProceeds += taken * *salePrice
				}

				head.qty -= taken
				remaining -= taken
				if head.qty <= epsilon {
					lots = lots[1:]
				}
			}

			// Oversold: the provider stream shows more going out than
			// ever came in. Treat the overflow as sales from an
			// implicit zero-cost airdrop lot.
			if remaining > epsilon {
				log.Printf("[FIFO] %s/%s: sell %s exceeds inventory by %.8f, treating as airdrop proceeds",
					t.Wallet, t.Symbol, t.TransactionHash, remaining)
				if salePrice != nil {
					gainsAirdrops += remaining * *salePrice
					sellQty += remaining
					sellProceeds += remaining * *salePrice
				}
			}
		}
	}

	for _, l := range lots {
		a.RemainingQty += l.qty
		a.RemainingCost += l.qty * l.unitCost
	}

	a.TotalInvested = invested
	a.TotalRealized = realized
	a.GainsAirdrops = gainsAirdrops
	a.TotalEntries = entries
	a.TotalExits = exits

	if buyQty > epsilon {
		a.AvgBuyPrice = buyCost / buyQty
	}
	if sellQty > epsilon {
		a.AvgSellPrice = sellProceeds / sellQty
	}

	price := currentPrice
	if price != nil && (*price <= 0 || *price > cfg.MaxCurrentPrice) {
		price = nil
	}
	if price != nil {
		a.CurrentPrice = *price
		a.PriceKnown = true
		a.CurrentValue = a.RemainingQty * *price
	} else {
		a.CurrentValue = a.RemainingCost
	}

	a.ProfitLoss = realized + gainsAirdrops + a.CurrentValue - invested

	if invested <= cfg.AirdropMaxInvested {
		if a.ProfitLoss > 0 {
			a.Status = models.StatusAirdropWinner
			a.ROIPercentage = cfg.AirdropROICap
		} else {
			a.Status = models.StatusNeutral
		}
		return a
	}

	a.ROIPercentage = a.ProfitLoss / invested * 100

	switch {
	case a.ROIPercentage >= cfg.WinROI:
		a.Status = models.StatusWinner
	case a.ROIPercentage < 0:
		a.Status = models.StatusLoser
	default:
		a.Status = models.StatusNeutral
	}

	return a
}
