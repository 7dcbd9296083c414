// Package backtest replays consensus detection over the stored transfer log,
// so detection parameters can be judged against history before going live.
package backtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"walletintel/internal/consensus"
	"walletintel/internal/models"
)

type Config struct {
	// Detection carries the same knobs the live detector uses.
	Detection consensus.Config
	// Step is the stride between evaluated windows.
	Step time.Duration
}

// Store is the read surface the replay needs.
type Store interface {
	RecentSmartWalletBuys(ctx context.Context, since time.Time) ([]models.ConsensusBuy, error)
}

// Emission is the first appearance of a signal for one token.
type Emission struct {
	Signal      models.ConsensusSignal
	WindowStart time.Time
	// Lag is how long after the window opened the last qualifying buy
	// landed: the earliest moment a live detector could have fired.
	Lag time.Duration
}

// Report summarizes one replay.
type Report struct {
	From      time.Time
	To        time.Time
	Windows   int
	Emissions []Emission
}

type Runner struct {
	store Store
	info  consensus.InfoSource
	cfg   Config
}

func NewRunner(store Store, info consensus.InfoSource, cfg Config) *Runner {
	if cfg.Step <= 0 {
		cfg.Step = cfg.Detection.Window / 4
	}
	return &Runner{store: store, info: info, cfg: cfg}
}

// Run slides the detection window across [from, to] and records the first
// emission per token. Later windows re-detecting the same token are skipped,
// mirroring the live upsert-by-period behavior.
func (r *Runner) Run(ctx context.Context, from, to time.Time) (Report, error) {
	report := Report{From: from, To: to}
	if !from.Before(to) {
		return report, fmt.Errorf("empty replay range %s..%s", from, to)
	}

	buys, err := r.store.RecentSmartWalletBuys(ctx, from)
	if err != nil {
		return report, err
	}
	log.Printf("[Backtest] %d buys in range, window %s, step %s",
		len(buys), r.cfg.Detection.Window, r.cfg.Step)

	seen := make(map[string]bool)
	for start := from; start.Before(to); start = start.Add(r.cfg.Step) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := start.Add(r.cfg.Detection.Window)
		if end.After(to) {
			end = to
		}
		report.Windows++

		signals := consensus.Detect(ctx, buysBetween(buys, start, end), r.info, start, end, r.cfg.Detection)
		for _, s := range signals {
			if seen[s.ContractAddress] {
				continue
			}
			seen[s.ContractAddress] = true
			report.Emissions = append(report.Emissions, Emission{
				Signal:      s,
				WindowStart: start,
				Lag:         s.LastBuy.Sub(start),
			})
		}
	}

	log.Printf("[Backtest] %d windows, %d distinct signals", report.Windows, len(report.Emissions))
	return report, nil
}

func buysBetween(buys []models.ConsensusBuy, start, end time.Time) []models.ConsensusBuy {
	var out []models.ConsensusBuy
	for _, b := range buys {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
