// Package notify pushes tracking alerts to operators. A Sink is one delivery
// channel; Fanout sends to all of them and keeps going past failures.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"walletintel/internal/models"
)

// Sink is one alert delivery channel.
type Sink interface {
	Notify(ctx context.Context, text string) error
}

// LogSink writes alerts to the process log. Always configured, so a bare
// deployment still surfaces signals somewhere.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, text string) error {
	log.Printf("[Notify] %s", strings.ReplaceAll(text, "\n", " | "))
	return nil
}

// Fanout delivers to every sink; one failing channel never blocks the rest.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Notify(ctx context.Context, text string) error {
	var lastErr error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, text); err != nil {
			log.Printf("[Notify] sink %T: %v", s, err)
			lastErr = err
		}
	}
	return lastErr
}

// FormatSignal renders a consensus signal for the alert channels.
func FormatSignal(s models.ConsensusSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", s.SignalType, s.Symbol)
	fmt.Fprintf(&b, "Contract: %s (%s)\n", s.ContractAddress, s.Chain)
	fmt.Fprintf(&b, "Whales: %d (%d exceptional)\n", s.WhaleCount, s.ExceptionalCount)
	if len(s.Wallets) > 0 {
		fmt.Fprintf(&b, "Wallets: %s\n", strings.Join(s.Wallets, ", "))
	}
	fmt.Fprintf(&b, "Invested: $%.0f, avg entry $%.6f\n", s.TotalInvestment, s.AvgEntryPrice)
	if s.MarketCap > 0 {
		fmt.Fprintf(&b, "Mcap: $%.0f, liquidity $%.0f\n", s.MarketCap, s.Liquidity)
	}
	fmt.Fprintf(&b, "Window: %s to %s",
		s.FirstBuy.UTC().Format(time.RFC3339), s.LastBuy.UTC().Format(time.RFC3339))
	return b.String()
}

// FormatChanges renders a wallet's position changes for the alert channels.
func FormatChanges(wallet string, changes []models.PositionChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position changes for %s:\n", wallet)
	for _, c := range changes {
		switch c.Type {
		case models.ChangeNew, models.ChangeReturn:
			fmt.Fprintf(&b, "%s %s: %.4f ($%.0f)\n", c.Type, c.Symbol, c.NewAmount, c.NewUSDValue)
		case models.ChangeExit:
			fmt.Fprintf(&b, "%s %s: was %.4f ($%.0f)\n", c.Type, c.Symbol, c.OldAmount, c.OldUSDValue)
		default:
			fmt.Fprintf(&b, "%s %s: %+.1f%% ($%+.0f)\n", c.Type, c.Symbol, c.ChangePct, c.USDChange)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
