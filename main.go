// Command walletintel runs the smart-wallet pipeline: seed discovery,
// transfer extraction, scoring and election, consensus detection, live
// tracking, migration handling and the read API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"walletintel/internal/api"
	"walletintel/internal/backtest"
	"walletintel/internal/config"
	"walletintel/internal/consensus"
	"walletintel/internal/eventbus"
	"walletintel/internal/fifo"
	"walletintel/internal/market"
	"walletintel/internal/models"
	"walletintel/internal/notify"
	"walletintel/internal/pipeline"
	"walletintel/internal/provider"
	"walletintel/internal/repository"
	"walletintel/internal/scoring"
	"walletintel/internal/tracker"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

const usageText = `Usage: walletintel <command> [flags]

Commands:
  discovery    register seed wallets for extraction
  extraction   pull balances and full transfer history for pending wallets
  scoring      rebuild analytics, score wallets and elect smart wallets
               (alias: smartwallets)
  consensus    run one consensus detection pass
  tracking     run one live tracking pass over elected wallets, including
               migration detection (alias: tracking-live)
  migration    scan elected wallets for portfolio migrations
  backtest     replay consensus detection over a historical range
  serve        run the read API and websocket stream
  scheduler    run serve plus the periodic tracking/consensus/scoring loops

Common flags: -config <path> (default config.yaml)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cmd, args := canonicalCommand(os.Args[1]), os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the yaml config file")
	seedFile := fs.String("seeds", "", "discovery: override the configured seed file")
	balanceOnly := fs.Bool("balance-only", false, "tracking: snapshot balances, skip history rebuilds")
	transactionsOnly := fs.Bool("transactions-only", false, "tracking: rebuild histories, skip balance snapshots")
	minUSD := fs.Float64("min-usd", -1, "tracking: override the rebuild value floor in USD")
	hoursLookback := fs.Int("hours-lookback", 0, "tracking: override the change lookback in hours")
	fromStr := fs.String("from", "", "backtest: range start (RFC 3339 or YYYY-MM-DD)")
	toStr := fs.String("to", "", "backtest: range end (RFC 3339 or YYYY-MM-DD)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(2)
	}

	log.Printf("walletintel %s — %s", BuildCommit, cmd)
	log.Printf("DB: %s", redactDatabaseURL(cfg.DatabaseURL))

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Printf("connect db: %v", err)
		os.Exit(2)
	}
	defer repo.Close()

	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("schema migration SKIPPED (SKIP_MIGRATION=true)")
	} else if err := repo.Migrate(cfg.SchemaPath); err != nil {
		log.Printf("migrate schema: %v", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code := 2
	switch cmd {
	case "discovery":
		path := cfg.Discovery.SeedFile
		if *seedFile != "" {
			path = *seedFile
		}
		d := pipeline.NewDiscovery(repo, pipeline.FileSeedSource{Path: path}, models.DiscoveryPeriod(cfg.Discovery.Period))
		code = exitFor(d.Run(ctx))

	case "extraction":
		client, err := newClient(cfg)
		if err != nil {
			log.Printf("provider: %v", err)
			os.Exit(2)
		}
		e := pipeline.NewExtraction(repo, client, cfg.WorkerCount)
		code = exitFor(e.Run(ctx))

	case "scoring":
		s := newScoring(repo, cfg)
		code = exitFor(s.Run(ctx))

	case "consensus":
		det := newDetector(repo, cfg, nil)
		_, err := det.Run(ctx)
		code = exitErr(err)

	case "tracking":
		client, err := newClient(cfg)
		if err != nil {
			log.Printf("provider: %v", err)
			os.Exit(2)
		}
		tcfg := trackerConfig(cfg, *balanceOnly, *transactionsOnly, *minUSD, *hoursLookback)
		t := tracker.New(repo, client, newResolver(), tcfg)
		t.Migrations = tracker.NewMigrationDetector(repo, client, migrationConfig(cfg))
		sum, err := t.Run(ctx)
		if err != nil {
			log.Printf("tracking: %v", err)
		} else if sum.Errors > 0 {
			code = 1
		} else {
			code = 0
		}

	case "migration":
		client, err := newClient(cfg)
		if err != nil {
			log.Printf("provider: %v", err)
			os.Exit(2)
		}
		m := tracker.NewMigrationDetector(repo, client, migrationConfig(cfg))
		_, err = m.Run(ctx)
		code = exitErr(err)

	case "backtest":
		from, to, err := parseRange(*fromStr, *toStr)
		if err != nil {
			log.Printf("backtest: %v", err)
			os.Exit(2)
		}
		r := backtest.NewRunner(repo, newResolver(), backtest.Config{Detection: consensusConfig(cfg)})
		report, err := r.Run(ctx, from, to)
		if err != nil {
			log.Printf("backtest: %v", err)
			break
		}
		log.Printf("[Backtest] %d windows, %d first emissions", report.Windows, len(report.Emissions))
		for _, e := range report.Emissions {
			log.Printf("[Backtest] %s %s: window %s, lag %s",
				e.Signal.SignalType, e.Signal.Symbol,
				e.WindowStart.UTC().Format("2006-01-02 15:04"), e.Lag.Round(time.Minute))
		}
		code = 0

	case "serve":
		code = runServe(ctx, repo, cfg, nil)

	case "scheduler":
		code = runScheduler(ctx, repo, cfg)

	default:
		fmt.Fprint(os.Stderr, usageText)
	}
	os.Exit(code)
}

// runServe blocks until the context is cancelled or the listener fails.
func runServe(ctx context.Context, repo *repository.Repository, cfg *config.Config, bus *eventbus.Bus) int {
	if bus == nil {
		bus = eventbus.New()
		defer bus.Close()
	}

	srv := api.NewServer(repo, bus, strconv.Itoa(cfg.APIPort), cfg.JWTSecret)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on :%d", cfg.APIPort)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("[API] %v", err)
			return 2
		}
	case <-ctx.Done():
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return 0
}

// runScheduler runs the API alongside the periodic pipeline loops. Each loop
// fires once at startup, then on its own ticker.
func runScheduler(ctx context.Context, repo *repository.Repository, cfg *config.Config) int {
	client, err := newClient(cfg)
	if err != nil {
		log.Printf("provider: %v", err)
		return 2
	}

	bus := eventbus.New()
	defer bus.Close()
	sink := newSinks(cfg)
	prices := newResolver()

	t := tracker.New(repo, client, prices, trackerConfig(cfg, false, false, -1, 0))
	t.OnChanges = func(wallet string, changes []models.PositionChange) {
		bus.Publish(eventbus.Event{
			Type: eventbus.TopicPositionChange, Wallet: wallet, Timestamp: time.Now(), Data: changes,
		})
		sink.Notify(ctx, notify.FormatChanges(wallet, changes))
	}
	t.Migrations = tracker.NewMigrationDetector(repo, client, migrationConfig(cfg))
	det := newDetector(repo, cfg, func(s models.ConsensusSignal) {
		bus.Publish(eventbus.Event{
			Type: eventbus.TopicConsensusSignal, Timestamp: time.Now(), Data: s,
		})
		sink.Notify(ctx, notify.FormatSignal(s))
	})
	scorer := newScoring(repo, cfg)

	every := func(hours int, name string, fn func()) {
		if hours <= 0 {
			log.Printf("[Scheduler] %s loop DISABLED", name)
			return
		}
		go func() {
			fn()
			ticker := time.NewTicker(time.Duration(hours) * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fn()
				}
			}
		}()
	}

	every(cfg.Scheduler.TrackingHours, "tracking", func() {
		if sum, err := t.Run(ctx); err != nil {
			log.Printf("[Scheduler] tracking: %v", err)
		} else {
			log.Printf("[Scheduler] tracking done: %d wallets, %d changes, %d rebuilt, %d migrations, %d errors",
				sum.Wallets, sum.Changes, sum.Rebuilt, sum.Migrations, sum.Errors)
		}
	})
	every(cfg.Scheduler.ConsensusHours, "consensus", func() {
		if _, err := det.Run(ctx); err != nil {
			log.Printf("[Scheduler] consensus: %v", err)
		}
	})
	every(cfg.Scheduler.ScoringHours, "scoring", func() {
		if sum, err := scorer.Run(ctx); err != nil {
			log.Printf("[Scheduler] scoring: %v", err)
		} else {
			log.Printf("[Scheduler] scoring done: %d wallets, %d failed", sum.Total, sum.Failed)
		}
	})

	return runServe(ctx, repo, cfg, bus)
}

// canonicalCommand folds the long-form command aliases onto their primary
// names.
func canonicalCommand(cmd string) string {
	switch cmd {
	case "smartwallets":
		return "scoring"
	case "tracking-live":
		return "tracking"
	}
	return cmd
}

func newClient(cfg *config.Config) (provider.Client, error) {
	pool, err := provider.NewKeyPool(cfg.Provider.APIKeys, cfg.Provider.RatePerSecond, cfg.Provider.Burst)
	if err != nil {
		return nil, err
	}
	log.Printf("provider: %d API keys in rotation", pool.Size())
	timeout := time.Duration(cfg.Provider.RequestTimeout) * time.Second
	zerion := provider.NewZerionClient(cfg.Provider.BaseURL, pool, timeout, cfg.Provider.MaxRetries, cfg.Provider.PageSize)
	checker := provider.NewEtherscanChecker(cfg.Provider.EtherscanAPIKey, timeout)
	return provider.Bundle{BalanceLister: zerion, TransferLister: zerion, ContractChecker: checker}, nil
}

// newResolver wires the price oracle chain: DexScreener first, CoinGecko as
// fallback, DexScreener again for market cap and liquidity.
func newResolver() *market.Resolver {
	dex := market.NewDexScreener()
	return market.NewResolver(dex, market.NewCoinGecko(), dex)
}

func newScoring(repo *repository.Repository, cfg *config.Config) *pipeline.Scoring {
	s := pipeline.NewScoring(repo, newResolver(), cfg.WorkerCount)

	scorerCfg := scoring.DefaultScorerConfig()
	scorerCfg.MinScore = cfg.Scoring.MinScore
	scorerCfg.MinWeightedROI = cfg.Scoring.MinWeightedROI
	scorerCfg.MinTrades = cfg.Scoring.MinTrades
	scorerCfg.WinROI = cfg.Scoring.WinROI

	tierCfg := scoring.DefaultTierConfig()
	tierCfg.Grid = cfg.Tiers.Grid
	tierCfg.WinROI = cfg.Tiers.WinROI
	tierCfg.LossROI = cfg.Tiers.LossROI

	thrCfg := scoring.DefaultThresholdConfig()
	thrCfg.MinTrades = cfg.Threshold.MinTrades
	thrCfg.MinWinRate = cfg.Threshold.MinWinRate
	thrCfg.ROICap = cfg.Threshold.ROICap

	s.Configure(fifo.DefaultConfig(), scorerCfg, tierCfg, thrCfg)
	return s
}

func newDetector(repo *repository.Repository, cfg *config.Config, onSignal func(models.ConsensusSignal)) *consensus.Detector {
	det := consensus.NewDetector(repo, newResolver(), consensusConfig(cfg))
	det.OnSignal = onSignal
	return det
}

func newSinks(cfg *config.Config) notify.Sink {
	sinks := []notify.Sink{notify.LogSink{}}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	return notify.NewFanout(sinks...)
}

func trackerConfig(cfg *config.Config, balanceOnly, transactionsOnly bool, minUSD float64, hoursLookback int) tracker.Config {
	tcfg := tracker.Config{
		HoursLookback:    cfg.Tracking.HoursLookback,
		MinTokenValueUSD: cfg.Tracking.MinTokenValueUSD,
		AmountDeltaPct:   cfg.Tracking.AmountDeltaPct,
		BalanceOnly:      balanceOnly,
		TransactionsOnly: transactionsOnly,
	}
	if minUSD >= 0 {
		tcfg.MinTokenValueUSD = minUSD
	}
	if hoursLookback > 0 {
		tcfg.HoursLookback = hoursLookback
	}
	return tcfg
}

func migrationConfig(cfg *config.Config) tracker.MigrationConfig {
	return tracker.MigrationConfig{
		PortfolioFraction: cfg.Migration.PortfolioFraction,
		Window:            time.Duration(cfg.Migration.WindowHours) * time.Hour,
	}
}

func consensusConfig(cfg *config.Config) consensus.Config {
	return consensus.Config{
		MinWhales: cfg.Consensus.MinWhales,
		Window:    time.Duration(cfg.Consensus.WindowHours) * time.Hour,
		McapMin:   cfg.Consensus.McapMin,
		McapMax:   cfg.Consensus.McapMax,
	}
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-from and -to are required")
	}
	parse := func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", s)
	}
	from, err := parse(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -from %q: %w", fromStr, err)
	}
	to, err := parse(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad -to %q: %w", toStr, err)
	}
	return from, to, nil
}

func exitFor(sum pipeline.Summary, err error) int {
	if err != nil {
		log.Printf("run: %v", err)
		return 2
	}
	if sum.Failed > 0 {
		return 1
	}
	return 0
}

func exitErr(err error) int {
	if err != nil {
		log.Printf("run: %v", err)
		return 2
	}
	return 0
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		u.RawQuery = ""
		return u.String()
	}

	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
