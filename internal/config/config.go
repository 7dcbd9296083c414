package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the immutable settings snapshot passed into every pipeline stage.
// Loaded once at startup; stages never mutate it.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	SchemaPath  string `yaml:"schema_path"`
	APIPort     int    `yaml:"api_port"`
	JWTSecret   string `yaml:"jwt_secret"`

	Provider  ProviderConfig  `yaml:"provider"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Threshold ThresholdConfig `yaml:"threshold"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Migration MigrationConfig `yaml:"migration"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	WorkerCount int `yaml:"worker_count"`
}

type ProviderConfig struct {
	BaseURL         string   `yaml:"base_url"`
	APIKeys         []string `yaml:"api_keys"`
	EtherscanAPIKey string   `yaml:"etherscan_api_key"`
	RequestTimeout  int      `yaml:"request_timeout_seconds"`
	RatePerSecond   float64  `yaml:"rate_per_second"`
	Burst           int      `yaml:"burst"`
	MaxRetries      int      `yaml:"max_retries"`
	PageSize        int      `yaml:"page_size"`
}

type TrackingConfig struct {
	HoursLookback    int     `yaml:"hours_lookback"`
	MinTokenValueUSD float64 `yaml:"min_token_value_usd"`
	AmountDeltaPct   float64 `yaml:"amount_delta_pct"`
	IntervalHours    int     `yaml:"interval_hours"`
}

type ScoringConfig struct {
	MinScore       float64 `yaml:"min_score"`
	MinWeightedROI float64 `yaml:"min_weighted_roi"`
	MinTrades      int     `yaml:"min_trades"`
	WinROI         float64 `yaml:"win_roi"`
}

type TiersConfig struct {
	Grid    []int   `yaml:"grid"`
	WinROI  float64 `yaml:"win_roi"`
	LossROI float64 `yaml:"loss_roi"`
}

type ThresholdConfig struct {
	MinTrades  int     `yaml:"min_trades"`
	MinWinRate float64 `yaml:"min_winrate"`
	ROICap     float64 `yaml:"roi_cap"`
}

type ConsensusConfig struct {
	MinWhales   int     `yaml:"min_whales"`
	WindowHours int     `yaml:"window_hours"`
	McapMin     float64 `yaml:"mcap_min"`
	McapMax     float64 `yaml:"mcap_max"`
}

type MigrationConfig struct {
	PortfolioFraction float64 `yaml:"portfolio_fraction"`
	WindowHours       int     `yaml:"window_hours"`
}

type DiscoveryConfig struct {
	SeedFile string `yaml:"seed_file"`
	Period   string `yaml:"period"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type SchedulerConfig struct {
	TrackingHours  int `yaml:"tracking_hours"`
	ConsensusHours int `yaml:"consensus_hours"`
	ScoringHours   int `yaml:"scoring_hours"`
}

// Default returns a Config with every tunable at its documented default.
func Default() *Config {
	return &Config{
		SchemaPath: "schema.sql",
		APIPort:    8080,
		Provider: ProviderConfig{
			BaseURL:        "https://api.zerion.io/v1",
			RequestTimeout: 30,
			RatePerSecond:  2,
			Burst:          4,
			MaxRetries:     5,
			PageSize:       100,
		},
		Tracking: TrackingConfig{
			HoursLookback:    24,
			MinTokenValueUSD: 500,
			AmountDeltaPct:   5,
			IntervalHours:    2,
		},
		Scoring: ScoringConfig{
			MinScore:       20,
			MinWeightedROI: 50,
			MinTrades:      3,
			WinROI:         80,
		},
		Tiers: TiersConfig{
			Grid:    []int{3000, 4000, 5000, 6000, 7000, 8000, 9000, 10000, 11000, 12000},
			WinROI:  50,
			LossROI: -20,
		},
		Threshold: ThresholdConfig{
			MinTrades:  5,
			MinWinRate: 20,
			ROICap:     500,
		},
		Consensus: ConsensusConfig{
			MinWhales:   2,
			WindowHours: 48,
			McapMin:     100_000,
			McapMax:     100_000_000,
		},
		Migration: MigrationConfig{
			PortfolioFraction: 0.70,
			WindowHours:       168,
		},
		Discovery: DiscoveryConfig{
			SeedFile: "seed_wallets.json",
			Period:   "30d",
		},
		Scheduler: SchedulerConfig{
			TrackingHours:  2,
			ConsensusHours: 6,
			ScoringHours:   24,
		},
		WorkerCount: 8,
	}
}

// Load reads a yaml config file over the defaults. A missing file is fine
// when env vars supply the essentials; a malformed file is a startup error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.validate()
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKeys = append(c.Provider.APIKeys, v)
	}
	if v := os.Getenv("ETHERSCAN_API_KEY"); v != "" {
		c.Provider.EtherscanAPIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (config file or DATABASE_URL)")
	}
	if len(c.Tiers.Grid) == 0 {
		return fmt.Errorf("tiers.grid must not be empty")
	}
	if c.Migration.PortfolioFraction <= 0 || c.Migration.PortfolioFraction >= 1 {
		return fmt.Errorf("migration.portfolio_fraction must be in (0, 1)")
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 8
	}
	return nil
}
