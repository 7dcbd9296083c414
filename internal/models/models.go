package models

import "time"

// DiscoveryPeriod tags how a wallet entered the system.
type DiscoveryPeriod string

const (
	Period14d       DiscoveryPeriod = "14d"
	Period30d       DiscoveryPeriod = "30d"
	Period200d      DiscoveryPeriod = "200d"
	Period360d      DiscoveryPeriod = "360d"
	PeriodManual    DiscoveryPeriod = "manual"
	PeriodMigration DiscoveryPeriod = "migration"
)

// Wallet represents the 'wallets' table
type Wallet struct {
	Address               string          `json:"address"`
	DiscoveryPeriod       DiscoveryPeriod `json:"discovery_period"`
	TotalPortfolioValue   float64         `json:"total_portfolio_value_usd"`
	TokenCount            int             `json:"token_count"`
	IsActive              bool            `json:"is_active"`
	IsScored              bool            `json:"is_scored"`
	TransactionsExtracted bool            `json:"transactions_extracted"`
	LastSync              time.Time       `json:"last_sync"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TokenPosition represents the 'token_positions' table; exactly one row per
// (wallet, fungible_id).
type TokenPosition struct {
	Wallet          string    `json:"wallet"`
	FungibleID      string    `json:"fungible_id"`
	Symbol          string    `json:"symbol"`
	ContractAddress string    `json:"contract_address"`
	Chain           string    `json:"chain"`
	Amount          float64   `json:"current_amount"`
	USDValue        float64   `json:"current_usd_value"`
	PricePerToken   float64   `json:"current_price_per_token"`
	InPortfolio     bool      `json:"in_portfolio"`
	LastUpdated     time.Time `json:"last_updated"`
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type ActionType string

const (
	ActionBuy         ActionType = "buy"
	ActionSell        ActionType = "sell"
	ActionAirdrop     ActionType = "airdrop"
	ActionTransferIn  ActionType = "transfer_in"
	ActionTransferOut ActionType = "transfer_out"
)

// Transfer is one row of the append-only event log. PricePerToken is written
// at ingestion and never rewritten; InheritedPrice is written only by the
// migration handler, guarded by IS NULL.
type Transfer struct {
	Wallet          string     `json:"wallet"`
	TransactionHash string     `json:"transaction_hash"`
	Symbol          string     `json:"symbol"`
	ContractAddress string     `json:"contract_address"`
	FungibleID      string     `json:"fungible_id"`
	Direction       Direction  `json:"direction"`
	ActionType      ActionType `json:"action_type"`
	Quantity        float64    `json:"quantity"`
	PricePerToken   *float64   `json:"price_per_token"`
	TotalValueUSD   float64    `json:"total_value_usd"`
	InheritedPrice  *float64   `json:"inherited_price_per_token"`
	InheritedFrom   *string    `json:"is_inherited_from_wallet"`
	Counterparty    string     `json:"counterparty_address"`
	Timestamp       time.Time  `json:"timestamp"`
	BlockNumber     int64      `json:"block_number"`
}

// EffectiveCost is the unit cost the lot accounting honors: the inherited
// price when present, otherwise the observed price.
func (t *Transfer) EffectiveCost() *float64 {
	if t.InheritedPrice != nil {
		return t.InheritedPrice
	}
	return t.PricePerToken
}

type TokenStatus string

const (
	StatusWinner        TokenStatus = "GAGNANT"
	StatusLoser         TokenStatus = "PERDANT"
	StatusNeutral       TokenStatus = "NEUTRE"
	StatusAirdropWinner TokenStatus = "AIRDROP_GAGNANT"
)

// TokenAnalytics represents the 'token_analytics' table, recomputed
// idempotently from the transfer log.
type TokenAnalytics struct {
	Wallet           string      `json:"wallet"`
	Symbol           string      `json:"symbol"`
	ContractAddress  string      `json:"contract_address"`
	FungibleID       string      `json:"fungible_id"`
	TotalInvested    float64     `json:"total_invested_usd"`
	TotalRealized    float64     `json:"total_realized_usd"`
	GainsAirdrops    float64     `json:"gains_airdrops_usd"`
	CurrentValue     float64     `json:"current_value_usd"`
	ProfitLoss       float64     `json:"profit_loss_usd"`
	ROIPercentage    float64     `json:"roi_percentage"`
	RemainingQty     float64     `json:"remaining_quantity"`
	RemainingCost    float64     `json:"remaining_cost_basis"`
	AvgBuyPrice      float64     `json:"weighted_avg_buy_price"`
	AvgSellPrice     float64     `json:"weighted_avg_sell_price"`
	CurrentPrice     float64     `json:"current_price"`
	PriceKnown       bool        `json:"price_known"`
	Status           TokenStatus `json:"status"`
	TotalEntries     int         `json:"total_entries"`
	TotalExits       int         `json:"total_exits"`
	FirstTransaction time.Time   `json:"first_transaction_date"`
	LastTransaction  time.Time   `json:"last_transaction_date"`
}

type Classification string

const (
	ClassElite     Classification = "ELITE"
	ClassExcellent Classification = "EXCELLENT"
	ClassGood      Classification = "BON"
	ClassAverage   Classification = "MOYEN"
	ClassWeak      Classification = "FAIBLE"
)

// QualifiedWallet represents the 'qualified_wallets' table.
type QualifiedWallet struct {
	Wallet         string         `json:"wallet"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	WeightedROI    float64        `json:"weighted_roi"`
	WinRate        float64        `json:"win_rate"`
	TradeCount     int            `json:"trade_count"`
	Winners        int            `json:"n_winners"`
	Losers         int            `json:"n_losers"`
	Neutrals       int            `json:"n_neutral"`
	TotalInvested  float64        `json:"total_invested"`
	ROIScore       float64        `json:"roi_score"`
	ActivityScore  float64        `json:"activity_score"`
	SuccessScore   float64        `json:"success_score"`
	QualityBonus   float64        `json:"quality_bonus"`
}

// TierPerformance represents one row of 'tier_performance': a wallet's
// metrics restricted to tokens with total_invested >= TierUSD.
type TierPerformance struct {
	Wallet        string  `json:"wallet"`
	TierUSD       int     `json:"tier_usd"`
	ROIPercentage float64 `json:"roi_percentage"`
	WinRate       float64 `json:"win_rate"`
	Trades        int     `json:"n_trades"`
	Winners       int     `json:"n_winners"`
	Losers        int     `json:"n_losers"`
	Neutrals      int     `json:"n_neutral"`
	TotalInvested float64 `json:"total_invested"`
	IsOptimal     bool    `json:"is_optimal_tier"`
}

type ThresholdStatus string

const (
	ThresholdExceptional     ThresholdStatus = "EXCEPTIONAL"
	ThresholdExcellent       ThresholdStatus = "EXCELLENT"
	ThresholdGood            ThresholdStatus = "GOOD"
	ThresholdAverage         ThresholdStatus = "AVERAGE"
	ThresholdPoor            ThresholdStatus = "POOR"
	ThresholdNeutral         ThresholdStatus = "NEUTRAL"
	ThresholdNoReliableTiers ThresholdStatus = "NO_RELIABLE_TIERS"
	ThresholdManual          ThresholdStatus = "MANUAL"
	ThresholdMigration       ThresholdStatus = "MIGRATION"
)

// SmartWallet represents the 'smart_wallets' table: wallets elected by the
// threshold selector with status above NEUTRAL.
type SmartWallet struct {
	Wallet          string          `json:"wallet"`
	OptimalTier     int             `json:"optimal_threshold_tier"`
	QualityScore    float64         `json:"quality_score"`
	Status          ThresholdStatus `json:"threshold_status"`
	OptimalROI      float64         `json:"optimal_roi"`
	OptimalWinRate  float64         `json:"optimal_win_rate"`
	OptimalTrades   int             `json:"optimal_trades"`
	OptimalWinners  int             `json:"optimal_winners"`
	OptimalLosers   int             `json:"optimal_losers"`
	OptimalNeutrals int             `json:"optimal_neutral"`
	GlobalROI       float64         `json:"global_roi"`
	GlobalWinRate   float64         `json:"global_win_rate"`
	GlobalTrades    int             `json:"global_trades"`
	JScoreMax       float64         `json:"j_score_max"`
	JScoreAvg       float64         `json:"j_score_avg"`
	ReliableTiers   int             `json:"reliable_tiers"`
}

type ChangeType string

const (
	ChangeNew          ChangeType = "NEW"
	ChangeReturn       ChangeType = "RETOUR"
	ChangeAccumulation ChangeType = "ACCUMULATION"
	ChangeReduction    ChangeType = "REDUCTION"
	ChangeExit         ChangeType = "EXIT"
)

// PositionChange represents one row of the append-only 'position_changes'
// diff log written by the live tracker.
type PositionChange struct {
	SessionID       string     `json:"session_id"`
	Wallet          string     `json:"wallet"`
	Symbol          string     `json:"symbol"`
	ContractAddress string     `json:"contract_address"`
	FungibleID      string     `json:"fungible_id"`
	Type            ChangeType `json:"change_type"`
	OldAmount       float64    `json:"old_amount"`
	NewAmount       float64    `json:"new_amount"`
	AmountChange    float64    `json:"amount_change"`
	ChangePct       float64    `json:"change_percentage"`
	OldUSDValue     float64    `json:"old_usd_value"`
	NewUSDValue     float64    `json:"new_usd_value"`
	USDChange       float64    `json:"usd_change"`
	DetectedAt      time.Time  `json:"detected_at"`
}

// TransferredToken is one entry of WalletMigration.Tokens, stored as JSONB.
type TransferredToken struct {
	Symbol          string  `json:"symbol"`
	FungibleID      string  `json:"fungible_id"`
	ContractAddress string  `json:"contract_address"`
	Quantity        float64 `json:"quantity"`
	ValueUSD        float64 `json:"value_usd"`
}

// WalletMigration represents the 'wallet_migrations' table; unique on
// (old_wallet, new_wallet, migration_date).
type WalletMigration struct {
	OldWallet     string             `json:"old_wallet"`
	NewWallet     string             `json:"new_wallet"`
	MigrationDate time.Time          `json:"migration_date"`
	Tokens        []TransferredToken `json:"tokens_transferred"`
	TotalValue    float64            `json:"total_value_transferred"`
	TransferPct   float64            `json:"transfer_percentage"`
	IsValidated   bool               `json:"is_validated"`
}

const (
	SignalExceptionalConsensus = "EXCEPTIONAL_CONSENSUS"
	SignalMixedConsensus       = "MIXED_CONSENSUS"
)

// ConsensusSignal represents the 'consensus_signals' table; upserted by
// (contract_address, period_start).
type ConsensusSignal struct {
	Symbol           string    `json:"symbol"`
	ContractAddress  string    `json:"contract_address"`
	Chain            string    `json:"chain"`
	SignalType       string    `json:"signal_type"`
	DetectionDate    time.Time `json:"detection_date"`
	WhaleCount       int       `json:"whale_count"`
	ExceptionalCount int       `json:"exceptional_count"`
	TotalInvestment  float64   `json:"total_investment"`
	AvgEntryPrice    float64   `json:"avg_entry_price"`
	FirstBuy         time.Time `json:"first_buy"`
	LastBuy          time.Time `json:"last_buy"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	MarketCap        float64   `json:"market_cap"`
	Liquidity        float64   `json:"liquidity"`
	Wallets          []string  `json:"wallet_addresses"`
	IsActive         bool      `json:"is_active"`
}

// ConsensusBuy is one smart-wallet buy inside the consensus window, joined
// with the buyer's smart_wallets row.
type ConsensusBuy struct {
	Wallet          string          `json:"wallet"`
	Symbol          string          `json:"symbol"`
	ContractAddress string          `json:"contract_address"`
	Chain           string          `json:"chain"`
	FungibleID      string          `json:"fungible_id"`
	Quantity        float64         `json:"quantity"`
	ValueUSD        float64         `json:"value_usd"`
	PricePerToken   float64         `json:"price_per_token"`
	Timestamp       time.Time       `json:"timestamp"`
	OptimalTier     int             `json:"optimal_tier"`
	QualityScore    float64         `json:"quality_score"`
	Status          ThresholdStatus `json:"threshold_status"`
}
