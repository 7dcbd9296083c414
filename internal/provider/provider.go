// Package provider talks to the external wallet-data APIs: balance and
// transfer retrieval (Zerion) and the EOA contract check (Etherscan).
package provider

import (
	"context"
	"fmt"
	"time"

	"walletintel/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Balance is one current token holding as reported by the data provider.
type Balance struct {
	FungibleID      string
	Symbol          string
	ContractAddress string
	Chain           string
	Amount          float64
	USDValue        float64
	PricePerToken   float64
}

// Send is one outgoing transfer, aggregated by the migration handler.
type Send struct {
	Recipient       string
	Symbol          string
	FungibleID      string
	ContractAddress string
	Quantity        float64
	ValueUSD        float64
	Timestamp       time.Time
}

// BalanceLister returns the current portfolio of a wallet.
type BalanceLister interface {
	ListBalances(ctx context.Context, wallet string) ([]Balance, error)
}

// TransferLister pulls transfer history. FetchFullHistory streams pages into
// fn so the consumer can batch its writes; fn returning an error aborts the
// walk. FetchRecentSends returns outgoing transfers inside the window.
type TransferLister interface {
	FetchFullHistory(ctx context.Context, wallet, fungibleID string, fn func([]models.Transfer) error) error
	FetchRecentSends(ctx context.Context, wallet string, since time.Duration) ([]Send, error)
}

// ContractChecker reports whether an address is a deployed contract. An
// error means the answer is unknown; callers must not assume EOA then.
type ContractChecker interface {
	IsContract(ctx context.Context, address string) (bool, error)
}

// Client bundles the three capabilities the pipeline needs.
type Client interface {
	BalanceLister
	TransferLister
	ContractChecker
}

// Bundle composes separate upstream clients into the full Client surface.
// The data provider serves balances and transfers; the explorer serves the
// contract check.
type Bundle struct {
	BalanceLister
	TransferLister
	ContractChecker
}

// IngestError marks a per-(wallet, token) ingestion failure. Existing rows
// for the unit are left intact.
type IngestError struct {
	Wallet    string
	Token     string
	Transient bool
	Err       error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s/%s: %v", e.Wallet, e.Token, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// ValidAddress reports whether s is a well-formed hex address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress converts a hex address to its checksummed storage form.
func NormalizeAddress(s string) string {
	if !common.IsHexAddress(s) {
		return s
	}
	return common.HexToAddress(s).Hex()
}
