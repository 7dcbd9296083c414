package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"walletintel/internal/models"
	"walletintel/internal/provider"
)

const (
	oldAddr   = "0x1111111111111111111111111111111111111111"
	childAddr = "0x2222222222222222222222222222222222222222"
	otherAddr = "0x3333333333333333333333333333333333333333"
)

type fakeMigrationStore struct {
	migrations    []models.WalletMigration
	wallets       []string
	inherited     map[string]float64
	transfers     int
	deactivated   []string
	avgBuyPrice   float64
	avgBuyKnown   bool
	migrationDupe bool
}

func (s *fakeMigrationStore) ListSmartWalletsWithValue(context.Context) ([]models.Wallet, error) {
	return nil, nil
}

func (s *fakeMigrationStore) InsertWalletIgnore(_ context.Context, address string, period models.DiscoveryPeriod) (bool, error) {
	if period != models.PeriodMigration {
		return false, errors.New("wrong discovery period")
	}
	s.wallets = append(s.wallets, address)
	return true, nil
}

func (s *fakeMigrationStore) InsertMigrationIgnore(_ context.Context, m models.WalletMigration) (bool, error) {
	if s.migrationDupe {
		return false, nil
	}
	s.migrations = append(s.migrations, m)
	return true, nil
}

func (s *fakeMigrationStore) InsertTransfers(_ context.Context, transfers []models.Transfer) (int64, error) {
	s.transfers += len(transfers)
	return int64(len(transfers)), nil
}

func (s *fakeMigrationStore) WeightedAvgBuyPrice(context.Context, string, string) (float64, bool, error) {
	return s.avgBuyPrice, s.avgBuyKnown, nil
}

func (s *fakeMigrationStore) InheritPrices(_ context.Context, _, _, symbol string, price float64) (int64, error) {
	if s.inherited == nil {
		s.inherited = make(map[string]float64)
	}
	s.inherited[symbol] = price
	return 3, nil
}

func (s *fakeMigrationStore) SetWalletActive(_ context.Context, address string, active bool) error {
	if !active {
		s.deactivated = append(s.deactivated, address)
	}
	return nil
}

type fakeClient struct {
	sends       []provider.Send
	contracts   map[string]bool
	contractErr error
	history     []models.Transfer
}

func (c *fakeClient) ListBalances(context.Context, string) ([]provider.Balance, error) {
	return nil, nil
}

func (c *fakeClient) FetchFullHistory(_ context.Context, _, _ string, fn func([]models.Transfer) error) error {
	if len(c.history) == 0 {
		return nil
	}
	return fn(c.history)
}

func (c *fakeClient) FetchRecentSends(context.Context, string, time.Duration) ([]provider.Send, error) {
	return c.sends, nil
}

func (c *fakeClient) IsContract(_ context.Context, address string) (bool, error) {
	if c.contractErr != nil {
		return false, c.contractErr
	}
	return c.contracts[address], nil
}

func mkSend(recipient, symbol, fungibleID string, usd float64, ts time.Time) provider.Send {
	return provider.Send{
		Recipient:       recipient,
		Symbol:          symbol,
		FungibleID:      fungibleID,
		ContractAddress: "0xc0ffee",
		Quantity:        usd, // 1:1 keeps the fixtures simple
		ValueUSD:        usd,
		Timestamp:       ts,
	}
}

func migrationWallet(value float64) models.Wallet {
	return models.Wallet{Address: oldAddr, TotalPortfolioValue: value, IsActive: true}
}

func TestCheckWalletDetectsMigration(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeMigrationStore{avgBuyPrice: 0.25, avgBuyKnown: true}
	client := &fakeClient{
		sends: []provider.Send{
			mkSend(childAddr, "AAA", "tok-a", 5000, base),
			mkSend(childAddr, "BBB", "tok-b", 3000, base.Add(time.Hour)),
			mkSend(otherAddr, "CCC", "tok-c", 500, base),
		},
		history: []models.Transfer{{Wallet: childAddr, TransactionHash: "0x1", FungibleID: "tok-a"}},
	}
	d := NewMigrationDetector(store, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	ok, err := d.CheckWallet(context.Background(), migrationWallet(10000))
	if err != nil {
		t.Fatalf("CheckWallet: %v", err)
	}
	if !ok {
		t.Fatal("80% to one EOA should be a migration")
	}

	if len(store.migrations) != 1 {
		t.Fatalf("migrations = %d, want 1", len(store.migrations))
	}
	m := store.migrations[0]
	if m.NewWallet != provider.NormalizeAddress(childAddr) {
		t.Fatalf("NewWallet = %s, want %s", m.NewWallet, childAddr)
	}
	if !almostEqual(m.TotalValue, 8000) || !almostEqual(m.TransferPct, 80) {
		t.Fatalf("migration = %+v, want $8000 / 80%%", m)
	}
	if len(m.Tokens) != 2 {
		t.Fatalf("tokens = %d, want the two sent to the child", len(m.Tokens))
	}

	if len(store.wallets) != 1 {
		t.Fatal("child wallet not registered")
	}
	if got := store.inherited["AAA"]; !almostEqual(got, 0.25) {
		t.Fatalf("inherited AAA price = %v, want parent's 0.25", got)
	}
	if len(store.deactivated) != 1 || store.deactivated[0] != oldAddr {
		t.Fatalf("deactivated = %v, want the old wallet", store.deactivated)
	}
}

func TestCheckWalletBelowFraction(t *testing.T) {
	t.Parallel()

	store := &fakeMigrationStore{}
	client := &fakeClient{
		sends: []provider.Send{mkSend(childAddr, "AAA", "tok-a", 6000, time.Now())},
	}
	d := NewMigrationDetector(store, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	ok, err := d.CheckWallet(context.Background(), migrationWallet(10000))
	if err != nil {
		t.Fatalf("CheckWallet: %v", err)
	}
	if ok || len(store.migrations) != 0 {
		t.Fatal("60% must not trigger a migration")
	}
}

func TestCheckWalletContractRecipient(t *testing.T) {
	t.Parallel()

	store := &fakeMigrationStore{}
	client := &fakeClient{
		sends:     []provider.Send{mkSend(childAddr, "AAA", "tok-a", 9000, time.Now())},
		contracts: map[string]bool{childAddr: true},
	}
	d := NewMigrationDetector(store, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	ok, err := d.CheckWallet(context.Background(), migrationWallet(10000))
	if err != nil {
		t.Fatalf("CheckWallet: %v", err)
	}
	if ok || len(store.migrations) != 0 {
		t.Fatal("a contract recipient must not be a migration target")
	}
}

func TestCheckWalletContractCheckFailure(t *testing.T) {
	t.Parallel()

	store := &fakeMigrationStore{}
	client := &fakeClient{
		sends:       []provider.Send{mkSend(childAddr, "AAA", "tok-a", 9000, time.Now())},
		contractErr: errors.New("rate limited"),
	}
	d := NewMigrationDetector(store, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	ok, err := d.CheckWallet(context.Background(), migrationWallet(10000))
	if err == nil {
		t.Fatal("an unverifiable recipient must surface the error")
	}
	if ok || len(store.migrations) != 0 {
		t.Fatal("an unverifiable recipient must never be assumed to be an EOA")
	}
}

func TestCheckWalletAlreadyRecorded(t *testing.T) {
	t.Parallel()

	store := &fakeMigrationStore{migrationDupe: true}
	client := &fakeClient{
		sends: []provider.Send{mkSend(childAddr, "AAA", "tok-a", 9000, time.Now())},
	}
	d := NewMigrationDetector(store, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	ok, err := d.CheckWallet(context.Background(), migrationWallet(10000))
	if err != nil {
		t.Fatalf("CheckWallet: %v", err)
	}
	if ok {
		t.Fatal("a previously recorded migration must be a no-op")
	}
	if len(store.wallets) != 0 || len(store.deactivated) != 0 {
		t.Fatal("duplicate detection must not re-run the side effects")
	}
}

func TestAggregateSendsMergesTokens(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sends := []provider.Send{
		mkSend(childAddr, "AAA", "tok-a", 100, base.Add(2*time.Hour)),
		mkSend(childAddr, "AAA", "tok-a", 200, base),
		mkSend(childAddr, "BBB", "tok-b", 50, base.Add(time.Hour)),
	}

	byRecipient := aggregateSends(sends)
	agg := byRecipient[childAddr]
	if agg == nil {
		t.Fatal("recipient missing from aggregation")
	}
	if !almostEqual(agg.totalUSD, 350) {
		t.Fatalf("totalUSD = %v, want 350", agg.totalUSD)
	}
	if len(agg.tokens) != 2 {
		t.Fatalf("tokens = %d, want 2 after merging", len(agg.tokens))
	}
	if !agg.firstSend.Equal(base) || !agg.lastSend.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("window = %v..%v, want base..base+2h", agg.firstSend, agg.lastSend)
	}
}
