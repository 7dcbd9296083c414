package tracker

import (
	"context"
	"testing"
	"time"

	"walletintel/internal/market"
	"walletintel/internal/models"
	"walletintel/internal/provider"
)

func almostEqual(a, b float64) bool {
	diff := a - b
	return diff < 1e-6 && diff > -1e-6
}

func mkBalance(id, symbol string, amount, usd float64) provider.Balance {
	return provider.Balance{
		FungibleID:      id,
		Symbol:          symbol,
		ContractAddress: "0xc0" + id,
		Chain:           "ethereum",
		Amount:          amount,
		USDValue:        usd,
	}
}

func mkPosition(id, symbol string, amount, usd float64) models.TokenPosition {
	return models.TokenPosition{
		Wallet:      "0xwallet",
		FungibleID:  id,
		Symbol:      symbol,
		Amount:      amount,
		USDValue:    usd,
		InPortfolio: true,
		LastUpdated: time.Now(),
	}
}

func historyFunc(known map[string]bool) func(context.Context, string, string) (bool, error) {
	return func(_ context.Context, _, fungibleID string) (bool, error) {
		return known[fungibleID], nil
	}
}

func changeByID(changes []models.PositionChange, id string) *models.PositionChange {
	for i := range changes {
		if changes[i].FungibleID == id {
			return &changes[i]
		}
	}
	return nil
}

func TestDiffPositionsNewAndReturn(t *testing.T) {
	t.Parallel()

	balances := []provider.Balance{
		mkBalance("tok-new", "NEW", 100, 1000),
		mkBalance("tok-back", "BACK", 50, 500),
	}
	known := map[string]bool{"tok-back": true}

	positions, changes, total, err := diffPositions(context.Background(), "sess", "0xwallet",
		map[string]models.TokenPosition{}, balances, 5, historyFunc(known))
	if err != nil {
		t.Fatalf("diffPositions: %v", err)
	}

	if len(positions) != 2 {
		t.Fatalf("len(positions) = %d, want 2", len(positions))
	}
	if !almostEqual(total, 1500) {
		t.Fatalf("total = %v, want 1500", total)
	}

	if c := changeByID(changes, "tok-new"); c == nil || c.Type != models.ChangeNew {
		t.Fatalf("tok-new change = %+v, want NEW", c)
	}
	if c := changeByID(changes, "tok-back"); c == nil || c.Type != models.ChangeReturn {
		t.Fatalf("tok-back change = %+v, want RETOUR", c)
	}
}

func TestDiffPositionsDeltaThreshold(t *testing.T) {
	t.Parallel()

	old := map[string]models.TokenPosition{
		"tok-a": mkPosition("tok-a", "AAA", 100, 1000),
		"tok-b": mkPosition("tok-b", "BBB", 100, 1000),
		"tok-c": mkPosition("tok-c", "CCC", 100, 1000),
	}
	balances := []provider.Balance{
		mkBalance("tok-a", "AAA", 103, 1030), // +3%, noise
		mkBalance("tok-b", "BBB", 150, 1500), // +50%
		mkBalance("tok-c", "CCC", 40, 400),   // -60%
	}

	_, changes, _, err := diffPositions(context.Background(), "sess", "0xwallet",
		old, balances, 5, historyFunc(nil))
	if err != nil {
		t.Fatalf("diffPositions: %v", err)
	}

	if c := changeByID(changes, "tok-a"); c != nil {
		t.Fatalf("3%% move logged a change: %+v", c)
	}
	c := changeByID(changes, "tok-b")
	if c == nil || c.Type != models.ChangeAccumulation {
		t.Fatalf("tok-b change = %+v, want ACCUMULATION", c)
	}
	if !almostEqual(c.ChangePct, 50) {
		t.Fatalf("tok-b ChangePct = %v, want 50", c.ChangePct)
	}
	c = changeByID(changes, "tok-c")
	if c == nil || c.Type != models.ChangeReduction {
		t.Fatalf("tok-c change = %+v, want REDUCTION", c)
	}
	if !almostEqual(c.USDChange, -600) {
		t.Fatalf("tok-c USDChange = %v, want -600", c.USDChange)
	}
}

func TestDiffPositionsExit(t *testing.T) {
	t.Parallel()

	old := map[string]models.TokenPosition{
		"tok-gone": mkPosition("tok-gone", "GONE", 200, 2000),
		"tok-kept": mkPosition("tok-kept", "KEPT", 100, 1000),
	}
	balances := []provider.Balance{
		mkBalance("tok-kept", "KEPT", 100, 1000),
	}

	_, changes, total, err := diffPositions(context.Background(), "sess", "0xwallet",
		old, balances, 5, historyFunc(nil))
	if err != nil {
		t.Fatalf("diffPositions: %v", err)
	}

	if !almostEqual(total, 1000) {
		t.Fatalf("total = %v, want 1000 (exited token excluded)", total)
	}
	c := changeByID(changes, "tok-gone")
	if c == nil || c.Type != models.ChangeExit {
		t.Fatalf("tok-gone change = %+v, want EXIT", c)
	}
	if !almostEqual(c.ChangePct, -100) || !almostEqual(c.USDChange, -2000) {
		t.Fatalf("exit change = %+v, want -100%% / -2000", c)
	}
	if c.NewAmount != 0 {
		t.Fatalf("exit NewAmount = %v, want 0", c.NewAmount)
	}
}

func TestDiffPositionsZeroAmountIsExit(t *testing.T) {
	t.Parallel()

	old := map[string]models.TokenPosition{
		"tok-dust": mkPosition("tok-dust", "DUST", 100, 1000),
	}
	// The provider still lists the token, but with nothing left in it.
	balances := []provider.Balance{
		mkBalance("tok-dust", "DUST", 0, 0),
	}

	positions, changes, total, err := diffPositions(context.Background(), "sess", "0xwallet",
		old, balances, 5, historyFunc(nil))
	if err != nil {
		t.Fatalf("diffPositions: %v", err)
	}

	if len(positions) != 0 {
		t.Fatalf("positions = %+v, want none for a drained token", positions)
	}
	if !almostEqual(total, 0) {
		t.Fatalf("total = %v, want 0", total)
	}
	c := changeByID(changes, "tok-dust")
	if c == nil || c.Type != models.ChangeExit {
		t.Fatalf("change = %+v, want EXIT for a zero quantity", c)
	}
	if !almostEqual(c.ChangePct, -100) || !almostEqual(c.OldAmount, 100) {
		t.Fatalf("exit change = %+v, want -100%% of the old 100", c)
	}
}

func TestDiffPositionsSessionStamp(t *testing.T) {
	t.Parallel()

	balances := []provider.Balance{mkBalance("tok-x", "XXX", 1, 10)}
	_, changes, _, err := diffPositions(context.Background(), "sess-42", "0xwallet",
		map[string]models.TokenPosition{}, balances, 5, historyFunc(nil))
	if err != nil {
		t.Fatalf("diffPositions: %v", err)
	}
	if len(changes) != 1 || changes[0].SessionID != "sess-42" {
		t.Fatalf("changes = %+v, want one row stamped sess-42", changes)
	}
}

type fakeTrackerStore struct {
	wallets   []models.Wallet
	snapshots int
}

func (s *fakeTrackerStore) ListSmartWalletsWithValue(context.Context) ([]models.Wallet, error) {
	return s.wallets, nil
}

func (s *fakeTrackerStore) GetPositions(context.Context, string, bool) (map[string]models.TokenPosition, error) {
	return map[string]models.TokenPosition{}, nil
}

func (s *fakeTrackerStore) HasTokenHistory(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *fakeTrackerStore) ApplyBalanceSnapshot(context.Context, string, []models.TokenPosition, []models.PositionChange, float64) error {
	s.snapshots++
	return nil
}

func (s *fakeTrackerStore) ListChangedTokens(context.Context, string, time.Time, float64) ([]models.TokenPosition, error) {
	return nil, nil
}

func (s *fakeTrackerStore) ReplaceHistory(context.Context, string, string, []models.Transfer) error {
	return nil
}

func (s *fakeTrackerStore) UpsertTokenAnalytics(context.Context, models.TokenAnalytics) error {
	return nil
}

type stubPrices struct{}

func (stubPrices) Price(context.Context, string, string, string) *market.PriceQuote { return nil }

func TestRunChecksMigrations(t *testing.T) {
	t.Parallel()

	store := &fakeTrackerStore{wallets: []models.Wallet{migrationWallet(10000)}}
	migStore := &fakeMigrationStore{}
	client := &fakeClient{
		sends: []provider.Send{mkSend(childAddr, "AAA", "tok-a", 9000, time.Now())},
	}

	tr := New(store, client, stubPrices{}, Config{HoursLookback: 24, AmountDeltaPct: 5})
	tr.Migrations = NewMigrationDetector(migStore, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

	sum, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Migrations != 1 || len(migStore.migrations) != 1 {
		t.Fatalf("sum = %+v, recorded = %d, want the pass to detect one migration", sum, len(migStore.migrations))
	}
	if store.snapshots != 1 {
		t.Fatalf("snapshots = %d, want 1", store.snapshots)
	}
}

func TestRunPartialModesSkipMigrations(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"balance only", Config{BalanceOnly: true, AmountDeltaPct: 5}},
		{"transactions only", Config{TransactionsOnly: true, HoursLookback: 24}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := &fakeTrackerStore{wallets: []models.Wallet{migrationWallet(10000)}}
			migStore := &fakeMigrationStore{}
			client := &fakeClient{
				sends: []provider.Send{mkSend(childAddr, "AAA", "tok-a", 9000, time.Now())},
			}

			tr := New(store, client, stubPrices{}, tc.cfg)
			tr.Migrations = NewMigrationDetector(migStore, client, MigrationConfig{PortfolioFraction: 0.70, Window: 168 * time.Hour})

			sum, err := tr.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if sum.Migrations != 0 || len(migStore.migrations) != 0 {
				t.Fatalf("sum = %+v, recorded = %d, want no migration check in a partial mode", sum, len(migStore.migrations))
			}
		})
	}
}
