package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walletintel/internal/models"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const testAddr = "0x1111111111111111111111111111111111111111"

type fakeStore struct {
	smartWallets []models.SmartWallet
	signals      []models.ConsensusSignal
	analytics    []models.TokenAnalytics
	chain        []string
	migrations   []models.WalletMigration
	inserted     []string
	pingErr      error
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) ListSmartWallets(context.Context) ([]models.SmartWallet, error) {
	return s.smartWallets, nil
}

func (s *fakeStore) GetSmartWallet(_ context.Context, wallet string) (*models.SmartWallet, error) {
	for i := range s.smartWallets {
		if s.smartWallets[i].Wallet == wallet {
			return &s.smartWallets[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListQualifiedWallets(context.Context) ([]models.QualifiedWallet, error) {
	return nil, nil
}

func (s *fakeStore) ListActiveSignals(_ context.Context, limit int) ([]models.ConsensusSignal, error) {
	if limit < len(s.signals) {
		return s.signals[:limit], nil
	}
	return s.signals, nil
}

func (s *fakeStore) ListTokenAnalytics(context.Context, string) ([]models.TokenAnalytics, error) {
	return s.analytics, nil
}

func (s *fakeStore) ListTierPerformance(context.Context, string) ([]models.TierPerformance, error) {
	return nil, nil
}

func (s *fakeStore) MigrationChain(_ context.Context, wallet string) ([]string, error) {
	if len(s.chain) > 0 {
		return s.chain, nil
	}
	return []string{wallet}, nil
}

func (s *fakeStore) ListMigrationsFrom(context.Context, string) ([]models.WalletMigration, error) {
	return s.migrations, nil
}

func (s *fakeStore) InsertWalletIgnore(_ context.Context, address string, _ models.DiscoveryPeriod) (bool, error) {
	s.inserted = append(s.inserted, address)
	return true, nil
}

func newTestServer(store Store) *httptest.Server {
	s := NewServer(store, nil, "0", "test-secret")
	go s.hub.run()
	return httptest.NewServer(s.httpServer.Handler)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSmartWalletsEndpoint(t *testing.T) {
	t.Parallel()

	store := &fakeStore{smartWallets: []models.SmartWallet{
		{Wallet: testAddr, OptimalTier: 4000, Status: models.ThresholdExcellent},
	}}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/smart-wallets")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Count   int                  `json:"count"`
		Wallets []models.SmartWallet `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Wallets[0].OptimalTier != 4000 {
		t.Fatalf("body = %+v", body)
	}
}

func TestSmartWalletNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/smart-wallets/" + testAddr)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWalletAnalyticsRejectsMalformedAddress(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/wallets/not-an-address/analytics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWalletMigrationsEndpoint(t *testing.T) {
	t.Parallel()

	const nextAddr = "0x2222222222222222222222222222222222222222"
	store := &fakeStore{
		chain: []string{testAddr, nextAddr},
		migrations: []models.WalletMigration{
			{OldWallet: testAddr, NewWallet: nextAddr, TransferPct: 85},
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/wallets/" + testAddr + "/migrations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Chain      []string                 `json:"chain"`
		Migrations []models.WalletMigration `json:"migrations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Chain) != 2 || body.Chain[1] != nextAddr {
		t.Fatalf("chain = %v, want the two-hop walk", body.Chain)
	}
	if len(body.Migrations) != 1 || body.Migrations[0].NewWallet != nextAddr {
		t.Fatalf("migrations = %+v", body.Migrations)
	}

	resp, err = http.Get(srv.URL + "/api/v1/wallets/not-an-address/migrations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed address", resp.StatusCode)
	}
}

func TestSignalsLimitValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/signals?limit=0")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestAdminAddWalletRequiresAuth(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(store)
	defer srv.Close()

	body := []byte(`{"address":"` + testAddr + `"}`)

	resp, err := http.Post(srv.URL+"/api/v1/admin/wallets", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/wallets", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status with token = %d, want 201", resp.StatusCode)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %v, want one wallet", store.inserted)
	}
}

func TestAdminAddWalletRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/wallets",
		bytes.NewReader([]byte(`{"address":"`+testAddr+`"}`)))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
