// Package api serves the read API over the tracking database and streams
// live signals over websocket.
package api

import (
	"context"
	"net/http"

	"walletintel/internal/eventbus"
	"walletintel/internal/models"

	"github.com/gorilla/mux"
)

// Store is the read/admin surface the API exposes.
type Store interface {
	Ping(ctx context.Context) error
	ListSmartWallets(ctx context.Context) ([]models.SmartWallet, error)
	GetSmartWallet(ctx context.Context, wallet string) (*models.SmartWallet, error)
	ListQualifiedWallets(ctx context.Context) ([]models.QualifiedWallet, error)
	ListActiveSignals(ctx context.Context, limit int) ([]models.ConsensusSignal, error)
	ListTokenAnalytics(ctx context.Context, wallet string) ([]models.TokenAnalytics, error)
	ListTierPerformance(ctx context.Context, wallet string) ([]models.TierPerformance, error)
	MigrationChain(ctx context.Context, wallet string) ([]string, error)
	ListMigrationsFrom(ctx context.Context, oldWallet string) ([]models.WalletMigration, error)
	InsertWalletIgnore(ctx context.Context, address string, period models.DiscoveryPeriod) (bool, error)
}

type Server struct {
	store      Store
	bus        *eventbus.Bus
	hub        *Hub
	httpServer *http.Server
}

func NewServer(store Store, bus *eventbus.Bus, port string, jwtSecret string) *Server {
	s := &Server{
		store: store,
		bus:   bus,
		hub:   newHub(),
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws", s.handleWebSocket)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/smart-wallets", s.handleSmartWallets).Methods("GET", "OPTIONS")
	v1.HandleFunc("/smart-wallets/{address}", s.handleSmartWallet).Methods("GET", "OPTIONS")
	v1.HandleFunc("/qualified-wallets", s.handleQualifiedWallets).Methods("GET", "OPTIONS")
	v1.HandleFunc("/signals", s.handleSignals).Methods("GET", "OPTIONS")
	v1.HandleFunc("/wallets/{address}/analytics", s.handleWalletAnalytics).Methods("GET", "OPTIONS")
	v1.HandleFunc("/wallets/{address}/tiers", s.handleWalletTiers).Methods("GET", "OPTIONS")
	v1.HandleFunc("/wallets/{address}/migrations", s.handleWalletMigrations).Methods("GET", "OPTIONS")

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(NewAuthMiddleware(jwtSecret).Middleware)
	admin.HandleFunc("/wallets", s.handleAdminAddWallet).Methods("POST", "OPTIONS")

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

// Start runs the hub, bridges bus events onto it and serves HTTP. Blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	go s.hub.run()
	if s.bus != nil {
		go s.pumpEvents()
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
