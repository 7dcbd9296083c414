package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"walletintel/internal/models"
	"walletintel/internal/provider"

	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSmartWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.ListSmartWallets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wallets == nil {
		wallets = []models.SmartWallet{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(wallets), "wallets": wallets})
}

func (s *Server) handleSmartWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	sw, err := s.store.GetSmartWallet(r.Context(), provider.NormalizeAddress(address))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sw == nil {
		writeError(w, http.StatusNotFound, "wallet not elected")
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (s *Server) handleQualifiedWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.ListQualifiedWallets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wallets == nil {
		wallets = []models.QualifiedWallet{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(wallets), "wallets": wallets})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..500")
			return
		}
		limit = n
	}

	signals, err := s.store.ListActiveSignals(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if signals == nil {
		signals = []models.ConsensusSignal{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(signals), "signals": signals})
}

func (s *Server) handleWalletAnalytics(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !provider.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}

	analytics, err := s.store.ListTokenAnalytics(r.Context(), provider.NormalizeAddress(address))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if analytics == nil {
		analytics = []models.TokenAnalytics{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(analytics), "tokens": analytics})
}

func (s *Server) handleWalletTiers(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !provider.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}

	tiers, err := s.store.ListTierPerformance(r.Context(), provider.NormalizeAddress(address))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tiers == nil {
		tiers = []models.TierPerformance{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(tiers), "tiers": tiers})
}

// handleWalletMigrations reports where a wallet's portfolio went: the full
// old->new chain plus the recorded outgoing migrations.
func (s *Server) handleWalletMigrations(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !provider.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}
	wallet := provider.NormalizeAddress(address)

	chain, err := s.store.MigrationChain(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	migrations, err := s.store.ListMigrationsFrom(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if migrations == nil {
		migrations = []models.WalletMigration{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain":      chain,
		"migrations": migrations,
	})
}

type addWalletRequest struct {
	Address string `json:"address"`
	Period  string `json:"period"`
}

func (s *Server) handleAdminAddWallet(w http.ResponseWriter, r *http.Request) {
	var req addWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if !provider.ValidAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}

	period := models.PeriodManual
	if req.Period != "" {
		period = models.DiscoveryPeriod(req.Period)
	}

	inserted, err := s.store.InsertWalletIgnore(r.Context(), provider.NormalizeAddress(req.Address), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"address":  provider.NormalizeAddress(req.Address),
		"period":   period,
		"inserted": inserted,
	})
}
