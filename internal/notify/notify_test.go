package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"walletintel/internal/models"
)

type recordSink struct {
	texts []string
	err   error
}

func (s *recordSink) Notify(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func TestFanoutContinuesPastFailure(t *testing.T) {
	t.Parallel()

	bad := &recordSink{err: errors.New("down")}
	good := &recordSink{}
	f := NewFanout(bad, good)

	err := f.Notify(context.Background(), "hello")
	if err == nil {
		t.Fatal("fanout should surface the failure")
	}
	if len(good.texts) != 1 || good.texts[0] != "hello" {
		t.Fatalf("healthy sink got %v, want the message", good.texts)
	}
}

func TestFormatSignal(t *testing.T) {
	t.Parallel()

	s := models.ConsensusSignal{
		Symbol:           "PEPE",
		ContractAddress:  "0xc1",
		Chain:            "ethereum",
		SignalType:       models.SignalExceptionalConsensus,
		WhaleCount:       3,
		ExceptionalCount: 1,
		TotalInvestment:  15000,
		AvgEntryPrice:    0.000012,
		MarketCap:        5_000_000,
		Liquidity:        400_000,
		FirstBuy:         time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		LastBuy:          time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC),
		Wallets:          []string{"0xaaa", "0xbbb", "0xccc"},
	}

	text := FormatSignal(s)
	for _, want := range []string{"EXCEPTIONAL_CONSENSUS", "PEPE", "3", "$15000", "0xc1", "0xaaa, 0xbbb, 0xccc"} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted signal missing %q:\n%s", want, text)
		}
	}
}

func TestFormatChanges(t *testing.T) {
	t.Parallel()

	changes := []models.PositionChange{
		{Type: models.ChangeNew, Symbol: "AAA", NewAmount: 100, NewUSDValue: 1000},
		{Type: models.ChangeReduction, Symbol: "BBB", ChangePct: -50, USDChange: -500},
		{Type: models.ChangeExit, Symbol: "CCC", OldAmount: 10, OldUSDValue: 200},
	}

	text := FormatChanges("0xwallet", changes)
	for _, want := range []string{"0xwallet", "NEW AAA", "REDUCTION BBB", "EXIT CCC"} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted changes missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramSinkPostsMessage(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottok-123/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewTelegramSink("tok-123", "chat-9")
	sink.baseURL = srv.URL

	if err := sink.Notify(context.Background(), "alert text"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got["chat_id"] != "chat-9" || got["text"] != "alert text" {
		t.Fatalf("payload = %v", got)
	}
}

func TestTelegramSinkErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer srv.Close()

	sink := NewTelegramSink("tok", "chat")
	sink.baseURL = srv.URL

	if err := sink.Notify(context.Background(), "x"); err == nil {
		t.Fatal("non-200 must be an error")
	}
}
