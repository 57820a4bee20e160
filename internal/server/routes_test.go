package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"volare/internal/bets"
	"volare/internal/game"
	"volare/internal/wallet"
)

type stubDB struct{}

func (stubDB) Health() map[string]string { return map[string]string{"status": "up"} }
func (stubDB) DB() *sql.DB               { return nil }
func (stubDB) Close() error              { return nil }

type stubCache struct{}

func (stubCache) GetClient() *redis.Client { return nil }
func (stubCache) Health() map[string]string {
	return map[string]string{"redis_status": "up"}
}
func (stubCache) Close() error { return nil }

// stubRounds lets a test move the round through its states without running
// the engine clock.
type stubRounds struct {
	mu   sync.Mutex
	snap bets.RoundSnapshot
}

func (s *stubRounds) Snapshot() bets.RoundSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubRounds) set(snap bets.RoundSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func newTestServer(t *testing.T) (*FiberServer, *stubRounds, *wallet.Memory) {
	t.Helper()

	hub := game.NewHub()
	w := wallet.NewMemory()
	ledger := bets.NewLedger(w, hub, nil)

	rounds := &stubRounds{snap: bets.RoundSnapshot{ID: "round-1", Status: bets.StatusWaiting}}
	ledger.SetRoundSource(rounds)

	s := &FiberServer{
		App:    fiber.New(),
		db:     stubDB{},
		cache:  stubCache{},
		ledger: ledger,
		hub:    hub,
		wallet: w,
	}
	s.RegisterFiberRoutes()
	return s, rounds, w
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest("POST", path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("could not decode body: %v", err)
	}
	resp.Body.Close()
	return body
}

func TestHealthHandler(t *testing.T) {
	s, _, _ := newTestServer(t)

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	body := decodeBody(t, resp)
	if _, ok := body["database"]; !ok {
		t.Error("expected database section in health response")
	}
	if _, ok := body["cache"]; !ok {
		t.Error("expected cache section in health response")
	}
}

func TestPlaceBetHandler(t *testing.T) {
	s, _, w := newTestServer(t)
	w.SetBalance(context.Background(), "user-1", 100.00)

	resp := postJSON(t, s.App, "/api/v1/bet/place", placeBetRequest{
		UserID:   "user-1",
		Username: "alice",
		Amount:   10.00,
		Slot:     0,
		Nonce:    "n-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}

	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("expected success=true, got %v", body["success"])
	}
	if body["balance"].(float64) != 90.00 {
		t.Errorf("expected balance 90.00, got %v", body["balance"])
	}
}

func TestPlaceBetHandler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     placeBetRequest
		wantErr string
	}{
		{
			name:    "Missing user id",
			req:     placeBetRequest{Amount: 10.00, Slot: 0},
			wantErr: "User ID is required",
		},
		{
			name:    "Amount too small",
			req:     placeBetRequest{UserID: "user-1", Amount: 0.05, Slot: 0},
			wantErr: bets.ErrInvalidAmount.Error(),
		},
		{
			name:    "Amount too large",
			req:     placeBetRequest{UserID: "user-1", Amount: 250.00, Slot: 0},
			wantErr: bets.ErrInvalidAmount.Error(),
		},
		{
			name:    "Bad slot",
			req:     placeBetRequest{UserID: "user-1", Amount: 10.00, Slot: 3},
			wantErr: bets.ErrInvalidSlot.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, w := newTestServer(t)
			w.SetBalance(context.Background(), "user-1", 100.00)

			resp := postJSON(t, s.App, "/api/v1/bet/place", tt.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected status 400; got %v", resp.Status)
			}
			body := decodeBody(t, resp)
			if body["error"] != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, body["error"])
			}
		})
	}
}

func TestPlaceBetHandler_RoundFlying(t *testing.T) {
	s, rounds, w := newTestServer(t)
	w.SetBalance(context.Background(), "user-1", 100.00)
	rounds.set(bets.RoundSnapshot{ID: "round-1", Status: bets.StatusFlying, Multiplier: 1.50})

	resp := postJSON(t, s.App, "/api/v1/bet/place", placeBetRequest{
		UserID: "user-1", Amount: 10.00, Slot: 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400; got %v", resp.Status)
	}
}

func TestCashoutHandler(t *testing.T) {
	s, rounds, w := newTestServer(t)
	w.SetBalance(context.Background(), "user-1", 100.00)

	resp := postJSON(t, s.App, "/api/v1/bet/place", placeBetRequest{
		UserID: "user-1", Username: "alice", Amount: 10.00, Slot: 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: expected status OK; got %v", resp.Status)
	}
	resp.Body.Close()

	rounds.set(bets.RoundSnapshot{ID: "round-1", Status: bets.StatusFlying, Multiplier: 2.50})

	resp = postJSON(t, s.App, "/api/v1/bet/cashout", slotRequest{UserID: "user-1", Slot: 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cashout: expected status OK; got %v", resp.Status)
	}

	body := decodeBody(t, resp)
	if body["win_amount"].(float64) != 25.00 {
		t.Errorf("expected win 25.00, got %v", body["win_amount"])
	}
	if body["balance"].(float64) != 115.00 {
		t.Errorf("expected balance 115.00, got %v", body["balance"])
	}

	// second attempt on the same slot is rejected
	resp = postJSON(t, s.App, "/api/v1/bet/cashout", slotRequest{UserID: "user-1", Slot: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("repeat cashout: expected status 400; got %v", resp.Status)
	}
	body = decodeBody(t, resp)
	if body["error"] != bets.ErrAlreadyCashedOut.Error() {
		t.Errorf("expected error %q, got %v", bets.ErrAlreadyCashedOut.Error(), body["error"])
	}
}

func TestCancelBetHandler(t *testing.T) {
	s, _, w := newTestServer(t)
	w.SetBalance(context.Background(), "user-1", 100.00)

	resp := postJSON(t, s.App, "/api/v1/bet/place", placeBetRequest{
		UserID: "user-1", Amount: 10.00, Slot: 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place: expected status OK; got %v", resp.Status)
	}
	resp.Body.Close()

	resp = postJSON(t, s.App, "/api/v1/bet/cancel", slotRequest{UserID: "user-1", Slot: 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected status OK; got %v", resp.Status)
	}
	body := decodeBody(t, resp)
	if body["balance"].(float64) != 100.00 {
		t.Errorf("expected balance restored to 100.00, got %v", body["balance"])
	}

	resp = postJSON(t, s.App, "/api/v1/bet/cancel", slotRequest{UserID: "user-1", Slot: 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("repeat cancel: expected status 400; got %v", resp.Status)
	}
}

func TestBalanceHandlers(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := postJSON(t, s.App, "/api/v1/user/user-9/balance", map[string]float64{"balance": 55.50})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set balance: expected status OK; got %v", resp.Status)
	}
	resp.Body.Close()

	req, _ := http.NewRequest("GET", "/api/v1/user/user-9/balance", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get balance: expected status OK; got %v", resp.Status)
	}
	body := decodeBody(t, resp)
	if body["balance"].(float64) != 55.50 {
		t.Errorf("expected balance 55.50, got %v", body["balance"])
	}
}

func TestBalanceHandler_UnknownUser(t *testing.T) {
	s, _, _ := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/v1/user/ghost/balance", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status OK; got %v", resp.Status)
	}
	body := decodeBody(t, resp)
	if body["balance"].(float64) != 0 {
		t.Errorf("expected balance 0 for unknown user, got %v", body["balance"])
	}
}
