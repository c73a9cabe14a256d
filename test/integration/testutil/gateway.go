//go:build integration

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// FakeGatewayAPIKey is the bearer token the fake gateway expects.
const FakeGatewayAPIKey = "gw_test_key"

// FakeGateway serves the gateway's checkout and verify endpoints. Verify
// reports pending until a test sets a final status.
type FakeGateway struct {
	server      *httptest.Server
	seq         atomic.Int64
	verifyCalls atomic.Int64

	mu       sync.Mutex
	statuses map[string]gatewayState
	failNext bool
}

type gatewayState struct {
	status string
	trxID  string
}

// NewFakeGateway starts the fake gateway server.
func NewFakeGateway() *FakeGateway {
	g := &FakeGateway{statuses: make(map[string]gatewayState)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/checkout", g.checkout)
	mux.HandleFunc("/api/verify", g.verify)
	g.server = httptest.NewServer(g.authorize(mux))
	return g
}

// URL is the base URL the HTTP gateway client should call.
func (g *FakeGateway) URL() string { return g.server.URL }

// Close stops the server.
func (g *FakeGateway) Close() { g.server.Close() }

// SetStatus makes verify report status for paymentID from now on.
func (g *FakeGateway) SetStatus(paymentID, status, trxID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[paymentID] = gatewayState{status: status, trxID: trxID}
}

// FailNextCheckout makes the next checkout call return a 502.
func (g *FakeGateway) FailNextCheckout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = true
}

// VerifyCalls returns how many verify requests were served.
func (g *FakeGateway) VerifyCalls() int64 { return g.verifyCalls.Load() }

func (g *FakeGateway) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeGatewayAPIKey {
			http.Error(w, "bad api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *FakeGateway) checkout(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	fail := g.failNext
	g.failNext = false
	g.mu.Unlock()
	if fail {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	var req struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	id := fmt.Sprintf("pay_test_%06d", g.seq.Add(1))
	writeJSON(w, map[string]string{
		"paymentId":   id,
		"checkoutUrl": g.server.URL + "/checkout/" + id,
	})
}

func (g *FakeGateway) verify(w http.ResponseWriter, r *http.Request) {
	g.verifyCalls.Add(1)

	var req struct {
		PaymentID string `json:"paymentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	state, ok := g.statuses[req.PaymentID]
	g.mu.Unlock()
	if !ok {
		state = gatewayState{status: "pending"}
	}
	writeJSON(w, map[string]string{
		"paymentId": req.PaymentID,
		"status":    state.status,
		"trxID":     state.trxID,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
