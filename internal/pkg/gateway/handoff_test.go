package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loadway/Loadway/internal/pkg/security"
)

// memoryGuard replaces the Redis guard in tests.
type memoryGuard struct {
	held map[string]string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{held: make(map[string]string)}
}

func (g *memoryGuard) Acquire(key, value string, _ time.Duration) (bool, error) {
	if _, ok := g.held[key]; ok {
		return false, nil
	}
	g.held[key] = value
	return true, nil
}

func (g *memoryGuard) Release(key string) {
	delete(g.held, key)
}

func (g *memoryGuard) Held(key string) bool {
	_, ok := g.held[key]
	return ok
}

func orderRequest() CheckoutRequest {
	return CheckoutRequest{
		Reference:        "sess_1",
		OrderID:          "order_777",
		AmountMinorUnits: 49900,
	}
}

func TestOpenSecondCallRejectedWhilePending(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chk_123"}`))
	}))
	defer srv.Close()

	client := &Client{KeyID: "key_test", KeySecret: "secret_test", BaseURL: srv.URL, ThemeColor: "#1A74E8", HTTPClient: srv.Client()}
	h := NewHandoffWithGuard(client, newMemoryGuard())

	if _, err := h.Open(context.Background(), "sess_1", 1, orderRequest()); err != nil {
		t.Fatalf("unexpected error on first open: %v", err)
	}
	if !h.Pending("sess_1") {
		t.Fatalf("expected handoff to be pending after open")
	}

	// the double tap
	if _, err := h.Open(context.Background(), "sess_1", 1, orderRequest()); !errors.Is(err, ErrHandoffPending) {
		t.Fatalf("expected pending rejection, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("second open must not reach the gateway, got %d calls", calls)
	}

	// a terminal outcome releases the guard and the next attempt goes through
	h.Release("sess_1")
	if _, err := h.Open(context.Background(), "sess_1", 2, orderRequest()); err != nil {
		t.Fatalf("unexpected error after release: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a fresh gateway call after release, got %d", calls)
	}
}

func TestOpenReleasesGuardWhenGatewayFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := &Client{KeyID: "key_test", KeySecret: "secret_test", BaseURL: srv.URL, ThemeColor: "#1A74E8", HTTPClient: srv.Client()}
	guard := newMemoryGuard()
	h := NewHandoffWithGuard(client, guard)

	if _, err := h.Open(context.Background(), "sess_1", 1, orderRequest()); err == nil {
		t.Fatalf("expected gateway failure to surface")
	}
	if h.Pending("sess_1") {
		t.Fatalf("failed open must not leave the guard held")
	}
	if _, err := h.Open(context.Background(), "sess_1", 2, orderRequest()); err == nil {
		t.Fatalf("expected gateway failure to surface")
	}
	if calls != 2 {
		t.Fatalf("retry after a failed open must reach the gateway, got %d calls", calls)
	}
}

func TestVerifyOutcome(t *testing.T) {
	h := NewHandoff(&Client{KeyID: "key_test", KeySecret: "secret_test"})

	signed := Outcome{
		Status:    OutcomeSuccess,
		PaymentID: "pay_123",
		Signature: security.SignPayload("order_777|pay_123", "secret_test"),
	}
	if !h.VerifyOutcome("order_777", signed) {
		t.Fatalf("expected valid signature to verify")
	}

	tampered := signed
	tampered.PaymentID = "pay_456"
	if h.VerifyOutcome("order_777", tampered) {
		t.Fatalf("expected tampered payment id to fail verification")
	}

	wrongIntent := signed
	if h.VerifyOutcome("order_888", wrongIntent) {
		t.Fatalf("expected foreign intent to fail verification")
	}

	// unsigned outcomes pass, the signature is optional
	unsigned := Outcome{Status: OutcomeSuccess, PaymentID: "pay_123"}
	if !h.VerifyOutcome("order_777", unsigned) {
		t.Fatalf("expected unsigned outcome to pass")
	}
}
