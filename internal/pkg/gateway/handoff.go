package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/security"
)

const (
	pendingKeyPrefix = "checkout:handoff:"

	// The gateway offers no cancellation of an opened sheet; the guard TTL
	// bounds how long a lost callback can block a session.
	handoffGuardTTL = 30 * time.Minute
)

// ErrHandoffPending rejects a second open while a handoff is in flight for
// the same session. This is the double-submission guard.
var ErrHandoffPending = errors.New("a payment handoff is already open for this session")

// OutcomeStatus is the terminal result of one gateway handoff.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomeError     OutcomeStatus = "error"
)

// Outcome is delivered exactly once per handoff by the gateway callback.
// An error outcome may mask a silent success on the gateway side; resolving
// that ambiguity is the reconciler's job, not this package's.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	PaymentID string        `json:"payment_id,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Signature string        `json:"signature,omitempty"`
}

// Handoff opens gateway checkouts with a per-session re-entrancy guard.
type Handoff struct {
	client *Client
	guard  cache.Guard
}

func NewHandoff(client *Client) *Handoff {
	return NewHandoffWithGuard(client, cache.NewGuard())
}

// NewHandoffWithGuard wires an explicit guard, used by tests.
func NewHandoffWithGuard(client *Client, guard cache.Guard) *Handoff {
	return &Handoff{client: client, guard: guard}
}

// Open registers the pending handoff and issues the single gateway
// checkout-create call. A second Open for the same session is rejected
// before any gateway request is made.
func (h *Handoff) Open(ctx context.Context, sessionID string, attemptSequence int, req CheckoutRequest) (*CheckoutOptions, error) {
	acquired, err := h.guard.Acquire(pendingKey(sessionID), strconv.Itoa(attemptSequence), handoffGuardTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrHandoffPending
	}

	opts, err := h.client.CreateCheckout(ctx, req)
	if err != nil {
		// Release the guard so the session stays retryable.
		h.guard.Release(pendingKey(sessionID))
		return nil, err
	}
	return opts, nil
}

// VerifyOutcome checks the gateway's payment signature over
// "<external_id>|<payment_id>". Outcomes without a signature pass; older
// device builds do not send one.
func (h *Handoff) VerifyOutcome(intentExternalID string, o Outcome) bool {
	if o.Signature == "" {
		return true
	}
	return security.VerifyPayload(intentExternalID+"|"+o.PaymentID, o.Signature, h.client.KeySecret)
}

// Pending reports whether a handoff is open for the session.
func (h *Handoff) Pending(sessionID string) bool {
	return h.guard.Held(pendingKey(sessionID))
}

// Release clears the guard after a terminal outcome.
func (h *Handoff) Release(sessionID string) {
	h.guard.Release(pendingKey(sessionID))
}

func pendingKey(sessionID string) string {
	return pendingKeyPrefix + sessionID
}
