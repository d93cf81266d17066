package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/catalog"
)

// IntentKind distinguishes recurring-subscription intents from one-time
// order intents.
type IntentKind string

const (
	IntentSubscription IntentKind = IntentKind(models.IntentKindSubscription)
	IntentOrder        IntentKind = IntentKind(models.IntentKindOrder)
)

// PaymentIntent is created per checkout attempt and consumed exactly once by
// the gateway handoff. It is never mutated after creation; a failed or
// superseded intent is discarded and a new one carries the next attempt
// sequence.
type PaymentIntent struct {
	Kind             IntentKind `json:"kind"`
	ExternalID       string     `json:"external_id"`
	AmountMinorUnits int64      `json:"amount_minor_units"`
	PlanID           string     `json:"plan_id"`
	AttemptSequence  int        `json:"attempt_sequence"`
}

// SessionState is the coarse lifecycle of a checkout session.
type SessionState string

const (
	// SessionSelecting: plan chosen, no payment in flight. Also the state a
	// session returns to after a cancel or a retryable failure.
	SessionSelecting SessionState = "selecting"
	// SessionPending: an intent is negotiated and a gateway handoff is open.
	SessionPending SessionState = "pending"
	// SessionSucceeded is terminal.
	SessionSucceeded SessionState = "succeeded"
)

// CheckoutSession is the ephemeral state of one checkout, owned by the engine
// and persisted in the cache between requests. The consent flag and the
// in-flight guard live here, never in process-wide state.
type CheckoutSession struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Role            string         `json:"role"`
	Plan            catalog.Plan   `json:"plan"`
	ConsentGiven    bool           `json:"consent_given"`
	ContactName     string         `json:"contact_name,omitempty"`
	ContactEmail    string         `json:"contact_email,omitempty"`
	AttemptSequence int            `json:"attempt_sequence"`
	CurrentIntent   *PaymentIntent `json:"current_intent,omitempty"`
	State           SessionState   `json:"state"`
	LastFailure     string         `json:"last_failure,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewCheckoutSession(userID, role string, plan catalog.Plan) *CheckoutSession {
	now := time.Now()
	return &CheckoutSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      role,
		Plan:      plan,
		State:     SessionSelecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ToggleConsent flips the consent flag and returns the new state. Pure flag,
// no I/O and no navigation side effects.
func (s *CheckoutSession) ToggleConsent() bool {
	s.ConsentGiven = !s.ConsentGiven
	return s.ConsentGiven
}

// ConsentGranted reports whether the pay action may proceed.
func (s *CheckoutSession) ConsentGranted() bool {
	return s.ConsentGiven
}
