package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/upstream"
)

// NegotiationState is the state machine driven by CreateIntent.
type NegotiationState string

const (
	StateIdle                    NegotiationState = "idle"
	StateNegotiatingSubscription NegotiationState = "negotiating_subscription"
	StateNegotiatingOrder        NegotiationState = "negotiating_order"
	StateReady                   NegotiationState = "ready"
	StateFailed                  NegotiationState = "failed"
)

// IntentAPI is the slice of the platform client the negotiator consumes.
type IntentAPI interface {
	CreateSubscription(ctx context.Context, token, planID string) (string, error)
	CreateOrder(ctx context.Context, token string, amountMinorUnits int64, planID string) (string, error)
}

// externalIDPattern is the structural check on backend-issued identifiers.
// The upstream API is known to report success without a usable identifier;
// such responses are fatal to the attempt.
var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,191}$`)

func validExternalID(id string) bool {
	return externalIDPattern.MatchString(strings.TrimSpace(id))
}

// IntentNegotiator decides which intent kind to request for a plan and
// performs the one-time subscription-to-order fallback when the backend
// declares the plan non-recurring. One instance serves exactly one attempt;
// a retry constructs a fresh negotiator with the next attempt sequence.
type IntentNegotiator struct {
	api IntentAPI

	state             NegotiationState
	subscriptionCalls int
	orderCalls        int
	fallbackTaken     bool
}

func NewIntentNegotiator(api IntentAPI) *IntentNegotiator {
	return &IntentNegotiator{api: api, state: StateIdle}
}

// State returns the current negotiation state.
func (n *IntentNegotiator) State() NegotiationState {
	return n.state
}

// FallbackTaken reports whether the subscription-to-order transition ran.
func (n *IntentNegotiator) FallbackTaken() bool {
	return n.fallbackTaken
}

// CreateIntent runs the state machine to a terminal state and returns the
// ready intent. Recurring plans try subscription-create first; everything
// else goes straight to order-create. At most one call of each kind is
// issued, and the fallback is one-directional and never repeats.
func (n *IntentNegotiator) CreateIntent(ctx context.Context, token string, plan catalog.Plan, attemptSequence int) (*PaymentIntent, error) {
	if n.state != StateIdle {
		return nil, fmt.Errorf("negotiator already used (state=%s): %w", n.state, ErrNegotiationFailed)
	}

	if plan.IsRecurring {
		intent, err := n.negotiateSubscription(ctx, token, plan, attemptSequence)
		if err == nil {
			return intent, nil
		}
		if !n.fallbackTaken {
			return nil, err
		}
		// Recognized "not recurring" rejection: fall through to the order
		// path exactly once.
	} else {
		n.state = StateNegotiatingOrder
	}

	return n.negotiateOrder(ctx, token, plan, attemptSequence)
}

func (n *IntentNegotiator) negotiateSubscription(ctx context.Context, token string, plan catalog.Plan, attemptSequence int) (*PaymentIntent, error) {
	n.state = StateNegotiatingSubscription
	n.subscriptionCalls++

	subscriptionID, err := n.api.CreateSubscription(ctx, token, plan.ID)
	if err != nil {
		if isNotRecurringSignal(err) {
			log.Infof("[Checkout] plan %s rejected as non-recurring, falling back to order intent", plan.ID)
			n.fallbackTaken = true
			n.state = StateNegotiatingOrder
			return nil, err
		}
		n.state = StateFailed
		return nil, fmt.Errorf("subscription intent for plan %s: %v: %w", plan.ID, err, ErrNegotiationFailed)
	}

	if !validExternalID(subscriptionID) {
		n.state = StateFailed
		return nil, fmt.Errorf("subscription intent for plan %s: %w", plan.ID, ErrStructuralResponse)
	}

	n.state = StateReady
	return &PaymentIntent{
		Kind:             IntentSubscription,
		ExternalID:       subscriptionID,
		AmountMinorUnits: plan.PriceMinorUnits,
		PlanID:           plan.ID,
		AttemptSequence:  attemptSequence,
	}, nil
}

func (n *IntentNegotiator) negotiateOrder(ctx context.Context, token string, plan catalog.Plan, attemptSequence int) (*PaymentIntent, error) {
	if n.state != StateNegotiatingOrder {
		return nil, fmt.Errorf("order negotiation from state %s: %w", n.state, ErrNegotiationFailed)
	}
	n.orderCalls++

	orderID, err := n.api.CreateOrder(ctx, token, plan.PriceMinorUnits, plan.ID)
	if err != nil {
		n.state = StateFailed
		return nil, fmt.Errorf("order intent for plan %s: %v: %w", plan.ID, err, ErrNegotiationFailed)
	}

	// A truthy response without a usable order identifier is a known failure
	// mode of the upstream API.
	if !validExternalID(orderID) {
		n.state = StateFailed
		return nil, fmt.Errorf("order intent for plan %s: %w", plan.ID, ErrStructuralResponse)
	}

	n.state = StateReady
	return &PaymentIntent{
		Kind:             IntentOrder,
		ExternalID:       orderID,
		AmountMinorUnits: plan.PriceMinorUnits,
		PlanID:           plan.ID,
		AttemptSequence:  attemptSequence,
	}, nil
}

// isNotRecurringSignal recognizes the backend rejection that triggers the
// subscription-to-order fallback.
func isNotRecurringSignal(err error) bool {
	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "not recurring") || apiErr.Code == "plan_not_recurring"
}
