package checkout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/analytics"
	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/gateway"
	"github.com/loadway/Loadway/internal/pkg/jobqueue"
	metrics "github.com/loadway/Loadway/internal/pkg/metrics/counter"
	"github.com/loadway/Loadway/internal/pkg/upstream"
)

const (
	loadingKeyPrefix = "checkout:loading:"

	// Matches the handoff guard TTL so both guards expire together when a
	// terminal outcome is never delivered.
	loadingGuardTTL = 30 * time.Minute
)

// sessionStore is the slice of the session store the engine needs. Tests
// substitute an in-memory implementation.
type sessionStore interface {
	Save(s *CheckoutSession) error
	Load(sessionID string) (*CheckoutSession, error)
}

// Engine orchestrates one checkout end to end: plan selection, consent,
// intent negotiation, gateway handoff and outcome reconciliation. The UI
// surface talks only to the engine; nothing below the reconciler reaches the
// surface directly.
type Engine struct {
	catalog    *catalog.Catalog
	intents    IntentAPI
	handoff    *gateway.Handoff
	repo       Repository
	reconciler *Reconciler
	store      sessionStore
	loading    cache.Guard
}

func NewEngine(cat *catalog.Catalog, intents IntentAPI, handoff *gateway.Handoff, repo Repository, sink analytics.Sink, jobs JobEnqueuer) *Engine {
	return &Engine{
		catalog:    cat,
		intents:    intents,
		handoff:    handoff,
		repo:       repo,
		reconciler: NewReconciler(repo, sink, jobs),
		store:      NewSessionStore(),
		loading:    cache.NewGuard(),
	}
}

// NewEngineFromEnv wires the engine against the real collaborators.
func NewEngineFromEnv(db *gorm.DB) *Engine {
	api := upstream.NewClientFromEnv()
	return NewEngine(
		catalog.NewCatalog(api),
		api,
		gateway.NewHandoff(gateway.NewClientFromEnv()),
		NewRepository(db),
		analytics.NewSinkFromEnv(),
		jobqueue.GetManager().GetQueue(),
	)
}

// Plans returns the tiered catalog for a role plus the caller's current plan
// within it, if any.
func (e *Engine) Plans(ctx context.Context, token, userID, role string) ([]catalog.Plan, *catalog.Plan, error) {
	plans, err := e.catalog.PlansWithFallback(ctx, token, role)
	if err != nil {
		return nil, nil, err
	}

	sub, err := e.catalog.ActiveSubscription(ctx, token, userID)
	if err != nil {
		if errors.Is(err, upstream.ErrAuthInvalid) {
			return nil, nil, err
		}
		// Subscription status is a nicety on the selection surface; the
		// catalog itself must not block on it.
		log.Warnf("[Checkout] subscription lookup failed for user %s: %v", userID, err)
		sub = nil
	}

	return plans, catalog.CurrentPlanFor(plans, sub), nil
}

// Subscription returns the caller's active subscription, nil when none.
func (e *Engine) Subscription(ctx context.Context, token, userID string) (*catalog.ActiveSubscription, error) {
	return e.catalog.ActiveSubscription(ctx, token, userID)
}

// StartSession creates a checkout session for a selected plan. Selecting the
// caller's current plan short-circuits with ErrAlreadySubscribed.
func (e *Engine) StartSession(ctx context.Context, token, userID, role, planID string) (*CheckoutSession, error) {
	plans, current, err := e.Plans(ctx, token, userID, role)
	if err != nil {
		return nil, err
	}

	var selected *catalog.Plan
	for i := range plans {
		if plans[i].ID == planID {
			selected = &plans[i]
			break
		}
	}
	if selected == nil {
		return nil, ErrPlanNotFound
	}
	if current != nil && current.ID == selected.ID {
		return nil, ErrAlreadySubscribed
	}

	session := NewCheckoutSession(userID, role, *selected)
	if err := e.store.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Session loads a checkout session by id.
func (e *Engine) Session(sessionID string) (*CheckoutSession, error) {
	return e.store.Load(sessionID)
}

// ToggleConsent flips the session's consent flag.
func (e *Engine) ToggleConsent(sessionID string) (*CheckoutSession, error) {
	session, err := e.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == SessionSucceeded {
		return nil, ErrSessionClosed
	}
	session.ToggleConsent()
	if err := e.store.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Pay runs one checkout attempt: consent gate, double-submission guard,
// intent negotiation and gateway handoff. It returns the gateway options the
// device SDK needs to open the payment sheet.
func (e *Engine) Pay(ctx context.Context, token, sessionID string, prefill gateway.PrefillIdentity) (*gateway.CheckoutOptions, *CheckoutSession, error) {
	session, err := e.store.Load(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.State == SessionSucceeded {
		return nil, nil, ErrSessionClosed
	}
	if !session.ConsentGranted() {
		return nil, nil, ErrConsentRequired
	}

	// The in-flight guard is set the instant the checkout is initiated and
	// cleared only on a terminal outcome. Re-entrant taps land here.
	attemptSequence := session.AttemptSequence + 1
	acquired, err := e.loading.Acquire(loadingKey(sessionID), strconv.Itoa(attemptSequence), loadingGuardTTL)
	if err != nil {
		return nil, nil, err
	}
	if !acquired {
		return nil, nil, ErrCheckoutInFlight
	}

	_ = metrics.Add(metrics.FieldStarted)

	expectedKind := models.IntentKindOrder
	if session.Plan.IsRecurring {
		expectedKind = models.IntentKindSubscription
	}
	attempt := &models.CheckoutAttempt{
		SessionID:        session.ID,
		AttemptSequence:  attemptSequence,
		UserID:           session.UserID,
		PlanID:           session.Plan.ID,
		Role:             session.Role,
		IntentKind:       expectedKind,
		AmountMinorUnits: session.Plan.PriceMinorUnits,
		State:            models.AttemptStateNegotiating,
	}
	if err := e.repo.CreateAttempt(attempt); err != nil {
		e.releaseGuards(sessionID)
		return nil, nil, err
	}

	negotiator := NewIntentNegotiator(e.intents)
	intent, err := negotiator.CreateIntent(ctx, token, session.Plan, attemptSequence)
	if negotiator.FallbackTaken() {
		_ = metrics.Add(metrics.FieldFallbacks)
	}
	if err != nil {
		e.consumeFailedAttempt(session, attemptSequence)
		e.releaseGuards(sessionID)
		if uerr := e.repo.UpdateAttemptState(session.ID, attemptSequence, models.AttemptStateFailed, err.Error()); uerr != nil {
			log.Errorf("[Checkout] failed to record attempt failure for session %s: %v", session.ID, uerr)
		}
		return nil, nil, err
	}

	if err := e.repo.UpdateAttemptState(session.ID, attemptSequence, models.AttemptStateReady, ""); err != nil {
		log.Errorf("[Checkout] failed to mark attempt ready for session %s: %v", session.ID, err)
	}
	if err := e.repo.RecordIntent(session.ID, attemptSequence, string(intent.Kind), intent.ExternalID); err != nil {
		log.Errorf("[Checkout] failed to record intent for session %s: %v", session.ID, err)
	}

	req := gateway.CheckoutRequest{
		Reference: session.ID,
		Prefill:   prefill,
		Notes: map[string]string{
			"user_id": session.UserID,
			"plan_id": intent.PlanID,
		},
	}
	if intent.Kind == IntentSubscription {
		req.SubscriptionID = intent.ExternalID
	} else {
		req.OrderID = intent.ExternalID
		req.AmountMinorUnits = intent.AmountMinorUnits
	}

	opts, err := e.handoff.Open(ctx, session.ID, attemptSequence, req)
	if err != nil {
		if !errors.Is(err, gateway.ErrHandoffPending) {
			// A pending handoff keeps its attempt live; everything else
			// consumes the sequence so the retry gets a fresh one.
			e.consumeFailedAttempt(session, attemptSequence)
			e.releaseGuards(sessionID)
		}
		if uerr := e.repo.UpdateAttemptState(session.ID, attemptSequence, models.AttemptStateFailed, err.Error()); uerr != nil {
			log.Errorf("[Checkout] failed to record handoff failure for session %s: %v", session.ID, uerr)
		}
		return nil, nil, err
	}

	session.AttemptSequence = attemptSequence
	session.CurrentIntent = intent
	session.State = SessionPending
	session.LastFailure = ""
	// Kept for the receipt mail on success.
	session.ContactName = prefill.Name
	session.ContactEmail = prefill.Email
	if err := e.store.Save(session); err != nil {
		return nil, nil, err
	}
	return opts, session, nil
}

// CompleteOutcome delivers one terminal gateway outcome into the reconciler.
// Safe against duplicate delivery; stale attempt sequences are rejected.
func (e *Engine) CompleteOutcome(ctx context.Context, sessionID string, attemptSequence int, outcome gateway.Outcome) (*CheckoutSession, error) {
	session, err := e.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if attemptSequence != 0 && attemptSequence != session.AttemptSequence {
		return nil, ErrStaleOutcome
	}

	// A success without a payment identifier is structurally unusable and is
	// reconciled as a gateway error.
	if outcome.Status == gateway.OutcomeSuccess && !validExternalID(outcome.PaymentID) {
		outcome = gateway.Outcome{Status: gateway.OutcomeError, Detail: "success outcome without payment id"}
	}

	// Same for a success whose payment signature does not verify.
	if outcome.Status == gateway.OutcomeSuccess && session.CurrentIntent != nil &&
		!e.handoff.VerifyOutcome(session.CurrentIntent.ExternalID, outcome) {
		outcome = gateway.Outcome{Status: gateway.OutcomeError, Detail: "payment signature mismatch"}
	}

	if _, err := e.reconciler.OnOutcome(ctx, session, outcome); err != nil {
		return nil, err
	}

	// All three outcomes are terminal: clear both guards so the session is
	// immediately retryable.
	e.releaseGuards(sessionID)

	if err := e.store.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// consumeFailedAttempt persists the sequence of a failed attempt so the next
// Pay computes a fresh one. The attempts table keys on (session, sequence);
// reusing a consumed sequence would collide there and leave the session
// unretryable.
func (e *Engine) consumeFailedAttempt(session *CheckoutSession, attemptSequence int) {
	session.AttemptSequence = attemptSequence
	if err := e.store.Save(session); err != nil {
		log.Errorf("[Checkout] failed to persist attempt sequence for session %s: %v", session.ID, err)
	}
}

func (e *Engine) releaseGuards(sessionID string) {
	e.handoff.Release(sessionID)
	e.loading.Release(loadingKey(sessionID))
}

func loadingKey(sessionID string) string {
	return loadingKeyPrefix + sessionID
}
