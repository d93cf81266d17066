package checkout

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/gateway"
	"github.com/loadway/Loadway/internal/pkg/jobqueue"
)

// memoryRepository keeps the unique-key semantics of the GORM repository in
// memory: one attempt row per (session, sequence) and one event row per
// (session, sequence).
type memoryRepository struct {
	attempts map[string]*models.CheckoutAttempt
	events   map[string]*models.PaymentEvent
	nextID   uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		attempts: make(map[string]*models.CheckoutAttempt),
		events:   make(map[string]*models.PaymentEvent),
	}
}

func attemptKey(sessionID string, seq int) string {
	return fmt.Sprintf("%s/%d", sessionID, seq)
}

func (m *memoryRepository) CreateAttempt(attempt *models.CheckoutAttempt) error {
	key := attemptKey(attempt.SessionID, attempt.AttemptSequence)
	if _, ok := m.attempts[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.attempts[key] = attempt
	return nil
}

func (m *memoryRepository) UpdateAttemptState(sessionID string, attemptSequence int, state, failureReason string) error {
	if attempt, ok := m.attempts[attemptKey(sessionID, attemptSequence)]; ok {
		attempt.State = state
		attempt.FailureReason = failureReason
	}
	return nil
}

func (m *memoryRepository) RecordIntent(sessionID string, attemptSequence int, intentKind, externalID string) error {
	if attempt, ok := m.attempts[attemptKey(sessionID, attemptSequence)]; ok {
		attempt.IntentKind = intentKind
		attempt.IntentExternalID = externalID
	}
	return nil
}

func (m *memoryRepository) CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	key := attemptKey(event.SessionID, event.AttemptSequence)
	if existing, ok := m.events[key]; ok {
		return false, existing, nil
	}
	m.nextID++
	event.ID = m.nextID
	m.events[key] = event
	return true, event, nil
}

func (m *memoryRepository) FindPaymentEvent(sessionID string, attemptSequence int) (*models.PaymentEvent, error) {
	return m.events[attemptKey(sessionID, attemptSequence)], nil
}

type recordingSink struct {
	events []string
	props  []map[string]interface{}
}

func (r *recordingSink) LogEvent(name string, props map[string]interface{}) {
	r.events = append(r.events, name)
	r.props = append(r.props, props)
}

type recordingEnqueuer struct {
	jobs []jobqueue.JobType
}

func (r *recordingEnqueuer) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	r.jobs = append(r.jobs, jobType)
	return &jobqueue.Job{}, nil
}

func pendingSession() *CheckoutSession {
	session := NewCheckoutSession("user_1", catalog.RoleDriver, catalog.Plan{
		ID: "plan_trusted_499", Tier: catalog.TierTrusted, PriceMinorUnits: 49900, IsRecurring: true, DisplayName: "Trusted",
	})
	session.ConsentGiven = true
	session.AttemptSequence = 1
	session.State = SessionPending
	session.CurrentIntent = &PaymentIntent{
		Kind:             IntentOrder,
		ExternalID:       "order_777",
		AmountMinorUnits: 49900,
		PlanID:           "plan_trusted_499",
		AttemptSequence:  1,
	}
	return session
}

func TestOnOutcomeSuccess(t *testing.T) {
	repo := newMemoryRepository()
	sink := &recordingSink{}
	jobs := &recordingEnqueuer{}
	r := NewReconciler(repo, sink, jobs)

	session := pendingSession()
	outcome := gateway.Outcome{Status: gateway.OutcomeSuccess, PaymentID: "pay_123"}

	first, err := r.OnOutcome(context.Background(), session, outcome)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first delivery to apply")
	}
	if session.State != SessionSucceeded {
		t.Fatalf("expected succeeded state, got %s", session.State)
	}
	if len(sink.events) != 1 || sink.events[0] != "checkout_payment_succeeded" {
		t.Fatalf("expected one success analytics event, got %v", sink.events)
	}
	if sink.props[0]["amount_minor_units"] != int64(49900) {
		t.Fatalf("analytics event missing amount: %v", sink.props[0])
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0] != jobqueue.JobTypeSubscriptionRefresh {
		t.Fatalf("expected a subscription refresh job, got %v", jobs.jobs)
	}
}

func TestOnOutcomeDuplicateSuccessIsNoOp(t *testing.T) {
	repo := newMemoryRepository()
	sink := &recordingSink{}
	r := NewReconciler(repo, sink, &recordingEnqueuer{})

	session := pendingSession()
	outcome := gateway.Outcome{Status: gateway.OutcomeSuccess, PaymentID: "pay_123"}

	if _, err := r.OnOutcome(context.Background(), session, outcome); err != nil {
		t.Fatalf("unexpected error on first delivery: %v", err)
	}
	// the session validly stays on the same attempt until the engine closes it
	first, err := r.OnOutcome(context.Background(), session, outcome)
	if err != nil {
		t.Fatalf("unexpected error on duplicate delivery: %v", err)
	}
	if first {
		t.Fatalf("duplicate delivery must not apply")
	}
	if len(sink.events) != 1 {
		t.Fatalf("duplicate delivery must not emit analytics, got %d events", len(sink.events))
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected exactly one stored event, got %d", len(repo.events))
	}
}

func TestOnOutcomeCancelled(t *testing.T) {
	repo := newMemoryRepository()
	sink := &recordingSink{}
	r := NewReconciler(repo, sink, &recordingEnqueuer{})

	session := pendingSession()
	session.LastFailure = "stale message from a previous attempt"

	first, err := r.OnOutcome(context.Background(), session, gateway.Outcome{Status: gateway.OutcomeCancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first delivery to apply")
	}
	if session.State != SessionSelecting {
		t.Fatalf("expected return to selection, got %s", session.State)
	}
	if session.LastFailure != "" {
		t.Fatalf("cancellation must not leave a failure message, got %q", session.LastFailure)
	}
	if !session.ConsentGiven {
		t.Fatalf("cancellation must not reset consent")
	}
	if len(sink.events) != 0 {
		t.Fatalf("cancellation must not emit analytics, got %v", sink.events)
	}
}

func TestOnOutcomeError(t *testing.T) {
	repo := newMemoryRepository()
	r := NewReconciler(repo, &recordingSink{}, &recordingEnqueuer{})

	session := pendingSession()
	first, err := r.OnOutcome(context.Background(), session, gateway.Outcome{
		Status: gateway.OutcomeError,
		Detail: "card declined by issuing bank (code 05)",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first delivery to apply")
	}
	if session.State != SessionSelecting {
		t.Fatalf("expected return to selection, got %s", session.State)
	}
	// the surface gets the generic retry message, never the raw detail
	if session.LastFailure != GenericFailureMessage {
		t.Fatalf("expected generic failure message, got %q", session.LastFailure)
	}

	event := repo.events[attemptKey(session.ID, 1)]
	if event == nil || event.EventType != models.PaymentEventFailed {
		t.Fatalf("expected a failed payment event to be recorded, got %+v", event)
	}
	if event.PaymentID != "" {
		t.Fatalf("failed outcome must not carry a payment id, got %q", event.PaymentID)
	}
}

func TestOnOutcomeStaleDeliveries(t *testing.T) {
	r := NewReconciler(newMemoryRepository(), &recordingSink{}, &recordingEnqueuer{})

	noIntent := pendingSession()
	noIntent.CurrentIntent = nil
	if _, err := r.OnOutcome(context.Background(), noIntent, gateway.Outcome{Status: gateway.OutcomeSuccess, PaymentID: "pay_123"}); err != ErrStaleOutcome {
		t.Fatalf("expected stale outcome for missing intent, got %v", err)
	}

	mismatch := pendingSession()
	mismatch.AttemptSequence = 2
	if _, err := r.OnOutcome(context.Background(), mismatch, gateway.Outcome{Status: gateway.OutcomeSuccess, PaymentID: "pay_123"}); err != ErrStaleOutcome {
		t.Fatalf("expected stale outcome for sequence mismatch, got %v", err)
	}
}

func TestOnOutcomeLateErrorAfterSuccessIsNoOp(t *testing.T) {
	// The gateway contract promises exactly one outcome per handoff. When it
	// breaks that promise, the first recorded outcome wins: a late error must
	// not reopen a succeeded attempt.
	repo := newMemoryRepository()
	sink := &recordingSink{}
	r := NewReconciler(repo, sink, &recordingEnqueuer{})

	session := pendingSession()
	if _, err := r.OnOutcome(context.Background(), session, gateway.Outcome{Status: gateway.OutcomeSuccess, PaymentID: "pay_123"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := r.OnOutcome(context.Background(), session, gateway.Outcome{Status: gateway.OutcomeError, Detail: "late error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Fatalf("conflicting delivery must not apply")
	}
	if session.State != SessionSucceeded {
		t.Fatalf("late error must not reopen the session, got %s", session.State)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected exactly one event per attempt, got %d", len(repo.events))
	}
	if repo.events[attemptKey(session.ID, 1)].EventType != models.PaymentEventSucceeded {
		t.Fatalf("the recorded outcome must stay the success")
	}
	if len(sink.events) != 1 {
		t.Fatalf("only the success emits analytics, got %v", sink.events)
	}
}

func TestOnOutcomeDuplicateCancelledAcknowledged(t *testing.T) {
	repo := newMemoryRepository()
	sink := &recordingSink{}
	r := NewReconciler(repo, sink, &recordingEnqueuer{})

	session := pendingSession()
	if _, err := r.OnOutcome(context.Background(), session, gateway.Outcome{Status: gateway.OutcomeCancelled}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentIntent != nil {
		t.Fatalf("cancellation must consume the intent")
	}

	// the device resends the same result after a flaky connection
	first, err := r.OnOutcome(context.Background(), session, gateway.Outcome{Status: gateway.OutcomeCancelled})
	if err != nil {
		t.Fatalf("replay of a settled outcome must be acknowledged, got %v", err)
	}
	if first {
		t.Fatalf("replay must not apply")
	}
	if session.State != SessionSelecting {
		t.Fatalf("replay must not move the session, got %s", session.State)
	}
	if len(repo.events) != 1 || len(sink.events) != 0 {
		t.Fatalf("replay must not record or emit, events=%d analytics=%d", len(repo.events), len(sink.events))
	}
}
