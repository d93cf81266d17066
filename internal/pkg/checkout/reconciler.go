package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/app/models"
	"github.com/loadway/Loadway/internal/pkg/analytics"
	"github.com/loadway/Loadway/internal/pkg/gateway"
	"github.com/loadway/Loadway/internal/pkg/jobqueue"
	"github.com/loadway/Loadway/internal/pkg/mail"
	metrics "github.com/loadway/Loadway/internal/pkg/metrics/counter"
)

// JobEnqueuer is the slice of the job queue the reconciler uses for the
// post-success subscription re-fetch.
type JobEnqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Reconciler interprets gateway outcomes, records them durably and drives
// the session transition. Exactly one of the three outcome handlers applies
// per attempt; the per-attempt event row makes any further delivery for that
// attempt a no-op, whether it repeats the recorded outcome or contradicts it.
type Reconciler struct {
	repo Repository
	sink analytics.Sink
	jobs JobEnqueuer
}

func NewReconciler(repo Repository, sink analytics.Sink, jobs JobEnqueuer) *Reconciler {
	return &Reconciler{repo: repo, sink: sink, jobs: jobs}
}

// OnOutcome applies one terminal outcome to the session. The returned bool
// reports whether this delivery was the first one; duplicates change nothing
// and emit nothing.
func (r *Reconciler) OnOutcome(ctx context.Context, session *CheckoutSession, outcome gateway.Outcome) (bool, error) {
	_ = ctx
	intent := session.CurrentIntent
	if intent == nil || intent.AttemptSequence != session.AttemptSequence {
		// Cancel and error consume the intent. A replay of that settled
		// outcome is acknowledged; anything else is stale.
		if existing, err := r.repo.FindPaymentEvent(session.ID, session.AttemptSequence); err == nil && existing != nil {
			log.Infof("[Checkout] duplicate delivery for settled session %s attempt %d ignored",
				session.ID, session.AttemptSequence)
			return false, nil
		}
		return false, ErrStaleOutcome
	}

	eventType, attemptState := eventTypeFor(outcome.Status)
	payloadJSON := ""
	if data, err := json.Marshal(outcome); err == nil {
		payloadJSON = string(data)
	}

	event := &models.PaymentEvent{
		SessionID:        session.ID,
		AttemptSequence:  intent.AttemptSequence,
		EventType:        eventType,
		UserID:           session.UserID,
		PlanID:           intent.PlanID,
		IntentKind:       string(intent.Kind),
		AmountMinorUnits: intent.AmountMinorUnits,
		PaymentID:        outcome.PaymentID,
		PayloadJSON:      payloadJSON,
	}

	created, _, err := r.repo.CreatePaymentEventIfNotExists(event)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	if !created {
		log.Infof("[Checkout] duplicate %s delivery for session %s attempt %d ignored",
			eventType, session.ID, intent.AttemptSequence)
		return false, nil
	}

	if err := r.repo.UpdateAttemptState(session.ID, intent.AttemptSequence, attemptState, failureReasonFor(outcome)); err != nil {
		log.Errorf("[Checkout] failed to update attempt state for session %s: %v", session.ID, err)
	}

	switch outcome.Status {
	case gateway.OutcomeSuccess:
		r.applySuccess(session, intent, outcome)
	case gateway.OutcomeCancelled:
		// Cancellation is not an error: back to plan selection, no analytics
		// event, no message, consent untouched.
		_ = metrics.Add(metrics.FieldCancelled)
		session.State = SessionSelecting
		session.CurrentIntent = nil
		session.LastFailure = ""
	default:
		// Ambiguous gateway errors may mask a silent success upstream; the
		// posture is a retry affordance, not a local guess.
		_ = metrics.Add(metrics.FieldFailed)
		session.State = SessionSelecting
		session.CurrentIntent = nil
		session.LastFailure = GenericFailureMessage
	}

	return true, nil
}

func (r *Reconciler) applySuccess(session *CheckoutSession, intent *PaymentIntent, outcome gateway.Outcome) {
	_ = metrics.Add(metrics.FieldSucceeded)

	r.sink.LogEvent("checkout_payment_succeeded", map[string]interface{}{
		"user_id":            session.UserID,
		"plan_id":            intent.PlanID,
		"amount_minor_units": intent.AmountMinorUnits,
		"payment_id":         outcome.PaymentID,
		"intent_kind":        string(intent.Kind),
	})

	if session.ContactEmail != "" {
		go func(to, name, plan string, amount int64, paymentID string) {
			if err := mail.SendPaymentReceipt(to, name, plan, amount, paymentID); err != nil {
				log.Warnf("[Checkout] failed to send receipt to %s: %v", to, err)
			}
		}(session.ContactEmail, session.ContactName, session.Plan.DisplayName, intent.AmountMinorUnits, outcome.PaymentID)
	}

	// Server state is the source of truth for subscription status; schedule
	// a background re-fetch so the current-plan badge catches up without a
	// full session reload.
	if r.jobs != nil {
		if _, err := r.jobs.EnqueueJob(jobqueue.JobTypeSubscriptionRefresh, map[string]interface{}{
			"user_id": session.UserID,
		}); err != nil {
			log.Warnf("[Checkout] failed to enqueue subscription refresh for user %s: %v", session.UserID, err)
		}
	}

	session.State = SessionSucceeded
	session.LastFailure = ""
}

func eventTypeFor(status gateway.OutcomeStatus) (eventType, attemptState string) {
	switch status {
	case gateway.OutcomeSuccess:
		return models.PaymentEventSucceeded, models.AttemptStateSucceeded
	case gateway.OutcomeCancelled:
		return models.PaymentEventCancelled, models.AttemptStateCancelled
	default:
		return models.PaymentEventFailed, models.AttemptStateFailed
	}
}

func failureReasonFor(outcome gateway.Outcome) string {
	if outcome.Status == gateway.OutcomeError {
		return outcome.Detail
	}
	return ""
}
