package models

import "time"

// Intent kinds issued by the platform backend for a checkout attempt.
const (
	IntentKindSubscription = "subscription"
	IntentKindOrder        = "order"
)

// Attempt states mirror the negotiator/reconciler lifecycle.
const (
	AttemptStateNegotiating = "negotiating"
	AttemptStateReady       = "ready"
	AttemptStateSucceeded   = "succeeded"
	AttemptStateCancelled   = "cancelled"
	AttemptStateFailed      = "failed"
)

// CheckoutAttempt is the durable audit record for one payment attempt within
// a checkout session. A new row is written per attempt sequence; a superseded
// or failed attempt is never mutated back into flight.
type CheckoutAttempt struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SessionID        string    `gorm:"type:varchar(36);not null;index:ux_checkout_attempts_session_seq,unique,priority:1" json:"session_id"`
	AttemptSequence  int       `gorm:"not null;index:ux_checkout_attempts_session_seq,unique,priority:2" json:"attempt_sequence"`
	UserID           string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PlanID           string    `gorm:"type:varchar(64);not null" json:"plan_id"`
	Role             string    `gorm:"type:varchar(32);not null;default:''" json:"role"`
	IntentKind       string    `gorm:"type:varchar(16);not null" json:"intent_kind"`
	IntentExternalID string    `gorm:"type:varchar(191);not null;default:''" json:"intent_external_id"`
	AmountMinorUnits int64     `gorm:"not null" json:"amount_minor_units"`
	State            string    `gorm:"type:varchar(16);not null;index" json:"state"`
	FailureReason    string    `gorm:"type:varchar(255);not null;default:''" json:"failure_reason"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
