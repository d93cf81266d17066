package models

import "time"

// Event types recorded per reconciled gateway outcome.
const (
	PaymentEventSucceeded = "payment_succeeded"
	PaymentEventCancelled = "payment_cancelled"
	PaymentEventFailed    = "payment_failed"
)

// PaymentEvent stores reconciled gateway outcomes. The unique index over
// (session_id, attempt_sequence) admits exactly one terminal event per
// attempt; duplicate and conflicting deliveries from the gateway callback
// both collide with the recorded row.
type PaymentEvent struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SessionID        string     `gorm:"type:varchar(36);not null;index:ux_payment_events_session_seq,unique,priority:1" json:"session_id"`
	AttemptSequence  int        `gorm:"not null;index:ux_payment_events_session_seq,unique,priority:2" json:"attempt_sequence"`
	EventType        string     `gorm:"type:varchar(32);not null" json:"event_type"`
	UserID           string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PlanID           string     `gorm:"type:varchar(64);not null" json:"plan_id"`
	IntentKind       string     `gorm:"type:varchar(16);not null;default:''" json:"intent_kind"`
	AmountMinorUnits int64      `gorm:"not null" json:"amount_minor_units"`
	PaymentID        string     `gorm:"type:varchar(191);not null;default:''" json:"payment_id"`
	PayloadJSON      string     `gorm:"type:longtext" json:"payload_json"`
	ArchivedAt       *time.Time `gorm:"type:timestamp;default:null" json:"archived_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
