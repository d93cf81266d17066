package checkout

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loadway/Loadway/app/models"
)

// Repository provides DB operations used by the checkout engine.
type Repository interface {
	CreateAttempt(attempt *models.CheckoutAttempt) error
	UpdateAttemptState(sessionID string, attemptSequence int, state, failureReason string) error
	RecordIntent(sessionID string, attemptSequence int, intentKind, externalID string) error
	CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	FindPaymentEvent(sessionID string, attemptSequence int) (*models.PaymentEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a checkout repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAttempt(attempt *models.CheckoutAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *gormRepository) UpdateAttemptState(sessionID string, attemptSequence int, state, failureReason string) error {
	updates := map[string]interface{}{
		"state":          state,
		"failure_reason": failureReason,
	}
	return r.db.Model(&models.CheckoutAttempt{}).
		Where("session_id = ? AND attempt_sequence = ?", sessionID, attemptSequence).
		Updates(updates).Error
}

func (r *gormRepository) RecordIntent(sessionID string, attemptSequence int, intentKind, externalID string) error {
	updates := map[string]interface{}{
		"intent_kind":        intentKind,
		"intent_external_id": externalID,
	}
	return r.db.Model(&models.CheckoutAttempt{}).
		Where("session_id = ? AND attempt_sequence = ?", sessionID, attemptSequence).
		Updates(updates).Error
}

// CreatePaymentEventIfNotExists persists a reconciled outcome idempotently.
// The unique index over (session_id, attempt_sequence) admits exactly one
// terminal event per attempt, so duplicate and conflicting gateway callbacks
// are both a no-op.
func (r *gormRepository) CreatePaymentEventIfNotExists(event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "attempt_sequence"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.Where("session_id = ? AND attempt_sequence = ?",
		event.SessionID, event.AttemptSequence).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// FindPaymentEvent returns the recorded event for one attempt, nil when the
// attempt has not settled yet.
func (r *gormRepository) FindPaymentEvent(sessionID string, attemptSequence int) (*models.PaymentEvent, error) {
	var stored models.PaymentEvent
	err := r.db.Where("session_id = ? AND attempt_sequence = ?", sessionID, attemptSequence).
		First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
