package apiv1

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// CreateSessionRequest selects a plan for checkout.
type CreateSessionRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=driver transporter"`
}

// PayRequest carries the identity the gateway sheet is prefilled with.
type PayRequest struct {
	Name    string `json:"name" validate:"omitempty,max=120"`
	Email   string `json:"email" validate:"omitempty,email"`
	Contact string `json:"contact" validate:"omitempty,max=20"`
}

// OutcomeRequest delivers the terminal gateway result for an attempt.
type OutcomeRequest struct {
	Status          string `json:"status" validate:"required,oneof=success cancelled error"`
	PaymentID       string `json:"payment_id" validate:"omitempty,max=191"`
	Detail          string `json:"detail" validate:"omitempty,max=500"`
	Signature       string `json:"signature" validate:"omitempty,max=128"`
	AttemptSequence int    `json:"attempt_sequence" validate:"omitempty,min=1"`
}
