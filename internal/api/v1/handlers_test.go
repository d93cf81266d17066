package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/checkout"
	"github.com/loadway/Loadway/internal/pkg/gateway"
	"github.com/loadway/Loadway/internal/pkg/upstream"
)

func TestGetPing(t *testing.T) {
	app := fiber.New()
	s := NewAPIServer(nil)
	app.Get("/ping", s.GetPing)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var pong Pong
	assert.NoError(t, json.Unmarshal(body, &pong))
	assert.Equal(t, "pong", pong.Ping)
}

func TestMapEngineError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{err: checkout.ErrSessionNotFound, wantStatus: http.StatusNotFound},
		{err: checkout.ErrPlanNotFound, wantStatus: http.StatusNotFound},
		{err: checkout.ErrConsentRequired, wantStatus: http.StatusBadRequest},
		{err: checkout.ErrAlreadySubscribed, wantStatus: http.StatusConflict},
		{err: checkout.ErrCheckoutInFlight, wantStatus: http.StatusConflict},
		{err: checkout.ErrSessionClosed, wantStatus: http.StatusConflict},
		{err: checkout.ErrStaleOutcome, wantStatus: http.StatusConflict},
		{err: gateway.ErrHandoffPending, wantStatus: http.StatusConflict},
		{err: upstream.ErrAuthInvalid, wantStatus: http.StatusUnauthorized},
		{err: checkout.ErrNegotiationFailed, wantStatus: http.StatusBadGateway},
		{err: checkout.ErrStructuralResponse, wantStatus: http.StatusBadGateway},
		{err: errors.New("anything else"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		app := fiber.New()
		app.Get("/boom", func(c *fiber.Ctx) error {
			return mapEngineError(c, tt.err)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.NoError(t, err)
		assert.Equalf(t, tt.wantStatus, resp.StatusCode, "error %v", tt.err)
	}
}

func TestMapEngineErrorHidesUpstreamDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return mapEngineError(c, errors.New("gateway checkout create failed: status=500 body=internal"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]string
	assert.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, checkout.GenericFailureMessage, payload["message"])
}

func TestSubscriptionResponse(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, fiber.Map{"active": false}, subscriptionResponse(nil, now))

	future := now.Add(24 * time.Hour).Unix()
	resp := subscriptionResponse(&catalog.ActiveSubscription{AmountMinorUnits: 49900, EndAt: &future}, now)
	assert.Equal(t, true, resp["active"])
	assert.Equal(t, int64(49900), resp["amount_minor_units"])

	past := now.Add(-24 * time.Hour).Unix()
	expired := subscriptionResponse(&catalog.ActiveSubscription{AmountMinorUnits: 49900, EndAt: &past}, now)
	assert.Equal(t, false, expired["active"])
}

func TestOutcomeRequestValidation(t *testing.T) {
	assert.Error(t, validate.Struct(OutcomeRequest{}))
	assert.Error(t, validate.Struct(OutcomeRequest{Status: "exploded"}))
	assert.NoError(t, validate.Struct(OutcomeRequest{Status: "success", PaymentID: "pay_123"}))
	assert.NoError(t, validate.Struct(OutcomeRequest{Status: "cancelled"}))
	assert.NoError(t, validate.Struct(OutcomeRequest{Status: "error", Detail: "card declined"}))
}

func TestCreateSessionRequestValidation(t *testing.T) {
	assert.Error(t, validate.Struct(CreateSessionRequest{}))
	assert.Error(t, validate.Struct(CreateSessionRequest{PlanID: "plan_base_99", Role: "dispatcher"}))
	assert.NoError(t, validate.Struct(CreateSessionRequest{PlanID: "plan_base_99"}))
	assert.NoError(t, validate.Struct(CreateSessionRequest{PlanID: "plan_base_99", Role: "driver"}))
}
