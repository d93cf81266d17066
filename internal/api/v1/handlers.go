package apiv1

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/loadway/Loadway/internal/pkg/catalog"
	"github.com/loadway/Loadway/internal/pkg/checkout"
	"github.com/loadway/Loadway/internal/pkg/gateway"
	metrics "github.com/loadway/Loadway/internal/pkg/metrics/counter"
	"github.com/loadway/Loadway/internal/pkg/statistics"
	"github.com/loadway/Loadway/internal/pkg/upstream"
	"github.com/loadway/Loadway/internal/pkg/usercontext"
)

// APIServer exposes the checkout engine over JSON.
type APIServer struct {
	engine *checkout.Engine
}

func NewAPIServer(engine *checkout.Engine) *APIServer {
	return &APIServer{engine: engine}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetPlans returns the tiered plan catalog for the caller's role. An explicit
// ?role= query overrides the role stored on the profile.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	role := c.Query("role", uc.Role)
	if !catalog.KnownRole(role) {
		return errorJSON(c, fiber.StatusBadRequest, "unknown_role", "role must be driver or transporter")
	}

	plans, current, err := s.engine.Plans(c.Context(), uc.Token, uc.UserID, role)
	if err != nil {
		return mapEngineError(c, err)
	}

	resp := fiber.Map{"plans": plans}
	if current != nil {
		resp["current_plan"] = current
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetSubscription returns the caller's active subscription, if any.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	sub, err := s.engine.Subscription(c.Context(), uc.Token, uc.UserID)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(subscriptionResponse(sub, time.Now()))
}

func subscriptionResponse(sub *catalog.ActiveSubscription, now time.Time) fiber.Map {
	if sub == nil {
		return fiber.Map{"active": false}
	}
	return fiber.Map{
		"active":             sub.IsActive(now),
		"amount_minor_units": sub.AmountMinorUnits,
		"end_at":             sub.EndAt,
	}
}

// PostSession opens a checkout session for one plan.
func (s *APIServer) PostSession(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "request body is not valid JSON")
	}
	if err := validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", err.Error())
	}

	role := req.Role
	if role == "" {
		role = uc.Role
	}

	session, err := s.engine.StartSession(c.Context(), uc.Token, uc.UserID, role, req.PlanID)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// GetSession returns the current state of a checkout session.
func (s *APIServer) GetSession(c *fiber.Ctx) error {
	session, err := s.loadOwnSession(c)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(session)
}

// PostConsent toggles the terms consent on a session and reports the new
// value. Consent is per session; a fresh session always starts unchecked.
func (s *APIServer) PostConsent(c *fiber.Ctx) error {
	if _, err := s.loadOwnSession(c); err != nil {
		return mapEngineError(c, err)
	}

	session, err := s.engine.ToggleConsent(c.Params("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"consent_given": session.ConsentGiven,
		"session":       session,
	})
}

// PostPay negotiates a payment intent and hands off to the gateway. The
// response carries the options the device SDK opens the payment sheet with.
func (s *APIServer) PostPay(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	if _, err := s.loadOwnSession(c); err != nil {
		return mapEngineError(c, err)
	}

	var req PayRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		}
		if err := validate.Struct(req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid_body", err.Error())
		}
	}

	prefill := gateway.PrefillIdentity{Name: req.Name, Email: req.Email, Contact: req.Contact}
	if prefill.Name == "" {
		prefill.Name = uc.Name
	}
	if prefill.Email == "" {
		prefill.Email = uc.Email
	}
	if prefill.Contact == "" {
		prefill.Contact = uc.Phone
	}

	options, session, err := s.engine.Pay(c.Context(), uc.Token, c.Params("id"), prefill)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"options": options,
		"session": session,
	})
}

// PostOutcome records a terminal gateway result for the session's current
// attempt. Replays of an already recorded outcome are acknowledged without
// side effects.
func (s *APIServer) PostOutcome(c *fiber.Ctx) error {
	current, err := s.loadOwnSession(c)
	if err != nil {
		return mapEngineError(c, err)
	}

	var req OutcomeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", "request body is not valid JSON")
	}
	if err := validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_body", err.Error())
	}

	seq := req.AttemptSequence
	if seq == 0 {
		seq = current.AttemptSequence
	}

	outcome := gateway.Outcome{
		Status:    gateway.OutcomeStatus(req.Status),
		PaymentID: req.PaymentID,
		Detail:    req.Detail,
		Signature: req.Signature,
	}
	session, err := s.engine.CompleteOutcome(c.Context(), c.Params("id"), seq, outcome)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(session)
}

// GetStats reports live checkout counters plus the cached database
// aggregates. Reachable only through the basic-auth admin group.
func (s *APIServer) GetStats(c *fiber.Ctx) error {
	counters, err := metrics.Snapshot()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "stats_unavailable", "counter backend is not reachable")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"counters": counters,
		"totals":   statistics.GetStatistics(),
	})
}

// loadOwnSession fetches the session from the path and rejects callers that
// do not own it.
func (s *APIServer) loadOwnSession(c *fiber.Ctx) (*checkout.CheckoutSession, error) {
	session, err := s.engine.Session(c.Params("id"))
	if err != nil {
		return nil, err
	}
	if session.UserID != usercontext.GetUserID(c) {
		return nil, checkout.ErrSessionNotFound
	}
	return session, nil
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// mapEngineError translates engine sentinels into HTTP statuses. Anything
// unrecognized is a gateway-side failure surfaced with the generic retry
// message so upstream details never leak to the device.
func mapEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, checkout.ErrPlanNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, checkout.ErrConsentRequired):
		return errorJSON(c, fiber.StatusBadRequest, "consent_required", err.Error())
	case errors.Is(err, checkout.ErrAlreadySubscribed),
		errors.Is(err, checkout.ErrCheckoutInFlight),
		errors.Is(err, checkout.ErrSessionClosed),
		errors.Is(err, checkout.ErrStaleOutcome),
		errors.Is(err, gateway.ErrHandoffPending):
		return errorJSON(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, upstream.ErrAuthInvalid):
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "session token is invalid or expired")
	default:
		return errorJSON(c, fiber.StatusBadGateway, "payment_failed", checkout.GenericFailureMessage)
	}
}
