package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/loadway/Loadway/internal/pkg/constants"
	"github.com/loadway/Loadway/internal/pkg/env"
)

// RegisterHandlers wires the v1 routes. Everything under /billing and
// /checkout requires a platform bearer token; /stats sits behind basic auth
// for operators.
func RegisterHandlers(v1 fiber.Router, s *APIServer, auth fiber.Handler) {
	v1.Get(constants.PingRoute, s.GetPing)

	billing := v1.Group(constants.BillingRoute, auth)
	billing.Get("/plans", s.GetPlans)
	billing.Get("/subscription", s.GetSubscription)

	sessions := v1.Group(constants.CheckoutSessionsRoute, auth)
	sessions.Post("/", s.PostSession)
	sessions.Get("/:id", s.GetSession)
	sessions.Post("/:id/consent", s.PostConsent)
	sessions.Post("/:id/pay", s.PostPay)
	sessions.Post("/:id/outcome", s.PostOutcome)

	admin := v1.Group(constants.AdminRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "test"),
		},
	}))
	admin.Get("/stats", s.GetStats)
}
