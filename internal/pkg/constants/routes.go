package constants

// Static route constants
const (
	APIRoute     = "/api"
	PingRoute    = "/ping"
	BillingRoute = "/billing"
	// Session routes hang off this group; the :id segment is the session UUID
	CheckoutSessionsRoute = "/checkout/sessions"
	AdminRoute            = "/admin"
)
