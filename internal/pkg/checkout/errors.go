package checkout

import "errors"

// Business errors surfaced by the checkout engine. Only GenericFailureMessage
// ever crosses the API boundary for payment failures; the sentinels stay in
// logs and control flow.
var (
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrSessionClosed     = errors.New("checkout session already completed")
	ErrPlanNotFound      = errors.New("selected plan not found in catalog")
	ErrConsentRequired   = errors.New("terms have not been acknowledged")
	ErrAlreadySubscribed = errors.New("plan is already active for this user")
	ErrCheckoutInFlight  = errors.New("a checkout is already in progress for this session")

	// ErrNegotiationFailed covers backend rejections of intent creation that
	// are not the recognized fallback signal.
	ErrNegotiationFailed = errors.New("payment intent negotiation failed")

	// ErrStructuralResponse marks a success-shaped backend response that is
	// missing a usable external identifier. Always fatal to the attempt.
	ErrStructuralResponse = errors.New("backend response missing a usable identifier")

	// ErrStaleOutcome rejects outcome callbacks referencing an attempt other
	// than the session's current one.
	ErrStaleOutcome = errors.New("outcome references a stale attempt")
)

// GenericFailureMessage is the only failure text shown to the user. Internal
// detail never leaks to the UI.
const GenericFailureMessage = "Payment could not be completed, please retry."
