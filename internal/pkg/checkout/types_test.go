package checkout

import (
	"testing"

	"github.com/loadway/Loadway/internal/pkg/catalog"
)

func TestNewCheckoutSessionDefaults(t *testing.T) {
	plan := catalog.Plan{ID: "plan_base_99", PriceMinorUnits: 9900}
	session := NewCheckoutSession("user_1", catalog.RoleDriver, plan)

	if session.ID == "" {
		t.Fatalf("expected a generated session id")
	}
	// consent never carries over from anywhere: every session starts unchecked
	if session.ConsentGiven {
		t.Fatalf("fresh session must start without consent")
	}
	if session.State != SessionSelecting {
		t.Fatalf("expected selecting state, got %s", session.State)
	}
	if session.AttemptSequence != 0 {
		t.Fatalf("expected attempt sequence 0, got %d", session.AttemptSequence)
	}
	if session.CurrentIntent != nil {
		t.Fatalf("fresh session must not carry an intent")
	}
}

func TestToggleConsent(t *testing.T) {
	session := NewCheckoutSession("user_1", catalog.RoleDriver, catalog.Plan{ID: "plan_base_99"})

	if got := session.ToggleConsent(); !got {
		t.Fatalf("first toggle should grant consent")
	}
	if !session.ConsentGranted() {
		t.Fatalf("expected consent granted after toggle")
	}
	if got := session.ToggleConsent(); got {
		t.Fatalf("second toggle should revoke consent")
	}
	if session.ConsentGranted() {
		t.Fatalf("expected consent revoked after second toggle")
	}
}
