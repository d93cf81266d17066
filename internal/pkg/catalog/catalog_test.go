package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/loadway/Loadway/internal/pkg/upstream"
)

type fakePlanAPI struct {
	plans    []upstream.RawPlan
	plansErr error
	subs     []upstream.RawSubscription
	subsErr  error
}

func (f *fakePlanAPI) ListPlans(_ context.Context, _, _ string) ([]upstream.RawPlan, error) {
	return f.plans, f.plansErr
}

func (f *fakePlanAPI) GetSubscriptions(_ context.Context, _ string) ([]upstream.RawSubscription, error) {
	return f.subs, f.subsErr
}

func TestFetchPlansWrapsFailure(t *testing.T) {
	cause := errors.New("connection refused")
	cat := NewCatalog(&fakePlanAPI{plansErr: cause})

	_, err := cat.FetchPlans(context.Background(), "token", RoleDriver)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestFetchPlansAuthPassesThrough(t *testing.T) {
	cat := NewCatalog(&fakePlanAPI{plansErr: upstream.ErrAuthInvalid})

	_, err := cat.FetchPlans(context.Background(), "token", RoleDriver)
	if !errors.Is(err, upstream.ErrAuthInvalid) {
		t.Fatalf("expected auth error to pass through, got %v", err)
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		t.Fatalf("auth error must not be wrapped as fetch failure")
	}
}

func TestPlansWithFallbackDegradesToDefaults(t *testing.T) {
	cat := NewCatalog(&fakePlanAPI{plansErr: errors.New("upstream down")})

	plans, err := cat.PlansWithFallback(context.Background(), "token", RoleDriver)
	if err != nil {
		t.Fatalf("expected degraded catalog, got error %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 default plans, got %d", len(plans))
	}
	if plans[0].Tier != TierBase || plans[2].Tier != TierTrusted {
		t.Fatalf("unexpected default tiers: %+v", plans)
	}
}

func TestPlansWithFallbackAuthStillFails(t *testing.T) {
	cat := NewCatalog(&fakePlanAPI{plansErr: upstream.ErrAuthInvalid})

	if _, err := cat.PlansWithFallback(context.Background(), "token", RoleDriver); !errors.Is(err, upstream.ErrAuthInvalid) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestDefaultPlansUnknownRole(t *testing.T) {
	plans := DefaultPlans("dispatcher")
	if len(plans) != 1 {
		t.Fatalf("expected only the base plan for unknown roles, got %d plans", len(plans))
	}
	if plans[0].Tier != TierBase {
		t.Fatalf("expected base tier, got %q", plans[0].Tier)
	}
}
