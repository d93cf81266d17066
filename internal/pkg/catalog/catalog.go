package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/cache"
	"github.com/loadway/Loadway/internal/pkg/upstream"
)

const (
	planCacheKeyPrefix = "billing:plans:"
	subCacheKeyPrefix  = "billing:subscription:"

	planCacheTTL = 7 * 24 * time.Hour
	subCacheTTL  = 10 * time.Minute
)

// FetchError wraps a catalog fetch failure. Callers degrade to the
// last-known-good catalog instead of blocking checkout on it.
type FetchError struct {
	cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("plan catalog unreachable: %v", e.cause)
}

func (e *FetchError) Unwrap() error {
	return e.cause
}

// PlanAPI is the slice of the platform client the catalog consumes.
type PlanAPI interface {
	ListPlans(ctx context.Context, token, role string) ([]upstream.RawPlan, error)
	GetSubscriptions(ctx context.Context, token string) ([]upstream.RawSubscription, error)
}

// Catalog fetches and normalizes plans and classifies the caller's current
// subscription. Fetched catalogs are cached per role as last-known-good.
type Catalog struct {
	api PlanAPI
}

func NewCatalog(api PlanAPI) *Catalog {
	return &Catalog{api: api}
}

func NewCatalogFromEnv() *Catalog {
	return NewCatalog(upstream.NewClientFromEnv())
}

// FetchPlans returns the normalized tiered catalog for a role. On fetch
// failure it returns a typed *FetchError; auth invalidation passes through.
func (c *Catalog) FetchPlans(ctx context.Context, token, role string) ([]Plan, error) {
	raw, err := c.api.ListPlans(ctx, token, role)
	if err != nil {
		if errors.Is(err, upstream.ErrAuthInvalid) {
			return nil, err
		}
		return nil, &FetchError{cause: err}
	}

	plans := Normalize(raw, role)
	c.storePlans(role, plans)
	return plans, nil
}

// PlansWithFallback absorbs fetch failures: last-known-good cached catalog
// first, static defaults last. Auth invalidation still passes through.
func (c *Catalog) PlansWithFallback(ctx context.Context, token, role string) ([]Plan, error) {
	plans, err := c.FetchPlans(ctx, token, role)
	if err == nil {
		return plans, nil
	}
	if errors.Is(err, upstream.ErrAuthInvalid) {
		return nil, err
	}

	log.Warnf("[Catalog] plan fetch failed, degrading to cached catalog: %v", err)
	if cached, ok := c.cachedPlans(role); ok {
		return cached, nil
	}
	return DefaultPlans(role), nil
}

func (c *Catalog) storePlans(role string, plans []Plan) {
	data, err := json.Marshal(plans)
	if err != nil {
		return
	}
	if err := cache.Set(planCacheKeyPrefix+role, data, planCacheTTL); err != nil {
		log.Warnf("[Catalog] failed to cache plans for role %s: %v", role, err)
	}
}

func (c *Catalog) cachedPlans(role string) ([]Plan, bool) {
	data, err := cache.Get(planCacheKeyPrefix + role)
	if err != nil {
		if !cache.IsNil(err) {
			log.Warnf("[Catalog] plan cache read failed for role %s: %v", role, err)
		}
		return nil, false
	}
	var plans []Plan
	if err := json.Unmarshal([]byte(data), &plans); err != nil {
		return nil, false
	}
	return plans, true
}

// ActiveSubscription returns the caller's current subscription, served from
// cache when fresh. A nil result with nil error is the normal
// "no subscription" state.
func (c *Catalog) ActiveSubscription(ctx context.Context, token, userID string) (*ActiveSubscription, error) {
	if data, err := cache.Get(subCacheKeyPrefix + userID); err == nil {
		var sub ActiveSubscription
		if json.Unmarshal([]byte(data), &sub) == nil && sub.IsActive(time.Now()) {
			return &sub, nil
		}
	}
	return c.RefreshSubscription(ctx, token, userID)
}

// RefreshSubscription re-fetches subscription status from the backend and
// refreshes the cache. Used after a successful checkout so the current-plan
// badge updates without a full session reload.
func (c *Catalog) RefreshSubscription(ctx context.Context, token, userID string) (*ActiveSubscription, error) {
	subs, err := c.api.GetSubscriptions(ctx, token)
	if err != nil {
		return nil, err
	}

	sub := ClassifyCurrentPlan(subs, time.Now())
	if sub == nil {
		_ = cache.Delete(subCacheKeyPrefix + userID)
		return nil, nil
	}

	if data, err := json.Marshal(sub); err == nil {
		if err := cache.Set(subCacheKeyPrefix+userID, data, subCacheTTL); err != nil {
			log.Warnf("[Catalog] failed to cache subscription for user %s: %v", userID, err)
		}
	}
	return sub, nil
}

// DefaultPlans is the built-in catalog used when the backend and the cache
// are both unavailable. Unknown roles get the lowest tier only.
func DefaultPlans(role string) []Plan {
	if !KnownRole(role) {
		return []Plan{defaultBasePlan()}
	}
	return []Plan{
		defaultBasePlan(),
		{
			ID:              "plan_verified_199",
			Tier:            TierVerified,
			PriceMinorUnits: 19900,
			IsRecurring:     true,
			Benefits:        []string{"Verified profile badge", "Priority job alerts"},
			DisplayName:     "Verified",
			CTALabel:        "Get Verified",
		},
		{
			ID:              "plan_trusted_499",
			Tier:            TierTrusted,
			PriceMinorUnits: 49900,
			IsRecurring:     true,
			Benefits:        []string{"Trusted profile badge", "Priority job alerts", "Dedicated support"},
			DisplayName:     "Trusted",
			CTALabel:        "Go Trusted",
		},
	}
}

func defaultBasePlan() Plan {
	return Plan{
		ID:              "plan_base_99",
		Tier:            TierBase,
		PriceMinorUnits: 9900,
		IsRecurring:     false,
		Benefits:        []string{"Profile listing", "Training library access"},
		DisplayName:     "Base",
		CTALabel:        "Choose plan",
	}
}
