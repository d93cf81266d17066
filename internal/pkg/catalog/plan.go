package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/loadway/Loadway/internal/pkg/upstream"
)

// Tier is the derived plan classification used for display and default
// benefit selection. It is computed locally, never trusted from the server.
type Tier string

const (
	TierBase     Tier = "base"
	TierVerified Tier = "verified"
	TierTrusted  Tier = "trusted"
)

// Caller roles form a small closed set. Unknown roles never crash
// classification, they degrade to the lowest tier.
const (
	RoleDriver      = "driver"
	RoleTransporter = "transporter"
)

// Plan is the normalized, tiered plan model.
type Plan struct {
	ID              string   `json:"id"`
	Tier            Tier     `json:"tier"`
	PriceMinorUnits int64    `json:"price_minor_units"`
	IsRecurring     bool     `json:"is_recurring"`
	Benefits        []string `json:"benefits"`
	DisplayName     string   `json:"display_name"`
	CTALabel        string   `json:"cta_label"`
}

// ActiveSubscription is the caller's current subscription record, if any.
// Amounts are canonicalized to minor units at the upstream boundary.
type ActiveSubscription struct {
	AmountMinorUnits int64  `json:"amount_minor_units"`
	EndAt            *int64 `json:"end_at,omitempty"` // epoch seconds
}

// IsActive reports whether the subscription end lies in the future.
func (s ActiveSubscription) IsActive(now time.Time) bool {
	return s.EndAt != nil && *s.EndAt*1000 > now.UnixMilli()
}

func KnownRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleDriver, RoleTransporter:
		return true
	default:
		return false
	}
}

// tierRule is one entry of the ordered classification table. Amounts are in
// minor units; the thresholds correspond to 90-100, 400 and 150 major units.
type tierRule struct {
	matches func(amountMinor int64, name string) bool
	tier    Tier
}

var tierRules = []tierRule{
	// Legacy base price band wins regardless of the plan name.
	{func(amount int64, _ string) bool { return amount >= 9000 && amount <= 10000 }, TierBase},
	{func(amount int64, name string) bool { return nameHasAny(name, "trusted", "premium") || amount >= 40000 }, TierTrusted},
	{func(amount int64, name string) bool { return nameHasAny(name, "verified", "standard") || amount >= 15000 }, TierVerified},
}

func nameHasAny(name string, markers ...string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ClassifyTier derives a tier from price, display name and caller role. The
// rule table is ordered and total: the first matching rule wins, and the
// function is pure so repeated calls always agree.
func ClassifyTier(amountMinorUnits int64, displayName, role string) Tier {
	if !KnownRole(role) {
		return TierBase
	}
	for _, rule := range tierRules {
		if rule.matches(amountMinorUnits, displayName) {
			return rule.tier
		}
	}
	return TierBase
}

// Normalize converts raw plan records into the tiered model, sorted ascending
// by price. Upstream declares amounts in major units.
func Normalize(raw []upstream.RawPlan, role string) []Plan {
	plans := make([]Plan, 0, len(raw))
	for _, r := range raw {
		amountMinor := int64(r.Amount*100 + 0.5)
		if amountMinor < 0 {
			amountMinor = 0
		}
		tier := ClassifyTier(amountMinor, r.Name, role)
		plans = append(plans, Plan{
			ID:              strings.TrimSpace(r.ID),
			Tier:            tier,
			PriceMinorUnits: amountMinor,
			IsRecurring:     r.Recurring,
			Benefits:        append([]string(nil), r.Benefits...),
			DisplayName:     r.Name,
			CTALabel:        ctaLabelFor(r.CTALabel, tier),
		})
	}
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].PriceMinorUnits < plans[j].PriceMinorUnits
	})
	return plans
}

func ctaLabelFor(declared string, tier Tier) string {
	if s := strings.TrimSpace(declared); s != "" {
		return s
	}
	switch tier {
	case TierTrusted:
		return "Go Trusted"
	case TierVerified:
		return "Get Verified"
	default:
		return "Choose plan"
	}
}

// ClassifyCurrentPlan selects the first active record from the caller's
// subscription list. Absence of any active record is the normal
// "no subscription" state.
func ClassifyCurrentPlan(subs []upstream.RawSubscription, now time.Time) *ActiveSubscription {
	for _, raw := range subs {
		sub := ActiveSubscription{
			AmountMinorUnits: raw.AmountMinorUnits(),
			EndAt:            raw.EndAt,
		}
		if sub.IsActive(now) {
			return &sub
		}
	}
	return nil
}

// currentPlanToleranceMinorUnits is one major unit. Legacy and promotional
// amounts are stored inconsistently upstream, so the current-plan match is a
// band, not an equality check.
const currentPlanToleranceMinorUnits = 100

// CurrentPlanFor matches the active subscription amount against the catalog
// within the tolerance band. Returns nil when nothing matches.
func CurrentPlanFor(plans []Plan, sub *ActiveSubscription) *Plan {
	if sub == nil {
		return nil
	}
	for i := range plans {
		diff := plans[i].PriceMinorUnits - sub.AmountMinorUnits
		if diff < 0 {
			diff = -diff
		}
		if diff < currentPlanToleranceMinorUnits {
			return &plans[i]
		}
	}
	return nil
}
