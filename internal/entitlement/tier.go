// Package entitlement decides whether a user may run a chargeable analysis
// and keeps the per-user usage counters that back that decision.
package entitlement

import "strings"

// Tier is a subscription level
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierCommercial Tier = "commercial"
	TierPro        Tier = "pro"
	TierPaid       Tier = "paid" // legacy unlimited plan
)

// Policy is the quota rule set of a tier
type Policy struct {
	Tier      Tier
	Unlimited bool

	// MonthlyLimit is ignored when MonthlyFromProfile is set; the ceiling
	// then comes from the profile's MaxAllowedActions.
	MonthlyLimit       int
	MonthlyFromProfile bool
	DailyLimit         int // 0 means no daily sub-limit

	CountMonthly bool
	CountDaily   bool

	// UpgradeOnDeny marks tiers whose denials should point at the pricing page
	UpgradeOnDeny bool
}

// PolicyFor returns the policy of a known tier. The second value is false
// for anything outside the closed set, which callers must treat as a denial.
func PolicyFor(t Tier) (Policy, bool) {
	switch t {
	case TierPro, TierPaid:
		return Policy{Tier: t, Unlimited: true}, true
	case TierPremium:
		return Policy{Tier: t, MonthlyLimit: 50, DailyLimit: 3, CountMonthly: true, CountDaily: true}, true
	case TierCommercial:
		return Policy{Tier: t, MonthlyFromProfile: true, CountMonthly: true}, true
	case TierFree:
		return Policy{Tier: t, MonthlyLimit: 3, CountMonthly: true, UpgradeOnDeny: true}, true
	default:
		return Policy{}, false
	}
}

// MonthlyCeiling resolves the monthly limit for a profile
func (p Policy) MonthlyCeiling(profile *UserProfile) int {
	if p.MonthlyFromProfile {
		if profile == nil || profile.MaxAllowedActions < 0 {
			return 0
		}
		return profile.MaxAllowedActions
	}
	return p.MonthlyLimit
}

// ParseTier normalizes a stored or user-supplied tier name
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := PolicyFor(t); !ok {
		return "", false
	}
	return t, true
}

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	_, ok := PolicyFor(t)
	return ok
}
