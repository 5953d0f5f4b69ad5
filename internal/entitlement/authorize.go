package entitlement

import (
	"fmt"
	"time"
)

// DenyReason is the machine-readable cause of a denial
type DenyReason string

const (
	ReasonMonthly      DenyReason = "monthly"
	ReasonDaily        DenyReason = "daily"
	ReasonUnauthorized DenyReason = "unauthorized"
)

// Increment selects which counters a counted action bumps
type Increment struct {
	Monthly bool
	Daily   bool
}

// IsZero reports whether no counter is selected
func (i Increment) IsZero() bool {
	return !i.Monthly && !i.Daily
}

// Limits caps a conditional increment; a value <= 0 leaves that counter uncapped
type Limits struct {
	Monthly int
	Daily   int
}

// Decision is the outcome of Authorize
type Decision struct {
	Allowed         bool
	Increment       Increment
	Limits          Limits
	Reason          DenyReason
	UpgradeRequired bool
	RetryAfter      time.Duration
	Message         string
}

// Authorize evaluates profile against its tier policy at now. It never
// writes; stale counters are treated as zero and the caller persists the
// rollover through the store's increment path.
func Authorize(profile *UserProfile, now time.Time) Decision {
	if profile == nil {
		return deny(ReasonUnauthorized, false, 0, "no entitlement profile")
	}

	policy, ok := PolicyFor(profile.SubscriptionTier)
	if !ok {
		return deny(ReasonUnauthorized, false, 0,
			fmt.Sprintf("unknown subscription tier %q", profile.SubscriptionTier))
	}

	if policy.Unlimited {
		return Decision{Allowed: true}
	}

	monthlyLimit := policy.MonthlyCeiling(profile)
	if profile.EffectiveMonthly(now) >= monthlyLimit {
		msg := fmt.Sprintf("Monthly limit of %d analyses reached", monthlyLimit)
		switch {
		case policy.MonthlyFromProfile && monthlyLimit == 0:
			msg = "No analyses are configured for this account yet. Please contact support."
		case policy.UpgradeOnDeny:
			msg = fmt.Sprintf("You have used all %d free analyses this month. Upgrade to continue.", monthlyLimit)
		}
		return deny(ReasonMonthly, policy.UpgradeOnDeny, untilNextPeriod(now), msg)
	}

	if policy.DailyLimit > 0 && profile.EffectiveDaily(now) >= policy.DailyLimit {
		return deny(ReasonDaily, policy.UpgradeOnDeny, untilNextDay(now),
			fmt.Sprintf("Daily limit of %d analyses reached. Please try again tomorrow.", policy.DailyLimit))
	}

	return Decision{
		Allowed:   true,
		Increment: Increment{Monthly: policy.CountMonthly, Daily: policy.CountDaily},
		Limits:    Limits{Monthly: monthlyLimit, Daily: policy.DailyLimit},
	}
}

// LostReservation is the denial for a conditional increment that lost to a
// concurrent request while a fresh read still shows headroom. The upgrade
// prompt follows the tier policy like any other monthly denial.
func LostReservation(tier Tier, limits Limits, now time.Time) Decision {
	policy, _ := PolicyFor(tier)
	msg := fmt.Sprintf("Monthly limit of %d analyses reached", limits.Monthly)
	if policy.UpgradeOnDeny {
		msg = fmt.Sprintf("You have used all %d free analyses this month. Upgrade to continue.", limits.Monthly)
	}
	return deny(ReasonMonthly, policy.UpgradeOnDeny, untilNextPeriod(now), msg)
}

func deny(reason DenyReason, upgrade bool, retryAfter time.Duration, msg string) Decision {
	return Decision{
		Reason:          reason,
		UpgradeRequired: upgrade,
		RetryAfter:      retryAfter,
		Message:         msg,
	}
}

func untilNextPeriod(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func untilNextDay(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
