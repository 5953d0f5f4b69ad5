package entitlement

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("entitlement: profile not found")
	ErrInvalidTier = errors.New("entitlement: invalid subscription tier")
	ErrInvalidCap  = errors.New("entitlement: max allowed actions must not be negative")
)

// Store persists entitlement profiles. It is the only writer of usage counters.
type Store interface {
	// GetOrCreate returns the profile, creating a free-tier one on first touch.
	GetOrCreate(ctx context.Context, userID string) (*UserProfile, error)

	// IncrementUsage atomically bumps the selected counters, resetting a
	// counter to 1 when its stored period or date is stale.
	IncrementUsage(ctx context.Context, userID string, inc Increment, now time.Time) error

	// IncrementIfBelow is IncrementUsage guarded by limits in a single
	// conditional update. It returns false without writing when a capped
	// counter is already at its limit.
	IncrementIfBelow(ctx context.Context, userID string, inc Increment, limits Limits, now time.Time) (bool, error)

	SetTier(ctx context.Context, userID string, tier Tier) error
	SetMaxAllowedActions(ctx context.Context, userID string, n int) error
}

// belowLimits reports whether p may take inc under limits at now
func belowLimits(p *UserProfile, inc Increment, limits Limits, now time.Time) bool {
	if inc.Monthly && limits.Monthly > 0 && p.EffectiveMonthly(now) >= limits.Monthly {
		return false
	}
	if inc.Daily && limits.Daily > 0 && p.EffectiveDaily(now) >= limits.Daily {
		return false
	}
	return true
}
