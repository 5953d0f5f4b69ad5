package entitlement

import "time"

// UserProfile is the entitlement record of one user
type UserProfile struct {
	UserID                 string    `bson:"_id" json:"userId"`
	SubscriptionTier       Tier      `bson:"subscriptionTier" json:"subscriptionTier"`
	MonthlyUsageCount      int       `bson:"monthlyUsageCount" json:"monthlyUsageCount"`
	LastMonthlyResetPeriod string    `bson:"lastMonthlyResetPeriod" json:"lastMonthlyResetPeriod"`
	DailyUsageCount        int       `bson:"dailyUsageCount" json:"dailyUsageCount"`
	LastDailyResetDate     string    `bson:"lastDailyResetDate" json:"lastDailyResetDate"`
	MaxAllowedActions      int       `bson:"maxAllowedActions" json:"maxAllowedActions"`
	CreatedAt              time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt              time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewProfile returns the default free-tier profile created on first access
func NewProfile(userID string, now time.Time) *UserProfile {
	now = now.UTC()
	return &UserProfile{
		UserID:                 userID,
		SubscriptionTier:       TierFree,
		LastMonthlyResetPeriod: CurrentPeriod(now),
		LastDailyResetDate:     CurrentDay(now),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// CurrentPeriod is the year-month token of now, in UTC
func CurrentPeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// CurrentDay is the calendar-date token of now, in UTC
func CurrentDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// EffectiveMonthly is the monthly count after lazy period rollover
func (p *UserProfile) EffectiveMonthly(now time.Time) int {
	if p.LastMonthlyResetPeriod != CurrentPeriod(now) || p.MonthlyUsageCount < 0 {
		return 0
	}
	return p.MonthlyUsageCount
}

// EffectiveDaily is the daily count after lazy date rollover
func (p *UserProfile) EffectiveDaily(now time.Time) int {
	if p.LastDailyResetDate != CurrentDay(now) || p.DailyUsageCount < 0 {
		return 0
	}
	return p.DailyUsageCount
}

// WithIncrement returns a copy of p as it looks after inc is applied at now.
// A stale period or date resets the counter to 1 instead of incrementing it.
func (p *UserProfile) WithIncrement(inc Increment, now time.Time) *UserProfile {
	out := *p
	if inc.Monthly {
		out.MonthlyUsageCount = p.EffectiveMonthly(now) + 1
		out.LastMonthlyResetPeriod = CurrentPeriod(now)
	}
	if inc.Daily {
		out.DailyUsageCount = p.EffectiveDaily(now) + 1
		out.LastDailyResetDate = CurrentDay(now)
	}
	if !inc.IsZero() {
		out.UpdatedAt = now.UTC()
	}
	return &out
}

// Usage is the quota status reported to clients
type Usage struct {
	Tier         Tier   `json:"tier"`
	Unlimited    bool   `json:"unlimited"`
	Period       string `json:"period"`
	MonthlyUsed  int    `json:"monthlyUsed"`
	MonthlyLimit int    `json:"monthlyLimit,omitempty"`
	DailyUsed    int    `json:"dailyUsed,omitempty"`
	DailyLimit   int    `json:"dailyLimit,omitempty"`
	Remaining    *int   `json:"remaining,omitempty"`
}

// Status summarizes p for the current period
func Status(p *UserProfile, now time.Time) Usage {
	u := Usage{
		Tier:        p.SubscriptionTier,
		Period:      CurrentPeriod(now),
		MonthlyUsed: p.EffectiveMonthly(now),
	}

	policy, ok := PolicyFor(p.SubscriptionTier)
	if !ok {
		zero := 0
		u.Remaining = &zero
		return u
	}
	if policy.Unlimited {
		u.Unlimited = true
		return u
	}

	u.MonthlyLimit = policy.MonthlyCeiling(p)
	remaining := u.MonthlyLimit - u.MonthlyUsed
	if policy.DailyLimit > 0 {
		u.DailyLimit = policy.DailyLimit
		u.DailyUsed = p.EffectiveDaily(now)
		if daily := policy.DailyLimit - u.DailyUsed; daily < remaining {
			remaining = daily
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	u.Remaining = &remaining
	return u
}
