package entitlement

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database is configured and in tests
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*UserProfile
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*UserProfile),
		now:      time.Now,
	}
}

// Put replaces a profile wholesale (seeding and admin fixtures)
func (s *MemoryStore) Put(p *UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID string) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = NewProfile(userID, s.now())
		s.profiles[userID] = p
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) IncrementUsage(_ context.Context, userID string, inc Increment, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	s.profiles[userID] = p.WithIncrement(inc, now)
	return nil
}

func (s *MemoryStore) IncrementIfBelow(_ context.Context, userID string, inc Increment, limits Limits, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return false, ErrNotFound
	}
	if !belowLimits(p, inc, limits, now) {
		return false, nil
	}
	s.profiles[userID] = p.WithIncrement(inc, now)
	return true, nil
}

func (s *MemoryStore) SetTier(_ context.Context, userID string, tier Tier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = NewProfile(userID, s.now())
		s.profiles[userID] = p
	}
	p.SubscriptionTier = tier
	p.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) SetMaxAllowedActions(_ context.Context, userID string, n int) error {
	if n < 0 {
		return ErrInvalidCap
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = NewProfile(userID, s.now())
		s.profiles[userID] = p
	}
	p.MaxAllowedActions = n
	p.UpdatedAt = s.now().UTC()
	return nil
}
