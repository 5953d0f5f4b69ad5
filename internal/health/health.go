// Package health provides a registry of named dependency checks.
package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health of a single dependency
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker checks one dependency
type Checker func(ctx context.Context) Status

// Registry holds named checkers and runs them on demand
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewRegistry() *Registry {
	return &Registry{timeout: 3 * time.Second}
}

func (r *Registry) Register(check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, check)
	r.mu.Unlock()
}

// RegisterPing adapts an error-returning check such as a database ping
func (r *Registry) RegisterPing(name string, ping func(ctx context.Context) error) {
	r.Register(func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	})
}

// CheckAll runs every checker under a shared timeout
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	healthy = true
	statuses = make([]Status, len(checkers))
	for i, check := range checkers {
		statuses[i] = check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
