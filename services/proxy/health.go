package proxy

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus is the cached result of the last health check of a target
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// TargetHealth pairs a target name with its cached status
type TargetHealth struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	HealthStatus
}

// HealthCache holds one status per target. It is never persisted, and a
// target that was never checked reads as unhealthy.
type HealthCache struct {
	mu     sync.RWMutex
	status map[string]HealthStatus
}

func NewHealthCache() *HealthCache {
	return &HealthCache{status: make(map[string]HealthStatus)}
}

func (c *HealthCache) Get(name string) (HealthStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.status[name]
	return s, ok
}

// Healthy reports whether the last health check of name succeeded
func (c *HealthCache) Healthy(name string) bool {
	s, ok := c.Get(name)
	return ok && s.Healthy
}

func (c *HealthCache) Set(name string, s HealthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[name] = s
}

// MarkUnhealthy flips a target down until the next successful health check
func (c *HealthCache) MarkUnhealthy(name string, reason string, at time.Time) {
	c.Set(name, HealthStatus{Healthy: false, CheckedAt: at, Error: reason})
}

// Snapshot returns the cached statuses ordered by name
func (c *HealthCache) Snapshot() []TargetHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TargetHealth, 0, len(c.status))
	for name, s := range c.status {
		out = append(out, TargetHealth{Name: name, HealthStatus: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
