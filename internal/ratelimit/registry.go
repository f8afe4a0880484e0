package ratelimit

import (
	"time"

	"storyreel/internal/cache"
)

// Registry hands out one shared limiter per provider class. Instances live in
// a TTL cache so an idle class eventually resets to its initial delay instead
// of carrying stale backoff forever; the lifetime is explicit configuration.
type Registry struct {
	cfg       Config
	instances *cache.TTL[string, *Limiter]
}

// NewRegistry constructs a registry whose limiters all start from cfg.
// A ttl of zero keeps instances for the process lifetime.
func NewRegistry(cfg Config, ttl time.Duration) *Registry {
	return &Registry{
		cfg:       cfg,
		instances: cache.New[string, *Limiter](0, ttl),
	}
}

// For returns the shared limiter for a provider class, creating it on first use.
func (r *Registry) For(class string) *Limiter {
	return r.instances.GetOrCreate(class, func() *Limiter {
		return New(r.cfg)
	})
}

// Invalidate drops the limiter for a class; the next For call starts fresh.
func (r *Registry) Invalidate(class string) {
	r.instances.Invalidate(class)
}
