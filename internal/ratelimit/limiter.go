// Package ratelimit implements a self-tuning delay gate placed between
// consecutive calls to a generation provider. Each provider class (image,
// tts, video, scenario) gets its own limiter; parallel scene workers must
// share the class instance so the pacing guarantee stays global.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// severeFactor is the extra multiplier applied on provider overload signals
// (HTTP 503) on top of the ordinary error ratio.
const severeFactor = 1.5

// Config bounds and tunes a limiter. Invariant: Min <= Initial <= Max.
type Config struct {
	InitialDelay  time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	SuccessRatio  float64
	ErrorRatio    float64
	SuccessStreak int
}

// Stats is a point-in-time snapshot of limiter counters.
type Stats struct {
	CurrentDelay  time.Duration
	CurrentStreak int
	TotalCalls    int64
	TotalWaited   time.Duration
	TotalErrors   int64
}

// Limiter paces calls for one provider class. All methods are safe for
// concurrent use from multiple scene workers.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	delay    time.Duration
	streak   int
	lastCall time.Time
	calls    int64
	waited   time.Duration
	errors   int64
	now      func() time.Time
}

// New constructs a limiter, clamping the initial delay into [Min, Max].
func New(cfg Config) *Limiter {
	if cfg.SuccessRatio <= 0 || cfg.SuccessRatio >= 1 {
		cfg.SuccessRatio = 0.9
	}
	if cfg.ErrorRatio <= 1 {
		cfg.ErrorRatio = 1.5
	}
	if cfg.SuccessStreak <= 0 {
		cfg.SuccessStreak = 3
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = cfg.InitialDelay
	}
	l := &Limiter{
		cfg: cfg,
		now: time.Now,
	}
	l.delay = clamp(cfg.InitialDelay, cfg.MinDelay, cfg.MaxDelay)
	// Seed the last-call timestamp so the very first call is throttled
	// relative to a virtual previous call at construction time.
	l.lastCall = l.now()
	return l
}

// WaitIfNeeded blocks until at least the current delay has elapsed since the
// previous call, then returns. The reservation is published before sleeping,
// so concurrent callers queue behind each other instead of stampeding when
// the wait expires.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	next := l.lastCall.Add(l.delay)
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
		next = now
	}
	l.lastCall = next
	l.calls++
	l.waited += wait
	l.mu.Unlock()

	return sleepContext(ctx, wait)
}

// RecordSuccess counts a successful call; once the consecutive-success streak
// reaches the configured threshold the delay shrinks by the success ratio.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streak++
	if l.streak < l.cfg.SuccessStreak {
		return
	}
	l.streak = 0
	l.delay = clamp(time.Duration(float64(l.delay)*l.cfg.SuccessRatio), l.cfg.MinDelay, l.cfg.MaxDelay)
}

// RecordError counts an ordinary rate-limit rejection: the streak resets and
// the delay grows by the error ratio.
func (l *Limiter) RecordError() {
	l.record(l.cfg.ErrorRatio)
}

// RecordSevereError handles overload signals (e.g. HTTP 503): the delay grows
// by the error ratio compounded with an additional 1.5x factor.
func (l *Limiter) RecordSevereError() {
	l.record(l.cfg.ErrorRatio * severeFactor)
}

func (l *Limiter) record(ratio float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streak = 0
	l.errors++
	l.delay = clamp(time.Duration(float64(l.delay)*ratio), l.cfg.MinDelay, l.cfg.MaxDelay)
}

// CurrentDelay returns the delay currently enforced between calls.
func (l *Limiter) CurrentDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

// Snapshot returns current counters for observability.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		CurrentDelay:  l.delay,
		CurrentStreak: l.streak,
		TotalCalls:    l.calls,
		TotalWaited:   l.waited,
		TotalErrors:   l.errors,
	}
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
