// Package ratelimit implements the shared adaptive request budget. One
// Limiter is shared by every worker hitting the same target; it only ever
// delays callers, it never fails them.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/metrics"
)

// Config tunes the limiter. Zero values fall back to the reference
// constants.
type Config struct {
	// SoftCeilingPerMin is the request rate above which Acquire inserts a
	// fixed cooldown.
	SoftCeilingPerMin int
	// Cooldown is the sleep applied when the soft ceiling is exceeded.
	Cooldown time.Duration
	// MaxBackoff caps the error-driven wait.
	MaxBackoff time.Duration
	// FactorCeiling bounds the backoff multiplier.
	FactorCeiling float64
}

func (c Config) withDefaults() Config {
	if c.SoftCeilingPerMin <= 0 {
		c.SoftCeilingPerMin = 30
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.FactorCeiling < 1.0 {
		c.FactorCeiling = 5.0
	}
	return c
}

// Limiter holds the shared rate/error budget behind a mutex. Exposed
// operations are Acquire, RecordSuccess and RecordError only.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	clk       clock.Clock
	sleep     func(context.Context, time.Duration) error
	window    []time.Time
	errCount  int
	lastError time.Time
	factor    float64
}

// New builds a Limiter.
func New(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.System{}
	}
	return &Limiter{
		cfg:    cfg.withDefaults(),
		clk:    clk,
		sleep:  sleepCtx,
		factor: 1.0,
	}
}

// Acquire blocks until it is safe to send the next request. It returns an
// error only when the context ends while waiting. The current time is
// appended to the sliding window before returning.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.clk.Now()

	var wait time.Duration

	l.mu.Lock()
	now := l.clk.Now()
	l.pruneLocked(now)

	if l.errCount > 0 {
		backoff := time.Duration(math.Min(
			l.cfg.MaxBackoff.Seconds(),
			math.Pow(2, float64(l.errCount))*l.factor,
		) * float64(time.Second))
		if elapsed := now.Sub(l.lastError); elapsed < backoff {
			wait = backoff - elapsed
		}
	}
	if len(l.window) > l.cfg.SoftCeilingPerMin {
		wait += l.cfg.Cooldown
	}
	l.mu.Unlock()

	if wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.window = append(l.window, l.clk.Now())
	l.mu.Unlock()

	if waited := l.clk.Now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

// RecordSuccess decays the error budget after a clean, block-free cycle.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.errCount > 0 {
		l.errCount--
	}
	l.factor = math.Max(1.0, l.factor*0.9)
	metrics.SetBackoffFactor(l.factor)
}

// RecordError grows the error budget after a block event or transport
// failure.
func (l *Limiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errCount++
	l.lastError = l.clk.Now()
	l.factor = math.Min(l.cfg.FactorCeiling, l.factor*1.2)
	metrics.SetBackoffFactor(l.factor)
}

// Stats returns a snapshot of the budget for reporting.
func (l *Limiter) Stats() (errCount int, factor float64, requestsInWindow int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.clk.Now())
	return l.errCount, l.factor, len(l.window)
}

// pruneLocked drops window entries older than 60 seconds.
func (l *Limiter) pruneLocked(now time.Time) {
	kept := l.window[:0]
	for _, t := range l.window {
		if now.Sub(t) < time.Minute {
			kept = append(kept, t)
		}
	}
	l.window = kept
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
