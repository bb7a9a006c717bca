package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter to provide a simpler interface.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a new token bucket limiter.
// r: tokens per second.
// b: burst size.
func NewLimiter(r float64, b int) *Limiter {
	if b < 1 {
		b = 1
	}
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Allow reports whether an event with weight n may happen at time now.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// Delay returns how long the caller has to wait for the next token without consuming it.
func (l *Limiter) Delay() time.Duration {
	r := l.inner.Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

// Throttle runs fn at most at the limiter's rate. Triggers arriving while the
// bucket is empty collapse into one trailing run.
type Throttle struct {
	limiter *Limiter
	fn      func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

func NewThrottle(perSecond float64, fn func()) *Throttle {
	return &Throttle{limiter: NewLimiter(perSecond, 1), fn: fn}
}

// Trigger requests a run of fn. It never blocks on fn.
func (t *Throttle) Trigger() {
	t.mu.Lock()
	if t.stopped || t.pending {
		t.mu.Unlock()
		return
	}
	if t.limiter.Allow(1) {
		t.mu.Unlock()
		t.fn()
		return
	}
	t.pending = true
	delay := t.limiter.Delay()
	t.timer = time.AfterFunc(delay, t.flush)
	t.mu.Unlock()
}

func (t *Throttle) flush() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.mu.Unlock()
	if t.limiter.Allow(1) {
		t.fn()
		return
	}
	t.Trigger()
}

// Stop cancels a pending trailing run.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
