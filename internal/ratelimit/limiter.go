// Package ratelimit holds the provider admission control and the retry
// policy applied to provider failures.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the sliding interval the limit applies to.
const Window = time.Minute

// epsilon is added to computed waits so the oldest request has left the
// window by the time the caller wakes up.
const epsilon = time.Second

// Limiter admits at most limit requests per trailing minute. It is local to
// one process and shared by that process's workers.
type Limiter struct {
	mu    sync.Mutex
	limit int
	times []time.Time
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep used by Wait and Take.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// New creates a Limiter. A non-positive limit disables limiting.
func New(limitPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		limit: limitPerMinute,
		now:   time.Now,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanAdmit reports whether one more request fits in the window.
func (l *Limiter) CanAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canAdmit(l.now())
}

// Record notes that a request was made now.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = append(l.times, l.now())
}

// WaitTime returns how long until a request would be admitted; zero when
// one can be made now.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitTime(l.now())
}

// Wait blocks until a request would be admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		w := l.WaitTime()
		if w <= 0 {
			return nil
		}
		if err := l.sleep(ctx, w); err != nil {
			return err
		}
	}
}

// Take waits for admission and records the request in one step, so two
// workers cannot both claim the last slot.
func (l *Limiter) Take(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if l.canAdmit(now) {
			l.times = append(l.times, now)
			l.mu.Unlock()
			return nil
		}
		w := l.waitTime(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, w); err != nil {
			return err
		}
	}
}

func (l *Limiter) canAdmit(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.prune(now)
	return len(l.times) < l.limit
}

func (l *Limiter) waitTime(now time.Time) time.Duration {
	if l.canAdmit(now) {
		return 0
	}
	oldest := l.times[0]
	return Window - now.Sub(oldest) + epsilon
}

// prune drops timestamps that have left the window.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.times) && now.Sub(l.times[i]) >= Window {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
