package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks until the caller may issue one more outbound request
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowLimiter is a process-local fixed window counter. Once the window budget
// is spent, Wait sleeps for the rest of the window and starts a new one.
type WindowLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWindowLimiter creates a limiter allowing limit requests per window
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit < 1 {
		limit = 1
	}
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// NewPerMinute creates a limiter allowing limit requests per minute
func NewPerMinute(limit int) *WindowLimiter {
	return NewWindowLimiter(limit, time.Minute)
}

func (l *WindowLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		remaining := l.window - now.Sub(l.windowStart)
		l.mu.Unlock()

		// budget spent: sleep without holding the lock, then compete for the next window
		if err := l.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
