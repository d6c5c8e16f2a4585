package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
)

// RateLimiter is a sliding-window throttle: it keeps the timestamps of recent
// requests and suspends callers once maxRequests fall inside the trailing
// window. Safe for concurrent use.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{maxRequests: maxRequests, window: window}
}

// WaitIfNeeded blocks until a request slot is free, then records the call.
// Returns early only when ctx is done.
func (l *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		if len(l.stamps) < l.maxRequests {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.stamps[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		logger.Log.WithField("wait", wait.String()).Debug("Rate limit reached, waiting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reset discards all recorded request timestamps.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	l.stamps = nil
	l.mu.Unlock()
}

func (l *RateLimiter) prune(now time.Time) {
	cutoff := 0
	for cutoff < len(l.stamps) && now.Sub(l.stamps[cutoff]) >= l.window {
		cutoff++
	}
	if cutoff > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[cutoff:]...)
	}
}
