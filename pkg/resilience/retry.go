package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
)

// Options controls ExecuteWithRetry. Zero values fall back to the defaults
// used by every outbound call in the pipeline.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	ShouldRetry  func(error) bool
}

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 1000 * time.Millisecond
	defaultMaxDelay     = 10000 * time.Millisecond
)

// sleep is swapped out in tests to observe the backoff sequence.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteWithRetry calls fn until it succeeds, the retry budget is exhausted,
// or the predicate declines the error. The delay doubles each attempt from
// InitialDelay up to MaxDelay, with no jitter. The final underlying error is
// returned unchanged, never wrapped.
func ExecuteWithRetry(ctx context.Context, fn func() error, opts Options) error {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaultInitialDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = DefaultShouldRetry
	}

	delay := opts.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == opts.MaxRetries || !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		logger.Log.WithError(lastErr).WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"max":     opts.MaxRetries,
			"delay":   delay.String(),
		}).Warn("Retrying after error")

		if err := sleep(ctx, delay); err != nil {
			return lastErr
		}
		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return lastErr
}

// StatusError carries a non-2xx HTTP response through the error channel so
// the retry predicate can classify it.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %s", e.Status)
}

// DefaultShouldRetry retries connection-refused, timeout and DNS failures,
// plus HTTP 5xx and 429 responses. Everything else propagates immediately.
func DefaultShouldRetry(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRateLimitError reports whether err is an HTTP 429 response.
func IsRateLimitError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == 429
}

// RetryAfterDelay extracts a Retry-After header (whole seconds) from a rate
// limit error. The second return is false when the header is absent or not
// numeric.
func RetryAfterDelay(err error) (time.Duration, bool) {
	if !IsRateLimitError(err) {
		return 0, false
	}
	var statusErr *StatusError
	errors.As(err, &statusErr)
	seconds, convErr := strconv.Atoi(statusErr.RetryAfter)
	if convErr != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
