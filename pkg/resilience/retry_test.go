package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/erpbridge/platform/pkg/common/logger"
)

func init() {
	logger.Init()
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &delays
}

func TestExecuteWithRetryBackoffSequence(t *testing.T) {
	delays := stubSleep(t)

	failure := errors.New("boom")
	calls := 0
	err := ExecuteWithRetry(context.Background(), func() error {
		calls++
		return failure
	}, Options{
		MaxRetries:   6,
		InitialDelay: 1000 * time.Millisecond,
		MaxDelay:     10000 * time.Millisecond,
		ShouldRetry:  func(error) bool { return true },
	})

	if !errors.Is(err, failure) {
		t.Fatalf("expected the original error back, got %v", err)
	}
	if calls != 7 {
		t.Fatalf("expected 7 attempts, got %d", calls)
	}

	want := []time.Duration{1000, 2000, 4000, 8000, 10000, 10000}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*delays))
	}
	for i, d := range want {
		if (*delays)[i] != d*time.Millisecond {
			t.Fatalf("delay %d: expected %v, got %v", i, d*time.Millisecond, (*delays)[i])
		}
	}
}

func TestExecuteWithRetrySucceedsWithoutSleeping(t *testing.T) {
	delays := stubSleep(t)

	err := ExecuteWithRetry(context.Background(), func() error { return nil }, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no sleeps, got %d", len(*delays))
	}
}

func TestExecuteWithRetryStopsOnNonRetryable(t *testing.T) {
	delays := stubSleep(t)

	failure := errors.New("bad request")
	calls := 0
	err := ExecuteWithRetry(context.Background(), func() error {
		calls++
		return failure
	}, Options{})

	if !errors.Is(err, failure) {
		t.Fatalf("expected the original error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a non-retryable error, got %d", calls)
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no sleeps, got %d", len(*delays))
	}
}

func TestExecuteWithRetryRecoversMidway(t *testing.T) {
	stubSleep(t)

	calls := 0
	err := ExecuteWithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return syscall.ECONNREFUSED
		}
		return nil
	}, Options{})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDefaultShouldRetryClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", syscall.ECONNREFUSED, true},
		{"server error", &StatusError{StatusCode: 503, Status: "503 Service Unavailable"}, true},
		{"rate limited", &StatusError{StatusCode: 429, Status: "429 Too Many Requests"}, true},
		{"client error", &StatusError{StatusCode: 400, Status: "400 Bad Request"}, false},
		{"not found", &StatusError{StatusCode: 404, Status: "404 Not Found"}, false},
		{"plain error", errors.New("validation failed"), false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRetryAfterDelay(t *testing.T) {
	d, ok := RetryAfterDelay(&StatusError{StatusCode: 429, RetryAfter: "30"})
	if !ok || d != 30*time.Second {
		t.Fatalf("expected 30s, got %v ok=%v", d, ok)
	}

	if _, ok := RetryAfterDelay(&StatusError{StatusCode: 429}); ok {
		t.Fatal("expected no delay for missing header")
	}
	if _, ok := RetryAfterDelay(&StatusError{StatusCode: 429, RetryAfter: "soon"}); ok {
		t.Fatal("expected no delay for non-numeric header")
	}
	if _, ok := RetryAfterDelay(&StatusError{StatusCode: 500, RetryAfter: "30"}); ok {
		t.Fatal("expected no delay for a non-429 error")
	}
}
