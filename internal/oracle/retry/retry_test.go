package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fast(n int) Policy {
	return Policy{MaxAttempts: n, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	var waits []time.Duration
	p := fast(5)
	p.OnRetry = func(attempt int, wait time.Duration, err error) { waits = append(waits, wait) }

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Fatalf("waits=%v", waits)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	if !errors.Is(err, errFlaky) || !IsPermanent(err) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoCustomClassify(t *testing.T) {
	calls := 0
	p := fast(5)
	p.Classify = func(err error) Class {
		if errors.Is(err, errFlaky) {
			return Fatal
		}
		return Retryable
	}
	_ = Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	err := Do(ctx, p, func(ctx context.Context) error { return errFlaky })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}

	calls := 0
	err = Do(ctx, p, func(ctx context.Context) error { calls++; return nil })
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestBackoffCaps(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}.withDefaults()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
}
