// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

type Policy struct {
	MaxAttempts int           // e.g. 3
	BaseDelay   time.Duration // e.g. 200ms
	MaxDelay    time.Duration // e.g. 5s
	Jitter      time.Duration // added on top of each wait

	// Classify decides whether err is worth another attempt.
	// nil: Permanent errors are Fatal, everything else Retryable.
	Classify func(error) Class

	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying under the default classifier.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

func defaultClassify(err error) Class {
	if IsPermanent(err) {
		return Fatal
	}
	return Retryable
}

// Backoff returns the wait before attempt+1, without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.BaseDelay
	for i := 1; i < attempt && wait < p.MaxDelay; i++ {
		wait *= 2
	}
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Classify == nil {
		p.Classify = defaultClassify
	}
	return p
}

// Do calls fn until it succeeds, fails with a Fatal error, ctx is done or
// MaxAttempts is reached. The last error is returned as is.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Classify(err) == Fatal || attempt == p.MaxAttempts {
			return err
		}

		wait := p.Backoff(attempt)
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}
