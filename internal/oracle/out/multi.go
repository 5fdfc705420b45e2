package out

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/retry"
)

// DefaultPolicy bounds the delivery attempts per sink and record.
var DefaultPolicy = retry.Policy{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Jitter:      50 * time.Millisecond,
}

type named struct {
	name string
	s    Sink
}

// Multi fans a record out to every sink. A failing sink does not stop delivery
// to the others.
type Multi struct {
	policy retry.Policy
	sinks  []named
}

func NewMulti(p retry.Policy) *Multi {
	return &Multi{policy: p}
}

func (m *Multi) Add(name string, s Sink) *Multi {
	m.sinks = append(m.sinks, named{name: name, s: s})
	return m
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Emit(ctx context.Context, typ string, v any) error {
	var errs []error
	for _, n := range m.sinks {
		p := m.policy
		p.OnRetry = func(attempt int, wait time.Duration, err error) {
			log.Printf("[out] emit retry: sink=%s type=%s attempt=%d wait=%s err=%v", n.name, typ, attempt, wait, err)
		}
		err := retry.Do(ctx, p, func(ctx context.Context) error {
			return n.s.Emit(ctx, typ, v)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.name, err))
		}
	}
	return errors.Join(errs...)
}
