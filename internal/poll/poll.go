package poll

import (
	"context"
	"time"

	"buildwarden/internal/api"
)

// Clock abstracts time so waits can be driven by a fake clock in tests.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d or until ctx is cancelled.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller is a bounded "wait until" primitive.
type Poller struct {
	Timeout  time.Duration
	Interval time.Duration

	// Kind is reported in the TimeoutError when the wait expires.
	Kind api.WaitKind

	// Clock defaults to RealClock when nil.
	Clock Clock
}

func (p Poller) clock() Clock {
	if p.Clock == nil {
		return RealClock{}
	}
	return p.Clock
}

// Until evaluates pred immediately and then once per interval until it reports
// true, returning its value. Once the elapsed time exceeds the timeout, pred is
// evaluated one final time so a condition that became true exactly at the
// deadline is not missed; if it still fails, a *api.TimeoutError is returned
// together with the last value pred produced.
//
// Cancelling ctx aborts the wait with ctx.Err().
func Until[T any](ctx context.Context, p Poller, pred func(ctx context.Context) (T, bool)) (T, error) {
	clock := p.clock()
	start := clock.Now()

	for {
		value, ok := pred(ctx)
		if ok {
			return value, nil
		}

		if err := clock.Sleep(ctx, p.Interval); err != nil {
			return value, err
		}

		if clock.Now().Sub(start) > p.Timeout {
			value, ok = pred(ctx)
			if ok {
				return value, nil
			}
			return value, &api.TimeoutError{Kind: p.Kind, Timeout: p.Timeout}
		}
	}
}

// UntilTrue is Until for plain boolean conditions.
func UntilTrue(ctx context.Context, p Poller, cond func(ctx context.Context) bool) error {
	_, err := Until(ctx, p, func(ctx context.Context) (struct{}, bool) {
		return struct{}{}, cond(ctx)
	})
	return err
}
