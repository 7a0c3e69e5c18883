package poll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildwarden/internal/api"
	"buildwarden/internal/testing/mock"
)

func newPoller(clock Clock) Poller {
	return Poller{Timeout: 3 * time.Second, Interval: time.Second, Kind: api.WaitReadiness, Clock: clock}
}

func TestUntil_ImmediateSuccessDoesNotSleep(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	calls := 0

	value, err := Until(context.Background(), newPoller(clock), func(ctx context.Context) (string, bool) {
		calls++
		return "ready", true
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", value)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestUntil_SucceedsAfterRetries(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	calls := 0

	value, err := Until(context.Background(), newPoller(clock), func(ctx context.Context) (int, bool) {
		calls++
		return calls, calls == 3
	})

	require.NoError(t, err)
	assert.Equal(t, 3, value)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
}

func TestUntil_TimeoutPerformsFinalEvaluation(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	calls := 0

	_, err := Until(context.Background(), newPoller(clock), func(ctx context.Context) (bool, bool) {
		calls++
		return false, false
	})

	require.Error(t, err)
	kind, ok := api.TimeoutKind(err)
	require.True(t, ok)
	assert.Equal(t, api.WaitReadiness, kind)
	// Evaluations at t=0,1,2,3 and one final evaluation once 4s > 3s elapsed.
	assert.Equal(t, 5, calls)
}

func TestUntil_ConditionTrueAtDeadline(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	calls := 0

	err := UntilTrue(context.Background(), newPoller(clock), func(ctx context.Context) bool {
		calls++
		return calls == 5
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestUntil_ReturnsLastValueOnTimeout(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})

	pending, err := Until(context.Background(), newPoller(clock), func(ctx context.Context) ([]string, bool) {
		return []string{"git.jpi.tmp"}, false
	})

	assert.True(t, api.IsTimeout(err))
	assert.Equal(t, []string{"git.jpi.tmp"}, pending)
}

func TestUntil_ContextCancelled(t *testing.T) {
	clock := mock.NewMockClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := UntilTrue(ctx, newPoller(clock), func(ctx context.Context) bool {
		calls++
		cancel()
		return false
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, api.IsTimeout(err))
	assert.Equal(t, 1, calls)
}

func TestRealClock_Sleep(t *testing.T) {
	clock := RealClock{}
	start := clock.Now()

	require.NoError(t, clock.Sleep(context.Background(), 5*time.Millisecond))
	assert.GreaterOrEqual(t, clock.Now().Sub(start), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Sleep(ctx, time.Hour), context.Canceled)
}

func TestPoller_DefaultsToRealClock(t *testing.T) {
	p := Poller{Timeout: time.Second, Interval: time.Millisecond, Kind: api.WaitRestartDrain}
	calls := 0

	err := UntilTrue(context.Background(), p, func(ctx context.Context) bool {
		calls++
		return calls == 2
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
