package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/intelgate/pkg/adapter"
)

var errBackend = errors.New("backend failure")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *testClock) {
	clock := newTestClock()
	b := NewBreaker("backend-a", cfg)
	b.now = clock.now
	return b, clock
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.False(t, invoked, "open breaker must not invoke the backend")
	assert.Equal(t, "backend-a", open.Backend)
	assert.Equal(t, 60*time.Second, open.RetryAfter)
	assert.Equal(t, adapter.KindCircuitOpen, adapter.KindOf(err))
	assert.True(t, IsCircuitOpen(err))
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Snapshot().ConsecutiveFailures)
}

func TestBreakerRecoveryAndBackoff(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
		MaxMultiplier:    8,
	})

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	snap := b.Snapshot()
	require.Equal(t, StateOpen, snap.State)
	require.Equal(t, 2, snap.RecoveryMultiplier)

	clock.advance(19 * time.Second)
	require.True(t, IsCircuitOpen(b.Execute(ctx, succeed)))

	// Window elapsed: the trial call fails and the window doubles.
	clock.advance(time.Second)
	require.ErrorIs(t, b.Execute(ctx, fail), errBackend)
	snap = b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 4, snap.RecoveryMultiplier)

	clock.advance(39 * time.Second)
	require.True(t, IsCircuitOpen(b.Execute(ctx, succeed)))
	clock.advance(time.Second)

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeed))

	snap = b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.RecoveryMultiplier)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestBreakerMultiplierIsCapped(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second, MaxMultiplier: 8})

	for i := 0; i < 6; i++ {
		_ = b.Execute(ctx, fail)
		clock.advance(time.Hour)
	}
	assert.Equal(t, 8, b.Snapshot().RecoveryMultiplier)
}

func TestBreakerSingleHalfOpenTrial(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	_ = b.Execute(ctx, fail)
	clock.advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(ctx, succeed)
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, StateHalfOpen, open.State)

	close(release)
	require.NoError(t, <-done)
}

func TestBreakerAvailableAfterWindow(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	assert.True(t, b.Available())

	_ = b.Execute(ctx, fail)
	assert.False(t, b.Available())
	assert.Equal(t, StateOpen, b.EffectiveState())

	// Window is 2s after the first trip. Nothing has been admitted yet.
	clock.advance(2 * time.Second)
	assert.True(t, b.Available())
	assert.Equal(t, StateHalfOpen, b.EffectiveState())
	assert.Equal(t, StateOpen, b.State(), "availability checks do not transition")

	require.NoError(t, b.Allow())
	assert.False(t, b.Available(), "trial call in flight")
	b.Record(nil)
	assert.True(t, b.Available())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().ConsecutiveFailures)
}

func TestBreakerCountsCallTimeouts(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-callCtx.Done()
		return callCtx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 1})
	_ = b.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.RecoveryMultiplier)
}

func TestBreakerRegistry(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	reg := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(backend string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, backend+":"+from.String()+"->"+to.String())
		},
	}, nil)

	a := reg.Get("a")
	assert.Same(t, a, reg.Get("a"))
	assert.Equal(t, StateClosed, reg.State("unknown"))
	assert.Equal(t, StateClosed, reg.EffectiveState("unknown"))
	assert.True(t, reg.Available("unknown"))

	_ = a.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, reg.State("a"))
	assert.False(t, reg.Available("a"))
	assert.Equal(t, []string{"a:closed->open"}, transitions)

	snaps := reg.Snapshots()
	require.Contains(t, snaps, "a")
	assert.Equal(t, "open", snaps["a"].StateName)

	reg.ResetAll()
	assert.Equal(t, StateClosed, reg.State("a"))
}

func TestBreakerRegistryConcurrentGet(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig(), nil)

	var wg sync.WaitGroup
	got := make([]*Breaker, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = reg.Get("shared")
		}(i)
	}
	wg.Wait()
	for _, b := range got {
		assert.Same(t, got[0], b)
	}
}
