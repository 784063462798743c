package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/pkg/ratelimit"
)

func never(uuid.UUID) bool { return false }

func TestBudgetExhaustedWithinWindow(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(time.Minute, 100, clk)
	id := uuid.New()

	for i := 1; i <= 100; i++ {
		require.True(t, l.Allow(id), "event %d should be allowed", i)
		clk.Add(100 * time.Millisecond)
	}
	assert.False(t, l.Allow(id), "event 101 must be denied")
	assert.True(t, l.Throttled(id))

	// other connections have their own budget
	assert.True(t, l.Allow(uuid.New()))
}

func TestAllowedAgainAfterWindowElapses(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(time.Minute, 3, clk)
	id := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(id))
	}
	require.False(t, l.Allow(id))

	clk.Add(time.Minute + time.Millisecond)
	assert.True(t, l.Allow(id))
	assert.False(t, l.Throttled(id))
}

func TestWindowSlides(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(10*time.Second, 2, clk)
	id := uuid.New()

	require.True(t, l.Allow(id)) // t=0
	clk.Add(6 * time.Second)
	require.True(t, l.Allow(id)) // t=6
	require.False(t, l.Allow(id))

	clk.Add(5 * time.Second) // t=11, first event left the window
	assert.True(t, l.Allow(id))
	assert.False(t, l.Allow(id))
}

func TestDeniedEventsDoNotConsumeBudget(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(10*time.Second, 1, clk)
	id := uuid.New()

	require.True(t, l.Allow(id))
	for i := 0; i < 5; i++ {
		clk.Add(time.Second)
		require.False(t, l.Allow(id))
	}
	clk.Add(5*time.Second + time.Millisecond)
	assert.True(t, l.Allow(id))
}

func TestSweepRemovesIdleUnregistered(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(time.Minute, 10, clk)
	idle, busy, registered := uuid.New(), uuid.New(), uuid.New()

	l.Allow(idle)
	l.Allow(registered)
	clk.Add(2 * time.Minute)
	l.Allow(busy)

	removed := l.Sweep(func(id uuid.UUID) bool { return id == registered })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Sweep(func(id uuid.UUID) bool { return id == registered }))
	clk.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep(never))
	assert.Equal(t, 0, l.Len())
}

func TestRunSweepsPeriodically(t *testing.T) {
	clk := clock.NewMock()
	l := ratelimit.New(time.Second, 10, clk)
	l.Allow(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	swept := make(chan int, 4)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 30*time.Second, never, func(n int) { swept <- n }) }()

	require.Eventually(t, func() bool {
		clk.Add(30 * time.Second)
		select {
		case n := <-swept:
			return n == 1
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, l.Len())

	cancel()
	assert.NoError(t, <-done)
}
