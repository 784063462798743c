// Package ratelimit implements a per-connection sliding-window event budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultBudget = 100
)

type windowState struct {
	stamps    []time.Time // ascending
	throttled bool
}

type SlidingWindow struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*windowState

	window time.Duration
	budget int
	clock  clock.Clock
}

func New(window time.Duration, budget int, clk clock.Clock) *SlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	if clk == nil {
		clk = clock.New()
	}
	return &SlidingWindow{
		entries: make(map[uuid.UUID]*windowState),
		window:  window,
		budget:  budget,
		clock:   clk,
	}
}

// Allow records an event for id if it fits in the budget of the trailing window.
// A denied event is not recorded and marks the connection throttled.
func (l *SlidingWindow) Allow(id uuid.UUID) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.entries[id]
	if !ok {
		st = &windowState{}
		l.entries[id] = st
	}
	st.prune(now.Add(-l.window))

	if len(st.stamps) >= l.budget {
		st.throttled = true
		return false
	}
	st.stamps = append(st.stamps, now)
	st.throttled = false
	return true
}

// Throttled reports whether the last event of id was denied.
func (l *SlidingWindow) Throttled(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.entries[id]
	return ok && st.throttled
}

func (l *SlidingWindow) Forget(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops the state of connections that are idle for a full window and
// for which isActive reports false. It returns the number of entries removed.
func (l *SlidingWindow) Sweep(isActive func(uuid.UUID) bool) int {
	cutoff := l.clock.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, st := range l.entries {
		st.prune(cutoff)
		if len(st.stamps) > 0 || isActive(id) {
			continue
		}
		delete(l.entries, id)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context, interval time.Duration, isActive func(uuid.UUID) bool, onSweep func(removed int)) error {
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := l.Sweep(isActive)
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// prune drops timestamps at or before cutoff.
func (st *windowState) prune(cutoff time.Time) {
	i := 0
	for i < len(st.stamps) && !st.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		st.stamps = append(st.stamps[:0], st.stamps[i:]...)
	}
}
