// Package ephemeral tracks short-lived signals that expire on their own.
package ephemeral

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const DefaultTypingTTL = 3 * time.Second

// Key identifies one typing indicator: a user typing in a scope (task or workspace).
type Key struct {
	UserID  string
	ScopeID string
}

// Entry is a read-only view of a typing indicator.
type Entry struct {
	Key
	RoomID    string
	ConnID    uuid.UUID
	StartedAt time.Time
}

// Notifier receives typing transitions. It is never called with the tracker lock held.
type Notifier interface {
	TypingStarted(e Entry)
	TypingStopped(e Entry)
}

type typingEntry struct {
	Entry
	timer *clock.Timer
}

type Tracker struct {
	mu      sync.Mutex
	entries map[Key]*typingEntry

	ttl    time.Duration
	clock  clock.Clock
	notify Notifier
}

func NewTracker(ttl time.Duration, clk clock.Clock, notify Notifier) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		entries: make(map[Key]*typingEntry),
		ttl:     ttl,
		clock:   clk,
		notify:  notify,
	}
}

// Start records or refreshes the indicator, announces it, and (re)arms its expiry.
// A refresh moves the expiry to now+ttl. When the indicator moves to another
// room, the old room is told it stopped.
func (t *Tracker) Start(key Key, roomID string, connID uuid.UUID) {
	now := t.clock.Now()

	var moved *Entry
	t.mu.Lock()
	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
		if prev.RoomID != roomID {
			moved = &prev.Entry
		}
	}
	e := &typingEntry{Entry: Entry{Key: key, RoomID: roomID, ConnID: connID, StartedAt: now}}
	e.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(e) })
	t.entries[key] = e
	snapshot := e.Entry
	t.mu.Unlock()

	if moved != nil {
		t.notify.TypingStopped(*moved)
	}
	t.notify.TypingStarted(snapshot)
}

// Stop cancels the indicator and announces the stop. It reports false when
// nothing was pending, in which case nothing is announced.
func (t *Tracker) Stop(key Key) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	if ok {
		e.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify.TypingStopped(e.Entry)
	}
	return ok
}

// ClearConnection cancels every indicator owned by connID, announcing one stop per entry.
func (t *Tracker) ClearConnection(connID uuid.UUID) int {
	t.mu.Lock()
	var cleared []Entry
	for key, e := range t.entries {
		if e.ConnID != connID {
			continue
		}
		e.timer.Stop()
		delete(t.entries, key)
		cleared = append(cleared, e.Entry)
	}
	t.mu.Unlock()

	for _, e := range cleared {
		t.notify.TypingStopped(e)
	}
	return len(cleared)
}

// expire fires from the timer. A stale callback, one whose entry was replaced
// or stopped meanwhile, does nothing.
func (t *Tracker) expire(e *typingEntry) {
	t.mu.Lock()
	if t.entries[e.Key] != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, e.Key)
	t.mu.Unlock()

	t.notify.TypingStopped(e.Entry)
}

// IsTyping reports whether key has a live indicator. Entries past their ttl count
// as expired even when the timer has not run yet.
func (t *Tracker) IsTyping(key Key) bool {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return ok && t.fresh(e, now)
}

// Active lists the live indicators of a room, oldest first.
func (t *Tracker) Active(roomID string) []Entry {
	now := t.clock.Now()
	t.mu.Lock()
	var out []Entry
	for _, e := range t.entries {
		if e.RoomID == roomID && t.fresh(e, now) {
			out = append(out, e.Entry)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Pending returns the number of armed timers.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StopAll cancels every timer without announcing anything. Used on shutdown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *Tracker) fresh(e *typingEntry, now time.Time) bool {
	return now.Sub(e.StartedAt) < t.ttl
}
