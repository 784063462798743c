package ephemeral_test

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/pkg/ephemeral"
)

type recordingNotifier struct {
	mu      sync.Mutex
	started []ephemeral.Entry
	stopped []ephemeral.Entry
}

func (n *recordingNotifier) TypingStarted(e ephemeral.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, e)
}

func (n *recordingNotifier) TypingStopped(e ephemeral.Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, e)
}

func (n *recordingNotifier) stops() []ephemeral.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ephemeral.Entry(nil), n.stopped...)
}

func (n *recordingNotifier) starts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.started)
}

const ttl = 3 * time.Second

func newTracker() (*ephemeral.Tracker, *clock.Mock, *recordingNotifier) {
	clk := clock.NewMock()
	n := &recordingNotifier{}
	return ephemeral.NewTracker(ttl, clk, n), clk, n
}

func stopCount(n *recordingNotifier) func() bool {
	return func() bool { return len(n.stops()) == 1 }
}

func TestTypingAutoExpires(t *testing.T) {
	tr, clk, n := newTracker()
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}

	tr.Start(key, "ws-1", uuid.New())
	assert.Equal(t, 1, n.starts())
	assert.True(t, tr.IsTyping(key))

	clk.Add(ttl - time.Millisecond)
	assert.Never(t, func() bool { return len(n.stops()) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"stop must not fire before ttl")

	clk.Add(time.Millisecond)
	require.Eventually(t, stopCount(n), time.Second, 5*time.Millisecond)
	stop := n.stops()[0]
	assert.Equal(t, key, stop.Key)
	assert.Equal(t, "ws-1", stop.RoomID)
	assert.False(t, tr.IsTyping(key))
	assert.Equal(t, 0, tr.Pending())

	// no second stop later
	clk.Add(10 * ttl)
	assert.Never(t, func() bool { return len(n.stops()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTypingRestartPostponesExpiry(t *testing.T) {
	tr, clk, n := newTracker()
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}

	tr.Start(key, "ws-1", uuid.New())
	clk.Add(2 * time.Second)
	tr.Start(key, "ws-1", uuid.New())

	// first deadline (t=3s) passes without a stop
	clk.Add(2 * time.Second)
	assert.Never(t, func() bool { return len(n.stops()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, tr.IsTyping(key))

	// second deadline is t=5s
	clk.Add(time.Second)
	require.Eventually(t, stopCount(n), time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, n.starts())
}

func TestTypingStopCancelsTimer(t *testing.T) {
	tr, clk, n := newTracker()
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}

	tr.Start(key, "ws-1", uuid.New())
	assert.True(t, tr.Stop(key))
	assert.Len(t, n.stops(), 1, "explicit stop is announced immediately")

	clk.Add(2 * ttl)
	assert.Never(t, func() bool { return len(n.stops()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	assert.False(t, tr.Stop(key), "stopping twice is a no-op")
	assert.Len(t, n.stops(), 1)
}

func TestTypingClearConnection(t *testing.T) {
	tr, clk, n := newTracker()
	conn, other := uuid.New(), uuid.New()

	tr.Start(ephemeral.Key{UserID: "A", ScopeID: "t1"}, "ws-1", conn)
	tr.Start(ephemeral.Key{UserID: "A", ScopeID: "t2"}, "ws-1", conn)
	tr.Start(ephemeral.Key{UserID: "B", ScopeID: "t1"}, "ws-1", other)

	assert.Equal(t, 2, tr.ClearConnection(conn))
	assert.Len(t, n.stops(), 2)
	assert.Equal(t, 1, tr.Pending())

	clk.Add(ttl)
	require.Eventually(t, func() bool { return len(n.stops()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, tr.Pending())
}

// lateClock delays every timer far past its deadline, standing in for a cleanup
// callback that has not been scheduled yet.
type lateClock struct {
	*clock.Mock
}

func (c lateClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	return c.Mock.AfterFunc(1000*d, f)
}

func TestTypingReaderIgnoresStaleEntries(t *testing.T) {
	clk := lateClock{clock.NewMock()}
	n := &recordingNotifier{}
	tr := ephemeral.NewTracker(ttl, clk, n)
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}
	tr.Start(key, "ws-1", uuid.New())

	clk.Add(ttl)
	assert.Equal(t, 1, tr.Pending(), "timer has not fired")
	assert.False(t, tr.IsTyping(key))
	assert.Empty(t, tr.Active("ws-1"))
	assert.Empty(t, n.stops())
}

func TestTypingActiveByRoom(t *testing.T) {
	tr, clk, _ := newTracker()
	tr.Start(ephemeral.Key{UserID: "A", ScopeID: "t1"}, "ws-1", uuid.New())
	clk.Add(time.Second)
	tr.Start(ephemeral.Key{UserID: "B", ScopeID: "t1"}, "ws-1", uuid.New())
	tr.Start(ephemeral.Key{UserID: "C", ScopeID: "t9"}, "ws-2", uuid.New())

	active := tr.Active("ws-1")
	require.Len(t, active, 2)
	assert.Equal(t, "A", active[0].UserID)
	assert.Equal(t, "B", active[1].UserID)

	tr.StopAll()
	assert.Equal(t, 0, tr.Pending())
}

func TestTypingMoveStopsOldRoom(t *testing.T) {
	tr, clk, n := newTracker()
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}
	conn := uuid.New()

	tr.Start(key, "ws-1", conn)
	tr.Start(key, "ws-2", conn)
	require.Len(t, n.stops(), 1, "the old room hears the stop right away")
	assert.Equal(t, "ws-1", n.stops()[0].RoomID)
	assert.Empty(t, tr.Active("ws-1"))
	require.Len(t, tr.Active("ws-2"), 1)

	clk.Add(ttl)
	require.Eventually(t, func() bool { return len(n.stops()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ws-2", n.stops()[1].RoomID)

	// every room that saw a start also saw a stop
	byRoom := map[string]int{}
	for _, e := range n.stops() {
		byRoom[e.RoomID]++
	}
	assert.Equal(t, map[string]int{"ws-1": 1, "ws-2": 1}, byRoom)
	assert.Equal(t, 2, n.starts())
}

func TestTypingRefreshInSameRoomSendsNoStop(t *testing.T) {
	tr, _, n := newTracker()
	key := ephemeral.Key{UserID: "A", ScopeID: "t1"}

	tr.Start(key, "ws-1", uuid.New())
	tr.Start(key, "ws-1", uuid.New())
	assert.Empty(t, n.stops())
	assert.Equal(t, 2, n.starts())
}
