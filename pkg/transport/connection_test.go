package transport_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/pkg/transport"
)

type harness struct {
	client *websocket.Conn
	server *transport.Connection
	wg     *sync.WaitGroup

	mu       sync.Mutex
	messages []string
	closes   []error
}

func (h *harness) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func (h *harness) closeErrs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.closes...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{wg: &sync.WaitGroup{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accepted := make(chan *transport.Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := transport.NewConnection(context.Background(), h.wg, ws,
			transport.ConnectionConfig{ReadTimeout: time.Minute, WriteTimeout: 5 * time.Second, SendBuffer: 8},
			func(ctx context.Context, connID uuid.UUID, msg []byte) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.messages = append(h.messages, string(msg))
			},
			func(connID uuid.UUID, err error) {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.closes = append(h.closes, err)
			},
			logger,
		)
		accepted <- conn
		conn.Run()
		<-conn.Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.CloseNow() })
	h.client = client

	select {
	case h.server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server side was never accepted")
	}
	return h
}

// drain reads c in the background and yields the error that ended it.
func drain(c *websocket.Conn) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for {
			if _, _, err := c.Read(ctx); err != nil {
				done <- err
				return
			}
		}
	}()
	return done
}

func waitDone(t *testing.T, c *transport.Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection never finished closing")
	}
}

func TestMessagesReachHandlerInOrder(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, h.client.Write(ctx, websocket.MessageText, []byte(msg)))
	}
	require.Eventually(t, func() bool { return len(h.received()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, h.received())
}

func TestSendReachesPeer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.server.Send([]byte(`{"event":"ack"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, msg, err := h.client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"ack"}`, string(msg))
}

func TestCloseSendsExplicitStatus(t *testing.T) {
	h := newHarness(t)
	closed := drain(h.client)

	h.server.Close(websocket.CloseError{Code: websocket.StatusGoingAway, Reason: "server shutting down"})

	err := <-closed
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, "server shutting down", closeErr.Reason)

	waitDone(t, h.server)
	h.wg.Wait()
	assert.ErrorIs(t, h.server.Send([]byte("late")), transport.ErrClosed)
	assert.Len(t, h.closeErrs(), 1)
}

func TestCloseDoesNotWaitForPeer(t *testing.T) {
	h := newHarness(t)

	// the client is not reading, so the handshake cannot finish yet
	start := time.Now()
	h.server.Close(errors.New("delivery failed"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, h.closeErrs(), 1, "close hook runs before Close returns")
	assert.ErrorIs(t, h.server.Send([]byte("late")), transport.ErrClosed)

	err := <-drain(h.client)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	waitDone(t, h.server)

	h.server.Close(errors.New("again"))
	assert.Len(t, h.closeErrs(), 1, "close is idempotent")
}

func TestPeerCloseRunsHookOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Close(websocket.StatusNormalClosure, "bye"))

	waitDone(t, h.server)
	errs := h.closeErrs()
	require.Len(t, errs, 1)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(errs[0]))
}
