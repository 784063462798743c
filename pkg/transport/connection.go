package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connId uuid.UUID, msg []byte)

type OnCloseHandler func(connId uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	closing   atomic.Bool
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	buffer := config.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	if conn != nil && config.MaxMessageBytes > 0 {
		conn.SetReadLimit(config.MaxMessageBytes)
	}

	wg.Add(1)
	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
// Messages of one connection are handled strictly in arrival order.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := c.readContext()
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			c.logger.Warn("Failed to read websocket frame", slog.Any("error", err))
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

func (c *Connection) readContext() (context.Context, context.CancelFunc) {
	if c.config.ReadTimeout <= 0 {
		return context.WithCancel(c.ctx)
	}
	return context.WithTimeout(c.ctx, c.config.ReadTimeout)
}

// writePump pumps messages from the send channel to the WebSocket connection
// and keeps the peer alive with periodic pings.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	var pings <-chan time.Time
	if c.config.PingInterval > 0 {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				writeErr = err
				return
			}
		case <-pings:
			ctx, cancel := c.writeContext()
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(message []byte) error {
	ctx, cancel := c.writeContext()
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, message)
}

func (c *Connection) writeContext() (context.Context, context.CancelFunc) {
	if c.config.WriteTimeout <= 0 {
		return context.WithCancel(c.ctx)
	}
	return context.WithTimeout(c.ctx, c.config.WriteTimeout)
}

// Send queues a message for the client. It never blocks: a closed connection
// returns ErrClosed and a peer that stopped draining its queue returns ErrSendBufferFull.
func (c *Connection) Send(message []byte) error {
	if c.closing.Load() {
		return ErrClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. The close hook runs before Close returns;
// the close handshake with the peer finishes in the background, and Done is
// closed once it has. An explicit websocket.CloseError sets the status sent
// to the peer.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		code, reason := closeStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", code.String()))

		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		go func() {
			defer c.wg.Done()
			defer close(c.done)
			// the context stays live until the close frame is out; cancelling
			// it first makes the library drop the socket without one.
			if c.conn != nil {
				c.conn.Close(code, reason)
			}
			c.cancel() // Signal goroutines to stop.
		}()
	})
}

func closeStatus(err error) (websocket.StatusCode, string) {
	var closeErr websocket.CloseError
	switch {
	case err == nil:
		return websocket.StatusNormalClosure, ""
	case errors.As(err, &closeErr) && closeErr.Code != websocket.StatusNoStatusRcvd:
		return closeErr.Code, truncateReason(closeErr.Reason)
	case errors.As(err, &closeErr):
		return websocket.StatusNormalClosure, ""
	default:
		return websocket.StatusPolicyViolation, truncateReason(err.Error())
	}
}

// close reasons must fit in a control frame.
func truncateReason(reason string) string {
	if len(reason) > 120 {
		return reason[:120]
	}
	return reason
}

// returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}
func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
