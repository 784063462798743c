// Package dispatch delivers outbound events to single connections and whole rooms.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/a-essam23/collab-dispatch/internal/metrics"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/state"
)

type Dispatcher struct {
	state   state.Manager
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(stateManager state.Manager, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		state:   stateManager,
		metrics: m,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

// Broadcast sends evt to every connection in roomID except the one given
// (uuid.Nil excludes nobody). The event is encoded once. It returns the number
// of connections the frame was queued for.
func (d *Dispatcher) Broadcast(roomID string, evt protocol.Outbound, except uuid.UUID) int {
	targets := d.state.RoomConnections(roomID)
	if len(targets) == 0 {
		return 0
	}
	msg, err := protocol.Encode(evt)
	if err != nil {
		d.logger.Error("Failed to encode broadcast", slog.String("roomID", roomID), slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, conn := range targets {
		if conn.ID == except {
			continue
		}
		if d.deliver(conn, msg) {
			delivered++
		}
	}
	d.metrics.Broadcasts.WithLabelValues(evt.EventName()).Inc()
	d.logger.Debug("Notified room",
		slog.String("roomID", roomID),
		slog.String("event", evt.EventName()),
		slog.Int("connection_count", delivered),
	)
	return delivered
}

// SendTo sends evt to a single registered connection.
func (d *Dispatcher) SendTo(connID uuid.UUID, evt protocol.Outbound) error {
	conn, ok := d.state.GetConnection(connID)
	if !ok {
		return fmt.Errorf("connection '%s' is not registered", connID)
	}
	return d.Send(conn, evt)
}

// Send sends evt to conn, which may not be registered yet.
func (d *Dispatcher) Send(conn *state.Connection, evt protocol.Outbound) error {
	msg, err := protocol.Encode(evt)
	if err != nil {
		return err
	}
	if !d.deliver(conn, msg) {
		return fmt.Errorf("failed to deliver '%s' to connection '%s'", evt.EventName(), conn.ID)
	}
	return nil
}

// deliver queues msg on the connection. A connection that cannot take the frame
// is dead or too slow; closing it runs the regular disconnect cleanup.
func (d *Dispatcher) deliver(conn *state.Connection, msg []byte) bool {
	err := conn.Transport.Send(msg)
	if err == nil {
		return true
	}
	d.metrics.DeliveryFailures.Inc()
	d.logger.Warn("Dropping unreachable connection",
		slog.String("connID", conn.ID.String()),
		slog.String("userID", conn.UserID),
		slog.Any("error", err),
	)
	conn.Transport.Close(fmt.Errorf("delivery failed: %w", err))
	return false
}
