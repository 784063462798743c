// Package router dispatches decoded client events to their handlers.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/a-essam23/collab-dispatch/internal/dispatch"
	"github.com/a-essam23/collab-dispatch/internal/metrics"
	"github.com/a-essam23/collab-dispatch/internal/presence"
	"github.com/a-essam23/collab-dispatch/pkg/ephemeral"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/ratelimit"
	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

type Deps struct {
	State      state.Manager
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	Presence   *presence.Publisher
	Typing     *ephemeral.Tracker
	Limiter    *ratelimit.SlidingWindow
	Metrics    *metrics.Metrics
	Clock      clock.Clock
}

type EventRouter struct {
	logger     *slog.Logger
	state      state.Manager
	store      store.Store
	dispatcher *dispatch.Dispatcher
	presence   *presence.Publisher
	typing     *ephemeral.Tracker
	limiter    *ratelimit.SlidingWindow
	metrics    *metrics.Metrics
	clock      clock.Clock

	// noisy bounds log lines caused by garbage from clients.
	noisy *rate.Limiter
}

func NewEventRouter(logger *slog.Logger, deps Deps) *EventRouter {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &EventRouter{
		logger:     logger.With(slog.String("component", "event_router")),
		state:      deps.State,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		presence:   deps.Presence,
		typing:     deps.Typing,
		limiter:    deps.Limiter,
		metrics:    deps.Metrics,
		clock:      clk,
		noisy:      rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// request carries one inbound event through its handler.
type request struct {
	ctx       context.Context
	conn      *state.Connection
	event     string
	requestID string
}

func (req *request) userID() string { return req.conn.UserID }

// HandleMessage is the transport callback for every inbound frame. Errors never
// leave this function: they are reported to the sender or logged.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	// the limiter runs before anything that costs a lookup
	if !r.limiter.Allow(connID) {
		r.metrics.ThrottledEvents.Inc()
		r.logLimited("Connection throttled", slog.String("connID", connID.String()))
		_ = r.dispatcher.SendTo(connID, protocol.Error{
			Code:      protocol.CodeRateLimited,
			Message:   "too many events, slow down",
			Retryable: true,
		})
		return
	}

	conn, ok := r.state.GetConnection(connID)
	if !ok {
		r.logger.Warn("Message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	cm, err := protocol.ParseEnvelope(msg)
	if err != nil {
		r.logLimited("Malformed client message", slog.String("connID", connID.String()), slog.Any("error", err))
		_ = r.dispatcher.Send(conn, protocol.Error{Code: protocol.CodeValidationFailed, Message: "malformed message"})
		return
	}

	evt, err := protocol.DecodeInbound(cm)
	switch {
	case errors.Is(err, protocol.ErrUnknownEvent):
		r.logLimited("Received unknown event", slog.String("event", cm.Event), slog.String("connID", connID.String()))
		return
	case err != nil:
		_ = r.dispatcher.Send(conn, protocol.Error{
			Code:      protocol.CodeValidationFailed,
			Message:   "invalid payload",
			Event:     cm.Event,
			RequestID: cm.RequestID,
		})
		return
	}
	r.metrics.InboundEvents.WithLabelValues(cm.Event).Inc()

	req := &request{ctx: ctx, conn: conn, event: cm.Event, requestID: cm.RequestID}
	r.logger.Debug("Dispatching event", slog.String("event", cm.Event), slog.String("connID", connID.String()))
	if err := r.dispatch(req, evt); err != nil {
		r.replyError(req, err)
	}
}

func (r *EventRouter) dispatch(req *request, evt protocol.Inbound) error {
	switch e := evt.(type) {
	case protocol.JoinWorkspace:
		return r.joinWorkspace(req, e)
	case protocol.LeaveWorkspace:
		return r.leaveWorkspace(req, e)
	case protocol.CreateTask:
		return r.createTask(req, e)
	case protocol.UpdateTask:
		return r.updateTask(req, e)
	case protocol.DeleteTask:
		return r.deleteTask(req, e)
	case protocol.ChangeTaskStatus:
		return r.changeTaskStatus(req, e)
	case protocol.AddSubtask:
		return r.addSubtask(req, e)
	case protocol.ToggleSubtask:
		return r.toggleSubtask(req, e)
	case protocol.DeleteSubtask:
		return r.deleteSubtask(req, e)
	case protocol.CreateComment:
		return r.createComment(req, e)
	case protocol.UpdateComment:
		return r.updateComment(req, e)
	case protocol.DeleteComment:
		return r.deleteComment(req, e)
	case protocol.ReactToComment:
		return r.reactToComment(req, e)
	case protocol.StartTyping:
		return r.startTyping(req, e)
	case protocol.StopTyping:
		return r.stopTyping(req, e)
	case protocol.RequestPresence:
		return r.requestPresence(req, e)
	default:
		// unreachable while Inbound stays closed
		r.logger.Error("No handler for event", slog.String("event", evt.EventName()))
		return nil
	}
}

// reply sends evt to the requesting connection only.
func (r *EventRouter) reply(req *request, evt protocol.Outbound) {
	if err := r.dispatcher.Send(req.conn, evt); err != nil {
		r.logger.Debug("Reply not delivered", slog.String("connID", req.conn.ID.String()), slog.Any("error", err))
	}
}

// publish broadcasts a committed mutation to the workspace room and acknowledges the sender.
func (r *EventRouter) publish(req *request, workspaceID string, evt protocol.Outbound) {
	r.dispatcher.Broadcast(workspaceID, evt, uuid.Nil)
	if req.requestID != "" {
		r.reply(req, protocol.Ack{RequestID: req.requestID, Event: req.event})
	}
}

// recordActivity appends to the task's audit trail. The mutation is already
// committed, so a failure here is logged and the broadcast still goes out.
func (r *EventRouter) recordActivity(req *request, taskID, action string, details map[string]any) {
	entry := store.Activity{Action: action, UserID: req.userID(), Details: details, Timestamp: r.clock.Now()}
	if err := r.store.AppendTaskActivity(req.ctx, taskID, entry); err != nil {
		r.logger.Warn("Failed to append task activity",
			slog.String("taskID", taskID),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

func (r *EventRouter) replyError(req *request, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		r.logger.Error("Unhandled error in event handler",
			slog.String("event", req.event),
			slog.String("connID", req.conn.ID.String()),
			slog.Any("error", err),
		)
		reqErr = &RequestError{Code: protocol.CodeInternal, Message: "internal error", Err: err}
	} else {
		r.logger.Debug("Request rejected",
			slog.String("event", req.event),
			slog.String("code", string(reqErr.Code)),
			slog.Any("error", reqErr),
		)
	}
	r.reply(req, protocol.Error{
		Code:      reqErr.Code,
		Message:   reqErr.Message,
		Event:     req.event,
		RequestID: req.requestID,
		Retryable: reqErr.Code == protocol.CodePersistenceFailed,
	})
}

func (r *EventRouter) logLimited(msg string, attrs ...any) {
	if r.noisy.Allow() {
		r.logger.Warn(msg, attrs...)
	}
}
