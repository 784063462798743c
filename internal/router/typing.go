package router

import (
	"github.com/a-essam23/collab-dispatch/internal/dispatch"
	"github.com/a-essam23/collab-dispatch/pkg/ephemeral"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
)

func (r *EventRouter) startTyping(req *request, e protocol.StartTyping) error {
	if e.ScopeID == "" {
		return invalid("scopeId is required")
	}
	room, err := r.typingRoom(req, e.ScopeID, e.WorkspaceID)
	if err != nil {
		return err
	}
	r.typing.Start(ephemeral.Key{UserID: req.userID(), ScopeID: e.ScopeID}, room, req.conn.ID)
	return nil
}

// stopTyping is a no-op when no indicator is pending.
func (r *EventRouter) stopTyping(req *request, e protocol.StopTyping) error {
	if e.ScopeID == "" {
		return invalid("scopeId is required")
	}
	r.typing.Stop(ephemeral.Key{UserID: req.userID(), ScopeID: e.ScopeID})
	return nil
}

// typingRoom resolves the one room a typing signal is shown in: the explicit
// workspace, else the scope itself when it is a joined workspace, else the
// workspace of the task named by the scope. A task scope must belong to the
// resolved workspace, and the connection must have joined it.
func (r *EventRouter) typingRoom(req *request, scopeID, workspaceID string) (string, error) {
	room := workspaceID
	switch {
	case room == scopeID:
	case room != "":
		if _, err := r.loadTask(req, scopeID, room); err != nil {
			return "", err
		}
	default:
		if _, joined := r.state.GetGrant(req.conn.ID, scopeID); joined {
			return scopeID, nil
		}
		task, err := r.loadTask(req, scopeID, "")
		if err != nil {
			return "", err
		}
		room = task.WorkspaceID
	}
	if _, joined := r.state.GetGrant(req.conn.ID, room); !joined {
		return "", unauthorized("join the workspace before typing in it")
	}
	return room, nil
}

// TypingBroadcaster announces typing transitions to the room of the entry,
// skipping the connection that typed.
type TypingBroadcaster struct {
	dispatcher *dispatch.Dispatcher
}

var _ ephemeral.Notifier = (*TypingBroadcaster)(nil)

func NewTypingBroadcaster(d *dispatch.Dispatcher) *TypingBroadcaster {
	return &TypingBroadcaster{dispatcher: d}
}

func (b *TypingBroadcaster) TypingStarted(e ephemeral.Entry) {
	b.dispatcher.Broadcast(e.RoomID, protocol.TypingStarted{ScopeID: e.ScopeID, UserID: e.UserID}, e.ConnID)
}

func (b *TypingBroadcaster) TypingStopped(e ephemeral.Entry) {
	b.dispatcher.Broadcast(e.RoomID, protocol.TypingStopped{ScopeID: e.ScopeID, UserID: e.UserID}, e.ConnID)
}
