package router

import (
	"log/slog"

	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/state"
)

func (r *EventRouter) joinWorkspace(req *request, e protocol.JoinWorkspace) error {
	if e.WorkspaceID == "" {
		return invalid("workspaceId is required")
	}
	member, err := r.store.IsWorkspaceMember(req.ctx, req.userID(), e.WorkspaceID)
	if err != nil {
		return storeFailure(err, "workspace")
	}
	if !member {
		return unauthorized("not a member of this workspace")
	}
	members, err := r.store.GetWorkspaceMembers(req.ctx, e.WorkspaceID)
	if err != nil {
		return storeFailure(err, "workspace")
	}

	perms := state.PermCanRead
	roster := make([]protocol.RosterEntry, 0, len(members))
	for _, m := range members {
		if m.UserID == req.userID() {
			perms = state.PermissionsFor(state.Role(m.Role))
		}
		roster = append(roster, protocol.RosterEntry{
			UserID:     m.UserID,
			Role:       m.Role,
			IsOnline:   r.state.IsOnline(m.UserID),
			LastActive: m.LastActive,
		})
	}

	if _, err := r.state.Join(req.conn.ID, e.WorkspaceID, perms); err != nil {
		// the connection went away while the store was being queried
		r.logger.Debug("Join of closed connection", slog.String("connID", req.conn.ID.String()), slog.Any("error", err))
		return nil
	}
	r.logger.Info("User joined workspace",
		slog.String("userID", req.userID()),
		slog.String("workspaceID", e.WorkspaceID),
		slog.String("connID", req.conn.ID.String()),
	)
	r.reply(req, protocol.WorkspaceJoined{WorkspaceID: e.WorkspaceID, Roster: roster})
	return nil
}

func (r *EventRouter) leaveWorkspace(req *request, e protocol.LeaveWorkspace) error {
	if e.WorkspaceID == "" {
		return invalid("workspaceId is required")
	}
	r.state.Leave(req.conn.ID, e.WorkspaceID)
	r.reply(req, protocol.WorkspaceLeft{WorkspaceID: e.WorkspaceID})
	return nil
}

// requestPresence answers with the presence of one workspace, or of every
// workspace the connection has joined. It never broadcasts.
func (r *EventRouter) requestPresence(req *request, e protocol.RequestPresence) error {
	rooms := r.state.RoomsOf(req.conn.ID)
	if e.WorkspaceID != "" {
		if _, joined := r.state.GetGrant(req.conn.ID, e.WorkspaceID); !joined {
			if _, err := r.authorize(req, e.WorkspaceID, state.PermCanRead); err != nil {
				return err
			}
		}
		rooms = []string{e.WorkspaceID}
	}

	snapshot := protocol.PresenceSnapshot{
		Users:  []protocol.UserPresence{},
		Typing: []protocol.TypingIndicator{},
	}
	seen := make(map[string]struct{})
	for _, room := range rooms {
		users, err := r.presence.Users(req.ctx, room)
		if err != nil {
			return storeFailure(err, "workspace")
		}
		for _, u := range users {
			if _, ok := seen[u.UserID]; ok {
				continue
			}
			seen[u.UserID] = struct{}{}
			snapshot.Users = append(snapshot.Users, u)
		}
		for _, t := range r.typing.Active(room) {
			snapshot.Typing = append(snapshot.Typing, protocol.TypingIndicator{ScopeID: t.ScopeID, UserID: t.UserID})
		}
	}
	r.reply(req, snapshot)
	return nil
}
