package protocol

import (
	"time"

	"github.com/a-essam23/collab-dispatch/pkg/store"
)

// Outbound event names.
const (
	EventConnected        = "connected"
	EventWorkspaceJoined  = "workspace:joined"
	EventWorkspaceLeft    = "workspace:left"
	EventTaskCreated      = "task:created"
	EventTaskUpdated      = "task:updated"
	EventTaskDeleted      = "task:deleted"
	EventCommentCreated   = "comment:created"
	EventCommentUpdated   = "comment:updated"
	EventCommentDeleted   = "comment:deleted"
	EventCommentReacted   = "comment:reaction"
	EventUserPresence     = "user:presence"
	EventPresenceSnapshot = "presence:snapshot"
	EventAck              = "ack"
	EventError            = "error"
	// typing:start and typing:stop share their names with the inbound events.
)

// Outbound is the closed set of server events.
type Outbound interface {
	EventName() string
	outbound()
}

type Connected struct {
	User store.User `json:"user"`
}

type RosterEntry struct {
	UserID     string     `json:"userId"`
	Role       string     `json:"role"`
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

type WorkspaceJoined struct {
	WorkspaceID string        `json:"workspaceId"`
	Roster      []RosterEntry `json:"roster"`
}

type WorkspaceLeft struct {
	WorkspaceID string `json:"workspaceId"`
}

type TaskCreated struct {
	WorkspaceID string      `json:"workspaceId"`
	Task        *store.Task `json:"task"`
	ActorID     string      `json:"actorId"`
	Timestamp   time.Time   `json:"timestamp"`
}

type TaskUpdated struct {
	WorkspaceID string      `json:"workspaceId"`
	TaskID      string      `json:"taskId"`
	Task        *store.Task `json:"task"`
	Changes     TaskChanges `json:"changes"`
	// Action names non-field changes such as subtask operations.
	Action    string    `json:"action,omitempty"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
}

type TaskDeleted struct {
	WorkspaceID string    `json:"workspaceId"`
	TaskID      string    `json:"taskId"`
	ActorID     string    `json:"actorId"`
	Timestamp   time.Time `json:"timestamp"`
}

type CommentCreated struct {
	WorkspaceID string         `json:"workspaceId"`
	TaskID      string         `json:"taskId"`
	Comment     *store.Comment `json:"comment"`
	ActorID     string         `json:"actorId"`
	Timestamp   time.Time      `json:"timestamp"`
}

type CommentUpdated struct {
	WorkspaceID string         `json:"workspaceId"`
	TaskID      string         `json:"taskId"`
	Comment     *store.Comment `json:"comment"`
	ActorID     string         `json:"actorId"`
	Timestamp   time.Time      `json:"timestamp"`
}

type CommentDeleted struct {
	WorkspaceID string    `json:"workspaceId"`
	TaskID      string    `json:"taskId"`
	CommentID   string    `json:"commentId"`
	ActorID     string    `json:"actorId"`
	Timestamp   time.Time `json:"timestamp"`
}

type CommentReaction struct {
	WorkspaceID string         `json:"workspaceId"`
	TaskID      string         `json:"taskId"`
	CommentID   string         `json:"commentId"`
	Emoji       string         `json:"emoji"`
	Action      ReactionAction `json:"action"`
	Comment     *store.Comment `json:"comment"`
	ActorID     string         `json:"actorId"`
	Timestamp   time.Time      `json:"timestamp"`
}

type UserPresence struct {
	UserID     string     `json:"userId"`
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

type TypingIndicator struct {
	ScopeID string `json:"scopeId"`
	UserID  string `json:"userId"`
}

type TypingStarted TypingIndicator

type TypingStopped TypingIndicator

type PresenceSnapshot struct {
	Users  []UserPresence    `json:"users"`
	Typing []TypingIndicator `json:"typing"`
}

type Ack struct {
	RequestID string `json:"requestId"`
	Event     string `json:"event"`
}

type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Event     string    `json:"event,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

func (Connected) EventName() string        { return EventConnected }
func (WorkspaceJoined) EventName() string  { return EventWorkspaceJoined }
func (WorkspaceLeft) EventName() string    { return EventWorkspaceLeft }
func (TaskCreated) EventName() string      { return EventTaskCreated }
func (TaskUpdated) EventName() string      { return EventTaskUpdated }
func (TaskDeleted) EventName() string      { return EventTaskDeleted }
func (CommentCreated) EventName() string   { return EventCommentCreated }
func (CommentUpdated) EventName() string   { return EventCommentUpdated }
func (CommentDeleted) EventName() string   { return EventCommentDeleted }
func (CommentReaction) EventName() string  { return EventCommentReacted }
func (UserPresence) EventName() string     { return EventUserPresence }
func (TypingStarted) EventName() string    { return EventTypingStart }
func (TypingStopped) EventName() string    { return EventTypingStop }
func (PresenceSnapshot) EventName() string { return EventPresenceSnapshot }
func (Ack) EventName() string              { return EventAck }
func (Error) EventName() string            { return EventError }

func (Connected) outbound()        {}
func (WorkspaceJoined) outbound()  {}
func (WorkspaceLeft) outbound()    {}
func (TaskCreated) outbound()      {}
func (TaskUpdated) outbound()      {}
func (TaskDeleted) outbound()      {}
func (CommentCreated) outbound()   {}
func (CommentUpdated) outbound()   {}
func (CommentDeleted) outbound()   {}
func (CommentReaction) outbound()  {}
func (UserPresence) outbound()     {}
func (TypingStarted) outbound()    {}
func (TypingStopped) outbound()    {}
func (PresenceSnapshot) outbound() {}
func (Ack) outbound()              {}
func (Error) outbound()            {}
