package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-essam23/collab-dispatch/pkg/store"
)

// Inbound event names.
const (
	EventWorkspaceJoin   = "workspace:join"
	EventWorkspaceLeave  = "workspace:leave"
	EventTaskCreate      = "task:create"
	EventTaskUpdate      = "task:update"
	EventTaskDelete      = "task:delete"
	EventTaskStatus      = "task:status"
	EventSubtaskAdd      = "subtask:add"
	EventSubtaskToggle   = "subtask:toggle"
	EventSubtaskDelete   = "subtask:delete"
	EventCommentCreate   = "comment:create"
	EventCommentUpdate   = "comment:update"
	EventCommentDelete   = "comment:delete"
	EventCommentReaction = "comment:reaction"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventPresenceRequest = "presence:request"
)

// Inbound is the closed set of client events. Only types in this package implement it.
type Inbound interface {
	EventName() string
	inbound()
}

type JoinWorkspace struct {
	WorkspaceID string `json:"workspaceId"`
}

type LeaveWorkspace struct {
	WorkspaceID string `json:"workspaceId"`
}

type CreateTask struct {
	WorkspaceID string             `json:"workspaceId"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Status      store.TaskStatus   `json:"status,omitempty"`
	Priority    store.TaskPriority `json:"priority,omitempty"`
	Assignees   []string           `json:"assignees,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	DueDate     *time.Time         `json:"dueDate,omitempty"`
}

// TaskChanges carries only the fields a client changed; nil means untouched.
type TaskChanges struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Status      *store.TaskStatus   `json:"status,omitempty"`
	Priority    *store.TaskPriority `json:"priority,omitempty"`
	Assignees   *[]string           `json:"assignees,omitempty"`
	Tags        *[]string           `json:"tags,omitempty"`
	DueDate     *time.Time          `json:"dueDate,omitempty"`
}

func (c TaskChanges) Empty() bool {
	return c == TaskChanges{}
}

type UpdateTask struct {
	WorkspaceID string      `json:"workspaceId"`
	TaskID      string      `json:"taskId"`
	Changes     TaskChanges `json:"changes"`
}

type DeleteTask struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
}

type ChangeTaskStatus struct {
	WorkspaceID string           `json:"workspaceId"`
	TaskID      string           `json:"taskId"`
	Status      store.TaskStatus `json:"status"`
}

type AddSubtask struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	Title       string `json:"title"`
}

type ToggleSubtask struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	SubtaskID   string `json:"subtaskId"`
}

type DeleteSubtask struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	SubtaskID   string `json:"subtaskId"`
}

type CreateComment struct {
	TaskID   string   `json:"taskId"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

type UpdateComment struct {
	TaskID    string `json:"taskId"`
	CommentID string `json:"commentId"`
	Content   string `json:"content"`
}

type DeleteComment struct {
	TaskID    string `json:"taskId"`
	CommentID string `json:"commentId"`
}

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

type ReactToComment struct {
	TaskID    string         `json:"taskId"`
	CommentID string         `json:"commentId"`
	Emoji     string         `json:"emoji"`
	Action    ReactionAction `json:"action"`
}

type StartTyping struct {
	ScopeID     string `json:"scopeId"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

type StopTyping struct {
	ScopeID     string `json:"scopeId"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

type RequestPresence struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
}

func (JoinWorkspace) EventName() string    { return EventWorkspaceJoin }
func (LeaveWorkspace) EventName() string   { return EventWorkspaceLeave }
func (CreateTask) EventName() string       { return EventTaskCreate }
func (UpdateTask) EventName() string       { return EventTaskUpdate }
func (DeleteTask) EventName() string       { return EventTaskDelete }
func (ChangeTaskStatus) EventName() string { return EventTaskStatus }
func (AddSubtask) EventName() string       { return EventSubtaskAdd }
func (ToggleSubtask) EventName() string    { return EventSubtaskToggle }
func (DeleteSubtask) EventName() string    { return EventSubtaskDelete }
func (CreateComment) EventName() string    { return EventCommentCreate }
func (UpdateComment) EventName() string    { return EventCommentUpdate }
func (DeleteComment) EventName() string    { return EventCommentDelete }
func (ReactToComment) EventName() string   { return EventCommentReaction }
func (StartTyping) EventName() string      { return EventTypingStart }
func (StopTyping) EventName() string       { return EventTypingStop }
func (RequestPresence) EventName() string  { return EventPresenceRequest }

func (JoinWorkspace) inbound()    {}
func (LeaveWorkspace) inbound()   {}
func (CreateTask) inbound()       {}
func (UpdateTask) inbound()       {}
func (DeleteTask) inbound()       {}
func (ChangeTaskStatus) inbound() {}
func (AddSubtask) inbound()       {}
func (ToggleSubtask) inbound()    {}
func (DeleteSubtask) inbound()    {}
func (CreateComment) inbound()    {}
func (UpdateComment) inbound()    {}
func (DeleteComment) inbound()    {}
func (ReactToComment) inbound()   {}
func (StartTyping) inbound()      {}
func (StopTyping) inbound()       {}
func (RequestPresence) inbound()  {}

// DecodeInbound turns an envelope into its typed event. Unknown names return ErrUnknownEvent.
func DecodeInbound(cm ClientMessage) (Inbound, error) {
	switch cm.Event {
	case EventWorkspaceJoin:
		return decodeAs[JoinWorkspace](cm)
	case EventWorkspaceLeave:
		return decodeAs[LeaveWorkspace](cm)
	case EventTaskCreate:
		return decodeAs[CreateTask](cm)
	case EventTaskUpdate:
		return decodeAs[UpdateTask](cm)
	case EventTaskDelete:
		return decodeAs[DeleteTask](cm)
	case EventTaskStatus:
		return decodeAs[ChangeTaskStatus](cm)
	case EventSubtaskAdd:
		return decodeAs[AddSubtask](cm)
	case EventSubtaskToggle:
		return decodeAs[ToggleSubtask](cm)
	case EventSubtaskDelete:
		return decodeAs[DeleteSubtask](cm)
	case EventCommentCreate:
		return decodeAs[CreateComment](cm)
	case EventCommentUpdate:
		return decodeAs[UpdateComment](cm)
	case EventCommentDelete:
		return decodeAs[DeleteComment](cm)
	case EventCommentReaction:
		return decodeAs[ReactToComment](cm)
	case EventTypingStart:
		return decodeAs[StartTyping](cm)
	case EventTypingStop:
		return decodeAs[StopTyping](cm)
	case EventPresenceRequest:
		return decodeAs[RequestPresence](cm)
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownEvent, cm.Event)
	}
}

func decodeAs[T Inbound](cm ClientMessage) (Inbound, error) {
	var evt T
	payload := bytes.TrimSpace(cm.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return evt, nil
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("invalid payload for '%s': %w", cm.Event, err)
	}
	return evt, nil
}
