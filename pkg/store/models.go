package store

import (
	"slices"
	"time"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type User struct {
	ID         string     `json:"id" bson:"_id"`
	Name       string     `json:"name" bson:"name"`
	Email      string     `json:"email,omitempty" bson:"email"`
	Avatar     string     `json:"avatar,omitempty" bson:"avatar,omitempty"`
	IsOnline   bool       `json:"-" bson:"isOnline"`
	LastActive *time.Time `json:"-" bson:"lastActive,omitempty"`
}

type Member struct {
	UserID     string     `json:"userId" bson:"user"`
	Role       string     `json:"role" bson:"role"`
	LastActive *time.Time `json:"lastActive,omitempty" bson:"-"`
}

type Workspace struct {
	ID      string   `bson:"_id"`
	Name    string   `bson:"name"`
	Members []Member `bson:"members"`
}

type Subtask struct {
	ID        string `json:"id" bson:"id"`
	Title     string `json:"title" bson:"title"`
	Completed bool   `json:"completed" bson:"completed"`
}

type Task struct {
	ID          string       `json:"id" bson:"_id"`
	WorkspaceID string       `json:"workspaceId" bson:"workspace"`
	Title       string       `json:"title" bson:"title"`
	Description string       `json:"description,omitempty" bson:"description,omitempty"`
	Status      TaskStatus   `json:"status" bson:"status"`
	Priority    TaskPriority `json:"priority" bson:"priority"`
	Assignees   []string     `json:"assignees,omitempty" bson:"assignees,omitempty"`
	Tags        []string     `json:"tags,omitempty" bson:"tags,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Subtasks    []Subtask    `json:"subtasks,omitempty" bson:"subtasks,omitempty"`
	CreatedBy   string       `json:"createdBy" bson:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (t *Task) Clone() *Task {
	c := *t
	c.Assignees = slices.Clone(t.Assignees)
	c.Tags = slices.Clone(t.Tags)
	c.Subtasks = slices.Clone(t.Subtasks)
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	return &c
}

func (t *Task) FindSubtask(id string) int {
	return slices.IndexFunc(t.Subtasks, func(s Subtask) bool { return s.ID == id })
}

type Activity struct {
	Action    string         `json:"action" bson:"action"`
	UserID    string         `json:"userId" bson:"user"`
	Details   map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

type Reaction struct {
	Emoji  string `json:"emoji" bson:"emoji"`
	UserID string `json:"userId" bson:"user"`
}

type Comment struct {
	ID          string     `json:"id" bson:"_id"`
	TaskID      string     `json:"taskId" bson:"task"`
	WorkspaceID string     `json:"workspaceId" bson:"workspace"`
	AuthorID    string     `json:"authorId" bson:"author"`
	Content     string     `json:"content" bson:"content"`
	Mentions    []string   `json:"mentions,omitempty" bson:"mentions,omitempty"`
	Reactions   []Reaction `json:"reactions,omitempty" bson:"reactions,omitempty"`
	Edited      bool       `json:"edited" bson:"edited"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

func (c *Comment) Clone() *Comment {
	cp := *c
	cp.Mentions = slices.Clone(c.Mentions)
	cp.Reactions = slices.Clone(c.Reactions)
	return &cp
}

// HasReaction reports whether userID already reacted with emoji.
func (c *Comment) HasReaction(userID, emoji string) bool {
	return slices.Contains(c.Reactions, Reaction{Emoji: emoji, UserID: userID})
}

// RemoveReaction drops the reaction and reports whether it existed.
func (c *Comment) RemoveReaction(userID, emoji string) bool {
	before := len(c.Reactions)
	c.Reactions = slices.DeleteFunc(c.Reactions, func(r Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
	return len(c.Reactions) != before
}
