// Package store defines the contract of the external data store. The realtime service
// never owns durable state: every mutation goes through a Store before it is broadcast.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Store interface {
	// --- Workspaces ---
	IsWorkspaceMember(ctx context.Context, userID, workspaceID string) (bool, error)
	GetWorkspaceMembers(ctx context.Context, workspaceID string) ([]Member, error)
	ListUserWorkspaces(ctx context.Context, userID string) ([]string, error)

	// --- Users ---
	GetUser(ctx context.Context, userID string) (*User, error)
	SetUserOnline(ctx context.Context, userID string, online bool) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error

	// --- Tasks ---
	LoadTask(ctx context.Context, taskID string) (*Task, error)
	SaveTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, taskID string) error
	AppendTaskActivity(ctx context.Context, taskID string, entry Activity) error

	// --- Comments ---
	LoadComment(ctx context.Context, commentID string) (*Comment, error)
	SaveComment(ctx context.Context, comment *Comment) error
	DeleteComment(ctx context.Context, commentID string) error

	Close(ctx context.Context) error
}
