// Package memstore is an in-process Store used for local development and tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/a-essam23/collab-dispatch/pkg/store"
)

type Store struct {
	mu         sync.RWMutex
	users      map[string]*store.User
	workspaces map[string]*store.Workspace
	tasks      map[string]*store.Task
	comments   map[string]*store.Comment
	activity   map[string][]store.Activity

	// failures injected per operation name, consumed by the next call.
	failures map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]*store.User),
		workspaces: make(map[string]*store.Workspace),
		tasks:      make(map[string]*store.Task),
		comments:   make(map[string]*store.Comment),
		activity:   make(map[string][]store.Activity),
		failures:   make(map[string]error),
	}
}

// --- seeding and inspection ---

func (s *Store) PutUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func (s *Store) PutWorkspace(ws store.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.Members = slices.Clone(ws.Members)
	s.workspaces[ws.ID] = &ws
}

func (s *Store) PutTask(t store.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
}

func (s *Store) PutComment(c store.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = c.Clone()
}

func (s *Store) Activity(taskID string) []store.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.activity[taskID])
}

func (s *Store) User(userID string) (store.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return store.User{}, false
	}
	return *u, true
}

// FailNext makes the next call of op (e.g. "SaveTask") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) takeFailure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// --- Workspaces ---

func (s *Store) IsWorkspaceMember(ctx context.Context, userID, workspaceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("IsWorkspaceMember"); err != nil {
		return false, err
	}
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return false, nil
	}
	return slices.ContainsFunc(ws.Members, func(m store.Member) bool { return m.UserID == userID }), nil
}

func (s *Store) GetWorkspaceMembers(ctx context.Context, workspaceID string) ([]store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("GetWorkspaceMembers"); err != nil {
		return nil, err
	}
	ws, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, fmt.Errorf("workspace '%s': %w", workspaceID, store.ErrNotFound)
	}
	members := slices.Clone(ws.Members)
	for i := range members {
		if u, ok := s.users[members[i].UserID]; ok && u.LastActive != nil {
			at := *u.LastActive
			members[i].LastActive = &at
		}
	}
	return members, nil
}

func (s *Store) ListUserWorkspaces(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListUserWorkspaces"); err != nil {
		return nil, err
	}
	var ids []string
	for id, ws := range s.workspaces {
		if slices.ContainsFunc(ws.Members, func(m store.Member) bool { return m.UserID == userID }) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, userID string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user '%s': %w", userID, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) SetUserOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SetUserOnline"); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		u = &store.User{ID: userID}
		s.users[userID] = u
	}
	u.IsOnline = online
	return nil
}

func (s *Store) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("TouchLastActive"); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		u = &store.User{ID: userID}
		s.users[userID] = u
	}
	u.LastActive = &at
	return nil
}

// --- Tasks ---

func (s *Store) LoadTask(ctx context.Context, taskID string) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("LoadTask"); err != nil {
		return nil, err
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task '%s': %w", taskID, store.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *Store) SaveTask(ctx context.Context, task *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SaveTask"); err != nil {
		return err
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("DeleteTask"); err != nil {
		return err
	}
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("task '%s': %w", taskID, store.ErrNotFound)
	}
	delete(s.tasks, taskID)
	delete(s.activity, taskID)
	for id, c := range s.comments {
		if c.TaskID == taskID {
			delete(s.comments, id)
		}
	}
	return nil
}

func (s *Store) AppendTaskActivity(ctx context.Context, taskID string, entry store.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("AppendTaskActivity"); err != nil {
		return err
	}
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("task '%s': %w", taskID, store.ErrNotFound)
	}
	s.activity[taskID] = append(s.activity[taskID], entry)
	return nil
}

// --- Comments ---

func (s *Store) LoadComment(ctx context.Context, commentID string) (*store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("LoadComment"); err != nil {
		return nil, err
	}
	c, ok := s.comments[commentID]
	if !ok {
		return nil, fmt.Errorf("comment '%s': %w", commentID, store.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *Store) SaveComment(ctx context.Context, comment *store.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("SaveComment"); err != nil {
		return err
	}
	s.comments[comment.ID] = comment.Clone()
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("DeleteComment"); err != nil {
		return err
	}
	if _, ok := s.comments[commentID]; !ok {
		return fmt.Errorf("comment '%s': %w", commentID, store.ErrNotFound)
	}
	delete(s.comments, commentID)
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}
