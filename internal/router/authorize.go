package router

import (
	"errors"

	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

// authorize checks that the requesting user is a member of workspaceID with at
// least the needed permission, and returns the member's full permission set.
// Membership is read from the store on every mutation, so a role change made
// through the REST layer applies to the very next event.
func (r *EventRouter) authorize(req *request, workspaceID string, need state.Permission) (state.Permission, error) {
	members, err := r.store.GetWorkspaceMembers(req.ctx, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, unauthorized("not a member of this workspace")
	}
	if err != nil {
		return 0, storeFailure(err, "workspace")
	}
	for _, m := range members {
		if m.UserID != req.userID() {
			continue
		}
		perms := state.PermissionsFor(state.Role(m.Role))
		if !perms.Has(need) {
			return perms, unauthorized("your role does not allow this action")
		}
		return perms, nil
	}
	return 0, unauthorized("not a member of this workspace")
}

// loadTask fetches a task and, when workspaceID is given, checks that the task
// belongs to it.
func (r *EventRouter) loadTask(req *request, taskID, workspaceID string) (*store.Task, error) {
	if taskID == "" {
		return nil, invalid("taskId is required")
	}
	task, err := r.store.LoadTask(req.ctx, taskID)
	if err != nil {
		return nil, storeFailure(err, "task")
	}
	if workspaceID != "" && task.WorkspaceID != workspaceID {
		return nil, notFound("task")
	}
	return task, nil
}

// loadComment fetches a comment and, when taskID is given, checks that the
// comment belongs to it.
func (r *EventRouter) loadComment(req *request, commentID, taskID string) (*store.Comment, error) {
	if commentID == "" {
		return nil, invalid("commentId is required")
	}
	comment, err := r.store.LoadComment(req.ctx, commentID)
	if err != nil {
		return nil, storeFailure(err, "comment")
	}
	if taskID != "" && comment.TaskID != taskID {
		return nil, notFound("comment")
	}
	return comment, nil
}
