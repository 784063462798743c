package router

import (
	"strings"

	"github.com/google/uuid"

	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

// Activity actions recorded on tasks.
const (
	activityCreated        = "created"
	activityUpdated        = "updated"
	activityStatusChanged  = "status_changed"
	activitySubtaskAdded   = "subtask_added"
	activitySubtaskToggled = "subtask_toggled"
	activitySubtaskDeleted = "subtask_deleted"
)

func (r *EventRouter) createTask(req *request, e protocol.CreateTask) error {
	title := strings.TrimSpace(e.Title)
	switch {
	case e.WorkspaceID == "":
		return invalid("workspaceId is required")
	case title == "":
		return invalid("title is required")
	}
	if e.Status == "" {
		e.Status = store.StatusTodo
	}
	if e.Priority == "" {
		e.Priority = store.PriorityMedium
	}
	if !e.Status.Valid() {
		return invalid("unknown status '%s'", e.Status)
	}
	if !e.Priority.Valid() {
		return invalid("unknown priority '%s'", e.Priority)
	}
	if _, err := r.authorize(req, e.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	now := r.clock.Now()
	task := &store.Task{
		ID:          uuid.NewString(),
		WorkspaceID: e.WorkspaceID,
		Title:       title,
		Description: e.Description,
		Status:      e.Status,
		Priority:    e.Priority,
		Assignees:   e.Assignees,
		Tags:        e.Tags,
		DueDate:     e.DueDate,
		CreatedBy:   req.userID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.SaveTask(req.ctx, task); err != nil {
		return storeFailure(err, "task")
	}
	r.recordActivity(req, task.ID, activityCreated, map[string]any{"title": task.Title})

	r.publish(req, task.WorkspaceID, protocol.TaskCreated{
		WorkspaceID: task.WorkspaceID,
		Task:        task,
		ActorID:     req.userID(),
		Timestamp:   now,
	})
	return nil
}

func (r *EventRouter) updateTask(req *request, e protocol.UpdateTask) error {
	if e.Changes.Empty() {
		return invalid("changes must not be empty")
	}
	if err := validateChanges(e.Changes); err != nil {
		return err
	}
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	applyChanges(task, e.Changes)
	return r.saveTaskUpdate(req, task, e.Changes, "", activityUpdated, map[string]any{"fields": changedFields(e.Changes)})
}

func (r *EventRouter) changeTaskStatus(req *request, e protocol.ChangeTaskStatus) error {
	if !e.Status.Valid() {
		return invalid("unknown status '%s'", e.Status)
	}
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	from := task.Status
	status := e.Status
	changes := protocol.TaskChanges{Status: &status}
	applyChanges(task, changes)
	return r.saveTaskUpdate(req, task, changes, "", activityStatusChanged, map[string]any{"from": from, "to": status})
}

func (r *EventRouter) deleteTask(req *request, e protocol.DeleteTask) error {
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	perms, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite)
	if err != nil {
		return err
	}
	if !perms.Has(state.PermCanModerate) && task.CreatedBy != req.userID() {
		return unauthorized("only the creator or a moderator can delete this task")
	}

	// the activity trail is stored on the task and goes away with it
	if err := r.store.DeleteTask(req.ctx, task.ID); err != nil {
		return storeFailure(err, "task")
	}
	r.publish(req, task.WorkspaceID, protocol.TaskDeleted{
		WorkspaceID: task.WorkspaceID,
		TaskID:      task.ID,
		ActorID:     req.userID(),
		Timestamp:   r.clock.Now(),
	})
	return nil
}

func (r *EventRouter) addSubtask(req *request, e protocol.AddSubtask) error {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return invalid("title is required")
	}
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	subtask := store.Subtask{ID: uuid.NewString(), Title: title}
	task.Subtasks = append(task.Subtasks, subtask)
	return r.saveTaskUpdate(req, task, protocol.TaskChanges{}, protocol.EventSubtaskAdd, activitySubtaskAdded,
		map[string]any{"subtaskId": subtask.ID, "title": title})
}

func (r *EventRouter) toggleSubtask(req *request, e protocol.ToggleSubtask) error {
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}
	i := task.FindSubtask(e.SubtaskID)
	if i < 0 {
		return notFound("subtask")
	}

	task.Subtasks[i].Completed = !task.Subtasks[i].Completed
	return r.saveTaskUpdate(req, task, protocol.TaskChanges{}, protocol.EventSubtaskToggle, activitySubtaskToggled,
		map[string]any{"subtaskId": e.SubtaskID, "completed": task.Subtasks[i].Completed})
}

func (r *EventRouter) deleteSubtask(req *request, e protocol.DeleteSubtask) error {
	task, err := r.loadTask(req, e.TaskID, e.WorkspaceID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}
	i := task.FindSubtask(e.SubtaskID)
	if i < 0 {
		return notFound("subtask")
	}

	task.Subtasks = append(task.Subtasks[:i], task.Subtasks[i+1:]...)
	return r.saveTaskUpdate(req, task, protocol.TaskChanges{}, protocol.EventSubtaskDelete, activitySubtaskDeleted,
		map[string]any{"subtaskId": e.SubtaskID})
}

// saveTaskUpdate persists a modified task, records the activity and announces task:updated.
func (r *EventRouter) saveTaskUpdate(req *request, task *store.Task, changes protocol.TaskChanges, action, activity string, details map[string]any) error {
	now := r.clock.Now()
	task.UpdatedAt = now
	if err := r.store.SaveTask(req.ctx, task); err != nil {
		return storeFailure(err, "task")
	}
	r.recordActivity(req, task.ID, activity, details)

	r.publish(req, task.WorkspaceID, protocol.TaskUpdated{
		WorkspaceID: task.WorkspaceID,
		TaskID:      task.ID,
		Task:        task,
		Changes:     changes,
		Action:      action,
		ActorID:     req.userID(),
		Timestamp:   now,
	})
	return nil
}

func validateChanges(c protocol.TaskChanges) error {
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		return invalid("title must not be empty")
	}
	if c.Status != nil && !c.Status.Valid() {
		return invalid("unknown status '%s'", *c.Status)
	}
	if c.Priority != nil && !c.Priority.Valid() {
		return invalid("unknown priority '%s'", *c.Priority)
	}
	return nil
}

func applyChanges(t *store.Task, c protocol.TaskChanges) {
	if c.Title != nil {
		t.Title = strings.TrimSpace(*c.Title)
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.Assignees != nil {
		t.Assignees = *c.Assignees
	}
	if c.Tags != nil {
		t.Tags = *c.Tags
	}
	if c.DueDate != nil {
		t.DueDate = c.DueDate
	}
}

func changedFields(c protocol.TaskChanges) []string {
	var fields []string
	if c.Title != nil {
		fields = append(fields, "title")
	}
	if c.Description != nil {
		fields = append(fields, "description")
	}
	if c.Status != nil {
		fields = append(fields, "status")
	}
	if c.Priority != nil {
		fields = append(fields, "priority")
	}
	if c.Assignees != nil {
		fields = append(fields, "assignees")
	}
	if c.Tags != nil {
		fields = append(fields, "tags")
	}
	if c.DueDate != nil {
		fields = append(fields, "dueDate")
	}
	return fields
}
