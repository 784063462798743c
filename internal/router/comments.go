package router

import (
	"strings"

	"github.com/google/uuid"

	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

const (
	activityCommented       = "commented"
	activityCommentEdited   = "comment_edited"
	activityCommentDeleted  = "comment_deleted"
	activityReactionAdded   = "reaction_added"
	activityReactionRemoved = "reaction_removed"
)

func (r *EventRouter) createComment(req *request, e protocol.CreateComment) error {
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return invalid("content is required")
	}
	task, err := r.loadTask(req, e.TaskID, "")
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, task.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	now := r.clock.Now()
	comment := &store.Comment{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		WorkspaceID: task.WorkspaceID,
		AuthorID:    req.userID(),
		Content:     content,
		Mentions:    e.Mentions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.SaveComment(req.ctx, comment); err != nil {
		return storeFailure(err, "comment")
	}
	r.recordActivity(req, task.ID, activityCommented, map[string]any{"commentId": comment.ID})

	r.publish(req, task.WorkspaceID, protocol.CommentCreated{
		WorkspaceID: task.WorkspaceID,
		TaskID:      task.ID,
		Comment:     comment,
		ActorID:     req.userID(),
		Timestamp:   now,
	})
	return nil
}

func (r *EventRouter) updateComment(req *request, e protocol.UpdateComment) error {
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return invalid("content is required")
	}
	comment, err := r.loadComment(req, e.CommentID, e.TaskID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, comment.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}
	if comment.AuthorID != req.userID() {
		return unauthorized("only the author can edit a comment")
	}

	now := r.clock.Now()
	comment.Content = content
	comment.Edited = true
	comment.UpdatedAt = now
	if err := r.store.SaveComment(req.ctx, comment); err != nil {
		return storeFailure(err, "comment")
	}
	r.recordActivity(req, comment.TaskID, activityCommentEdited, map[string]any{"commentId": comment.ID})

	r.publish(req, comment.WorkspaceID, protocol.CommentUpdated{
		WorkspaceID: comment.WorkspaceID,
		TaskID:      comment.TaskID,
		Comment:     comment,
		ActorID:     req.userID(),
		Timestamp:   now,
	})
	return nil
}

func (r *EventRouter) deleteComment(req *request, e protocol.DeleteComment) error {
	comment, err := r.loadComment(req, e.CommentID, e.TaskID)
	if err != nil {
		return err
	}
	perms, err := r.authorize(req, comment.WorkspaceID, state.PermCanRead)
	if err != nil {
		return err
	}
	if comment.AuthorID != req.userID() && !perms.Has(state.PermCanModerate) {
		return unauthorized("only the author or a moderator can delete a comment")
	}

	if err := r.store.DeleteComment(req.ctx, comment.ID); err != nil {
		return storeFailure(err, "comment")
	}
	r.recordActivity(req, comment.TaskID, activityCommentDeleted, map[string]any{"commentId": comment.ID})

	r.publish(req, comment.WorkspaceID, protocol.CommentDeleted{
		WorkspaceID: comment.WorkspaceID,
		TaskID:      comment.TaskID,
		CommentID:   comment.ID,
		ActorID:     req.userID(),
		Timestamp:   r.clock.Now(),
	})
	return nil
}

func (r *EventRouter) reactToComment(req *request, e protocol.ReactToComment) error {
	emoji := strings.TrimSpace(e.Emoji)
	if emoji == "" {
		return invalid("emoji is required")
	}
	if e.Action != protocol.ReactionAdd && e.Action != protocol.ReactionRemove {
		return invalid("action must be '%s' or '%s'", protocol.ReactionAdd, protocol.ReactionRemove)
	}
	comment, err := r.loadComment(req, e.CommentID, e.TaskID)
	if err != nil {
		return err
	}
	if _, err := r.authorize(req, comment.WorkspaceID, state.PermCanWrite); err != nil {
		return err
	}

	activity := activityReactionAdded
	switch e.Action {
	case protocol.ReactionAdd:
		if comment.HasReaction(req.userID(), emoji) {
			return invalid("already reacted with %s", emoji)
		}
		comment.Reactions = append(comment.Reactions, store.Reaction{Emoji: emoji, UserID: req.userID()})
	case protocol.ReactionRemove:
		if !comment.RemoveReaction(req.userID(), emoji) {
			return invalid("no %s reaction to remove", emoji)
		}
		activity = activityReactionRemoved
	}

	now := r.clock.Now()
	comment.UpdatedAt = now
	if err := r.store.SaveComment(req.ctx, comment); err != nil {
		return storeFailure(err, "comment")
	}
	r.recordActivity(req, comment.TaskID, activity, map[string]any{"commentId": comment.ID, "emoji": emoji})

	r.publish(req, comment.WorkspaceID, protocol.CommentReaction{
		WorkspaceID: comment.WorkspaceID,
		TaskID:      comment.TaskID,
		CommentID:   comment.ID,
		Emoji:       emoji,
		Action:      e.Action,
		Comment:     comment,
		ActorID:     req.userID(),
		Timestamp:   now,
	})
	return nil
}
