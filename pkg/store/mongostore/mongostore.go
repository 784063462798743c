// Package mongostore implements store.Store on the MongoDB collections owned by the REST layer.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/a-essam23/collab-dispatch/pkg/store"
)

const (
	usersCollection      = "users"
	workspacesCollection = "workspaces"
	tasksCollection      = "tasks"
	commentsCollection   = "comments"
)

type Config struct {
	URI              string
	Database         string
	AppName          string
	OperationTimeout time.Duration
}

type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	workspaces *mongo.Collection
	tasks      *mongo.Collection
	comments   *mongo.Collection

	timeout time.Duration
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	logger = logger.With(slog.String("component", "mongostore"))
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	clientOptions := options.Client().ApplyURI(cfg.URI).SetAppName(cfg.AppName)
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.Debug("Database connection created", slog.String("address", evt.Address))
			case event.ConnectionClosed:
				logger.Debug("Database connection closed", slog.String("address", evt.Address), slog.String("reason", evt.Reason))
			}
		},
	})

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	logger.Info("Connected to database", slog.String("database", cfg.Database))
	return &Store{
		client:     client,
		users:      db.Collection(usersCollection),
		workspaces: db.Collection(workspacesCollection),
		tasks:      db.Collection(tasksCollection),
		comments:   db.Collection(commentsCollection),
		timeout:    cfg.OperationTimeout,
		logger:     logger,
	}, nil
}

func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s '%s': %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s '%s': %w", kind, id, err)
}

// setFields encodes a document for $set, without the immutable _id.
func setFields(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	return fields, nil
}

// --- Workspaces ---

func (s *Store) IsWorkspaceMember(ctx context.Context, userID, workspaceID string) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := s.workspaces.CountDocuments(ctx, bson.M{"_id": workspaceID, "members.user": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetWorkspaceMembers(ctx context.Context, workspaceID string) ([]store.Member, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var ws store.Workspace
	err := s.workspaces.FindOne(ctx, bson.M{"_id": workspaceID}, options.FindOne().SetProjection(bson.M{"members": 1})).Decode(&ws)
	if err != nil {
		return nil, notFound("workspace", workspaceID, err)
	}
	if len(ws.Members) == 0 {
		return ws.Members, nil
	}

	ids := make([]string, 0, len(ws.Members))
	for _, m := range ws.Members {
		ids = append(ids, m.UserID)
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"lastActive": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to load member activity: %w", err)
	}
	var users []store.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode member activity: %w", err)
	}
	lastActive := make(map[string]*time.Time, len(users))
	for _, u := range users {
		lastActive[u.ID] = u.LastActive
	}
	for i := range ws.Members {
		ws.Members[i].LastActive = lastActive[ws.Members[i].UserID]
	}
	return ws.Members, nil
}

func (s *Store) ListUserWorkspaces(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	cur, err := s.workspaces.Find(ctx, bson.M{"members.user": userID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode workspaces: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, userID string) (*store.User, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var u store.User
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u); err != nil {
		return nil, notFound("user", userID, err)
	}
	return &u, nil
}

func (s *Store) SetUserOnline(ctx context.Context, userID string, online bool) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.users.UpdateByID(ctx, userID, bson.M{"$set": bson.M{"isOnline": online}})
	if err != nil {
		return fmt.Errorf("failed to set online state: %w", err)
	}
	return nil
}

func (s *Store) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.users.UpdateByID(ctx, userID, bson.M{"$set": bson.M{"lastActive": at}})
	if err != nil {
		return fmt.Errorf("failed to touch last active: %w", err)
	}
	return nil
}

// --- Tasks ---

func (s *Store) LoadTask(ctx context.Context, taskID string) (*store.Task, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var t store.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&t); err != nil {
		return nil, notFound("task", taskID, err)
	}
	return &t, nil
}

func (s *Store) SaveTask(ctx context.Context, task *store.Task) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	// $set instead of a replace keeps fields this service does not model, such as activity.
	fields, err := setFields(task)
	if err != nil {
		return fmt.Errorf("failed to encode task '%s': %w", task.ID, err)
	}
	_, err = s.tasks.UpdateByID(ctx, task.ID, bson.M{"$set": fields}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save task '%s': %w", task.ID, err)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": taskID})
	if err != nil {
		return fmt.Errorf("failed to delete task '%s': %w", taskID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task '%s': %w", taskID, store.ErrNotFound)
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"task": taskID}); err != nil {
		// the task is gone already; orphaned comments are invisible to clients
		s.logger.Warn("Failed to delete comments of deleted task", slog.String("taskID", taskID), slog.Any("error", err))
	}
	return nil
}

func (s *Store) AppendTaskActivity(ctx context.Context, taskID string, entry store.Activity) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.tasks.UpdateByID(ctx, taskID, bson.M{"$push": bson.M{"activity": entry}})
	if err != nil {
		return fmt.Errorf("failed to append activity to task '%s': %w", taskID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task '%s': %w", taskID, store.ErrNotFound)
	}
	return nil
}

// --- Comments ---

func (s *Store) LoadComment(ctx context.Context, commentID string) (*store.Comment, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var c store.Comment
	if err := s.comments.FindOne(ctx, bson.M{"_id": commentID}).Decode(&c); err != nil {
		return nil, notFound("comment", commentID, err)
	}
	return &c, nil
}

func (s *Store) SaveComment(ctx context.Context, comment *store.Comment) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	fields, err := setFields(comment)
	if err != nil {
		return fmt.Errorf("failed to encode comment '%s': %w", comment.ID, err)
	}
	_, err = s.comments.UpdateByID(ctx, comment.ID, bson.M{"$set": fields}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save comment '%s': %w", comment.ID, err)
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.comments.DeleteOne(ctx, bson.M{"_id": commentID})
	if err != nil {
		return fmt.Errorf("failed to delete comment '%s': %w", commentID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("comment '%s': %w", commentID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return s.client.Disconnect(ctx)
}
