// Package presence announces users coming online and going offline to the
// workspaces they belong to.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/a-essam23/collab-dispatch/internal/dispatch"
	"github.com/a-essam23/collab-dispatch/pkg/protocol"
	"github.com/a-essam23/collab-dispatch/pkg/state"
	"github.com/a-essam23/collab-dispatch/pkg/store"
)

const (
	DefaultCacheSize    = 4096
	DefaultWriteTimeout = 5 * time.Second
)

type Config struct {
	CacheSize    int
	WriteTimeout time.Duration
}

type Publisher struct {
	store      store.Store
	state      state.Manager
	dispatcher *dispatch.Dispatcher
	clock      clock.Clock
	logger     *slog.Logger

	// workspaces of each live connection, so a disconnect can fan out without a store round trip.
	workspaces   *lru.Cache[uuid.UUID, []string]
	writeTimeout time.Duration
	wg           sync.WaitGroup

	// announceMu orders announcements against each other; see announce.
	announceMu sync.Mutex
}

func New(st store.Store, sm state.Manager, d *dispatch.Dispatcher, clk clock.Clock, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := lru.New[uuid.UUID, []string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace cache: %w", err)
	}
	return &Publisher{
		store:        st,
		state:        sm,
		dispatcher:   d,
		clock:        clk,
		logger:       logger.With(slog.String("component", "presence")),
		workspaces:   cache,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// Connected records the workspaces of a new connection and, when it is the user's
// first one, announces the user online to each of them.
func (p *Publisher) Connected(ctx context.Context, conn *state.Connection, first bool) {
	workspaces, err := p.store.ListUserWorkspaces(ctx, conn.UserID)
	if err != nil {
		p.logger.Warn("Failed to list user workspaces", slog.String("userID", conn.UserID), slog.Any("error", err))
	}
	p.workspaces.Add(conn.ID, workspaces)
	if !first {
		return
	}

	now := p.clock.Now()
	p.syncStore(conn.UserID, now)
	p.announce(conn.UserID, workspaces, protocol.UserPresence{UserID: conn.UserID, IsOnline: true, LastActive: &now})
}

// Disconnected forgets the connection and, when it was the user's last one,
// announces the user offline. extraRooms are rooms the connection had joined;
// they are merged with the cached workspace list.
func (p *Publisher) Disconnected(conn *state.Connection, extraRooms []string, last bool) {
	workspaces, cached := p.workspaces.Get(conn.ID)
	p.workspaces.Remove(conn.ID)
	if !last {
		return
	}

	if !cached {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		var err error
		workspaces, err = p.store.ListUserWorkspaces(ctx, conn.UserID)
		cancel()
		if err != nil {
			p.logger.Warn("Failed to list user workspaces", slog.String("userID", conn.UserID), slog.Any("error", err))
		}
	}

	now := p.clock.Now()
	p.syncStore(conn.UserID, now)
	p.announce(conn.UserID, merge(workspaces, extraRooms), protocol.UserPresence{UserID: conn.UserID, IsOnline: false, LastActive: &now})
}

// Users reports the presence of every member of a workspace.
func (p *Publisher) Users(ctx context.Context, workspaceID string) ([]protocol.UserPresence, error) {
	members, err := p.store.GetWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	users := make([]protocol.UserPresence, 0, len(members))
	for _, m := range members {
		up := protocol.UserPresence{UserID: m.UserID, IsOnline: p.state.IsOnline(m.UserID), LastActive: m.LastActive}
		if up.IsOnline {
			up.LastActive = &now
		}
		users = append(users, up)
	}
	return users, nil
}

// Wait blocks until every pending store write has finished.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// announce broadcasts evt unless the registry has already moved past it. With
// announcements serialized, the last one sent for a user always matches the
// registry, even when a quick reconnect overtakes the previous disconnect.
func (p *Publisher) announce(userID string, workspaces []string, evt protocol.UserPresence) {
	p.announceMu.Lock()
	defer p.announceMu.Unlock()
	if p.state.IsOnline(userID) != evt.IsOnline {
		p.logger.Debug("Skipping stale presence announcement", slog.String("userID", userID), slog.Bool("online", evt.IsOnline))
		return
	}
	for _, ws := range workspaces {
		p.dispatcher.Broadcast(ws, evt, uuid.Nil)
	}
	p.logger.Debug("Presence announced",
		slog.String("userID", userID),
		slog.Bool("online", evt.IsOnline),
		slog.Int("workspaces", len(workspaces)),
	)
}

// syncStore writes the user's presence and last-seen time in the background. The value written is
// read from the registry when the write runs, so a quick reconnect cannot be
// overwritten by the stale offline write of the previous session.
func (p *Publisher) syncStore(userID string, at time.Time) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		defer cancel()

		online := p.state.IsOnline(userID)
		if err := p.store.SetUserOnline(ctx, userID, online); err != nil {
			p.logger.Warn("Failed to persist online state", slog.String("userID", userID), slog.Any("error", err))
		}
		if err := p.store.TouchLastActive(ctx, userID, at); err != nil {
			p.logger.Warn("Failed to persist last active", slog.String("userID", userID), slog.Any("error", err))
		}
	}()
}

func merge(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
