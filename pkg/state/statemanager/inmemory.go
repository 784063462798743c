package statemanager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a-essam23/collab-dispatch/pkg/state"
)

var (
	ErrAlreadyRegistered = errors.New("connection is already registered")
	ErrUnknownConnection = errors.New("connection is not registered")
)

type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	// userID -> live connection IDs. An entry exists iff the user is online.
	users map[string]map[uuid.UUID]struct{}
	rooms map[string]*state.Room
	// connID -> rooms joined, so deregistration never scans every room.
	joined map[uuid.UUID]map[string]struct{}

	// a single lock keeps registry and rooms consistent with each other: a disconnect
	// can never be observed half-applied by a concurrent broadcast.
	mu sync.RWMutex

	now    func() time.Time
	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]map[uuid.UUID]struct{}),
		rooms:  make(map[string]*state.Room),
		joined: make(map[uuid.UUID]map[string]struct{}),
		now:    time.Now,
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(t state.Transport, userID, ipAddr string) (*state.Connection, bool, error) {
	if userID == "" {
		return nil, false, errors.New("cannot register connection without a user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, false, ErrAlreadyRegistered
	}
	conn := &state.Connection{
		ID:        connID,
		UserID:    userID,
		IPAddress: ipAddr,
		Transport: t,
		CreatedAt: m.now(),
	}
	m.conns[connID] = conn

	set, online := m.users[userID]
	if !online {
		set = make(map[uuid.UUID]struct{})
		m.users[userID] = set
	}
	set[connID] = struct{}{}

	m.logger.Debug("Connection registered",
		slog.String("connID", connID.String()),
		slog.String("userID", userID),
		slog.Int("userConnections", len(set)),
	)
	return conn, !online, nil
}

func (m *InMemoryManager) Deregister(connID uuid.UUID) (*state.Connection, []string, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return nil, nil, false, false
	}
	delete(m.conns, connID)

	rooms := make([]string, 0, len(m.joined[connID]))
	for roomID := range m.joined[connID] {
		m.leaveLocked(connID, roomID)
		rooms = append(rooms, roomID)
	}
	delete(m.joined, connID)
	sort.Strings(rooms)

	last := false
	if set, ok := m.users[conn.UserID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.users, conn.UserID)
			last = true
		}
	}

	m.logger.Debug("Connection deregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", conn.UserID),
		slog.Bool("lastForUser", last),
	)
	return conn, rooms, last, true
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldest *state.Connection
	for connID := range m.users[userID] {
		conn := m.conns[connID]
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	return oldest, oldest != nil
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// --- Presence ---

func (m *InMemoryManager) GetUserConnections(userID string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.users[userID]
	conns := make([]*state.Connection, 0, len(set))
	for connID := range set {
		conns = append(conns, m.conns[connID])
	}
	return conns
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID])
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	return m.GetUserConnectionCount(userID) > 0
}

func (m *InMemoryManager) OnlineUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.users))
	for userID := range m.users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomID string, perms state.Permission) (*state.Grant, error) {
	if roomID == "" {
		return nil, errors.New("cannot join room: empty room id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*state.Grant),
		}
		m.rooms[roomID] = room
	}

	// Re-joining refreshes the permissions, the role may have changed.
	grant, exists := room.Members[connID]
	if !exists {
		grant = &state.Grant{
			ConnID:   connID,
			UserID:   conn.UserID,
			RoomID:   roomID,
			JoinedAt: m.now(),
		}
		room.Members[connID] = grant
	}
	grant.Permissions = perms

	rooms, ok := m.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		m.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}

	m.logger.Debug("Connection joined room", "connID", connID.String(), "userID", conn.UserID, "roomID", roomID)
	copied := *grant
	return &copied, nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rooms, ok := m.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.joined, connID)
		}
	}
	m.leaveLocked(connID, roomID)
}

func (m *InMemoryManager) leaveLocked(connID uuid.UUID, roomID string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Members, connID)

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", "roomID", roomID)
	}
}

func (m *InMemoryManager) RoomConnections(roomID string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]*state.Connection, 0, len(room.Members))
	for connID := range room.Members {
		if conn, ok := m.conns[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (m *InMemoryManager) RoomUsers(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(room.Members))
	users := make([]string, 0, len(room.Members))
	for _, grant := range room.Members {
		if _, dup := seen[grant.UserID]; dup {
			continue
		}
		seen[grant.UserID] = struct{}{}
		users = append(users, grant.UserID)
	}
	sort.Strings(users)
	return users
}

func (m *InMemoryManager) RoomsOf(connID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]string, 0, len(m.joined[connID]))
	for roomID := range m.joined[connID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (m *InMemoryManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	copied := &state.Room{ID: room.ID, Members: make(map[uuid.UUID]*state.Grant, len(room.Members))}
	for connID, grant := range room.Members {
		g := *grant
		copied.Members[connID] = &g
	}
	return copied, true
}

// --- Permission Management ---
func (m *InMemoryManager) GetGrant(connID uuid.UUID, roomID string) (*state.Grant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	grant, ok := room.Members[connID]
	if !ok {
		return nil, false
	}
	copied := *grant
	return &copied, true
}
