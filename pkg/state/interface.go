package state

import (
	"github.com/google/uuid"
)

// Manager owns the connection registry and room memberships.
// All methods return copies; callers never see the internal maps.
type Manager interface {
	// --- Connection Lifecycle ---
	// Register stores an authenticated connection. first reports whether it is the user's
	// only live connection, i.e. the user just came online.
	Register(t Transport, userID, ipAddr string) (conn *Connection, first bool, err error)
	// Deregister removes the connection from the registry and from every room it joined.
	// last reports whether the user has no live connections left.
	Deregister(connID uuid.UUID) (conn *Connection, rooms []string, last bool, found bool)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	FindOldestUserConnection(userID string) (*Connection, bool)
	AllConnections() []*Connection
	ConnectionCount() int

	// --- Presence ---
	GetUserConnections(userID string) []*Connection
	GetUserConnectionCount(userID string) int
	IsOnline(userID string) bool
	OnlineUsers() []string

	// --- Room & Membership Management ---
	// adds a connection to a room, creating the room if it doesn't exist.
	Join(connID uuid.UUID, roomID string, perms Permission) (*Grant, error)
	// Leave is a no-op when the connection is not in the room.
	Leave(connID uuid.UUID, roomID string)
	RoomConnections(roomID string) []*Connection
	RoomUsers(roomID string) []string
	RoomsOf(connID uuid.UUID) []string
	RoomCount() int
	FindRoom(roomID string) (*Room, bool)
	GetGrant(connID uuid.UUID, roomID string) (*Grant, bool)
}
