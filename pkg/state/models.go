package state

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the outbound half of a live client session.
// Send must never block on a slow peer.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte) error
	Close(err error)
}

// representation of a single authenticated transport-layer connection.
// Fields are immutable after registration; room membership lives in the Manager.
type Connection struct {
	ID        uuid.UUID
	UserID    string
	IPAddress string
	Transport Transport
	CreatedAt time.Time
}

// canonical representation of a communication channel, one per workspace.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Grant // keyed by connection ID
}

// represents the relationship between a Connection and a Room, holding the permissions.
type Grant struct {
	ConnID      uuid.UUID
	UserID      string
	RoomID      string
	Permissions Permission // derived from the member's workspace role at join time
	JoinedAt    time.Time
}
