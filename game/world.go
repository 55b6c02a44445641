package game

import (
	"context"

	"github.com/cyberinferno/sleuthnet/protocol"
)

// Role is a seat in a session.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleGuest
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "none"
	}
}

// Peer is a connected player as seen by a session. The server's connection
// type implements it; tests use an in-memory fake.
type Peer interface {
	// ID returns the connection identity assigned on accept.
	ID() uint32

	// Name returns the current display name.
	Name() string

	// Send queues a notification for delivery. It must not block.
	Send(n protocol.Notification) error

	// Session returns the session the peer is attached to, or nil.
	Session() *Session

	// Attach records the peer's session; nil detaches it.
	Attach(s *Session)
}

// Actor identifies the player on whose behalf the world applies an action.
type Actor struct {
	ID   uint32
	Name string
	Role Role
}

// Audience selects who receives an Outbound message, relative to the actor
// that caused it.
type Audience int

const (
	ToActor Audience = iota
	ToOther
	ToAll
)

// Outbound is one notification produced by the world.
type Outbound struct {
	To      Audience
	Message protocol.Notification
}

// World is the domain content a session delegates gameplay to. The session
// calls it only while holding its lock, so implementations need no locking
// of their own but must return quickly.
type World interface {
	// Start is called once when the match begins. actor is the host.
	Start(host, guest Actor) []Outbound

	// Apply executes one gameplay action. An error is reported to the
	// actor as a rejection and must leave the world unchanged.
	Apply(actor Actor, action *protocol.Action) ([]Outbound, error)
}

// OpenFunc prepares the world for a new session.
type OpenFunc func(ctx context.Context) (World, error)
