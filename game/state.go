package game

import "github.com/cyberinferno/sleuthnet/protocol"

// State is a game session's lifecycle state.
type State int

const (
	Loading              State = iota // Content is being prepared; never listed
	WaitingForPlayers                 // Host present, guest seat open
	InLobbyAwaitingStart              // Both seats filled, waiting for the host to start
	Active                            // Gameplay in progress
	EndedNormal                       // Host ended the match
	EndedAbandoned                    // Host left or cancelled
	Error                             // Content failed to load
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Loading:
		return "Loading"
	case WaitingForPlayers:
		return "WaitingForPlayers"
	case InLobbyAwaitingStart:
		return "InLobbyAwaitingStart"
	case Active:
		return "Active"
	case EndedNormal:
		return "EndedNormal"
	case EndedAbandoned:
		return "EndedAbandoned"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == EndedNormal || s == EndedAbandoned || s == Error
}

// States lists every state, in declaration order.
var States = []State{Loading, WaitingForPlayers, InLobbyAwaitingStart, Active, EndedNormal, EndedAbandoned, Error}

// Event drives a transition of the session lifecycle.
type Event int

const (
	EventLoaded Event = iota
	EventLoadFailed
	EventGuestJoined
	EventGuestLeft
	EventStart
	EventEnd
	EventHostLeft
)

func (e Event) String() string {
	switch e {
	case EventLoaded:
		return "Loaded"
	case EventLoadFailed:
		return "LoadFailed"
	case EventGuestJoined:
		return "GuestJoined"
	case EventGuestLeft:
		return "GuestLeft"
	case EventStart:
		return "Start"
	case EventEnd:
		return "End"
	case EventHostLeft:
		return "HostLeft"
	default:
		return "Unknown"
	}
}

// transitions is the complete lifecycle. A (state, event) pair that is not
// listed has no transition. Terminal states have no outgoing edges.
var transitions = map[State]map[Event]State{
	Loading: {
		EventLoaded:     WaitingForPlayers,
		EventLoadFailed: Error,
		EventHostLeft:   EndedAbandoned,
	},
	WaitingForPlayers: {
		EventGuestJoined: InLobbyAwaitingStart,
		EventHostLeft:    EndedAbandoned,
	},
	InLobbyAwaitingStart: {
		EventGuestLeft: WaitingForPlayers,
		EventStart:     Active,
		EventHostLeft:  EndedAbandoned,
	},
	Active: {
		EventGuestLeft: Active,
		EventEnd:       EndedNormal,
		EventHostLeft:  EndedAbandoned,
	},
}

// Next returns the state reached from s on e.
//
// Returns:
//   - The next state, and true if the transition exists
//   - s and false otherwise
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[s][e]
	if !ok {
		return s, false
	}

	return next, true
}

// admission lists the command kinds each state accepts. Everything else is
// answered with a rejection and leaves the session untouched.
var admission = map[State]map[protocol.Kind]bool{
	Loading: {
		protocol.KindCancel: true,
		protocol.KindExit:   true,
	},
	WaitingForPlayers: {
		protocol.KindCancel: true,
		protocol.KindExit:   true,
	},
	InLobbyAwaitingStart: {
		protocol.KindStart:  true,
		protocol.KindCancel: true,
		protocol.KindExit:   true,
	},
	Active: {
		protocol.KindChat:   true,
		protocol.KindAction: true,
		protocol.KindExit:   true,
		protocol.KindEnd:    true,
	},
}

// Allowed reports whether a command of kind k is admitted in state s.
func Allowed(s State, k protocol.Kind) bool {
	return admission[s][k]
}
